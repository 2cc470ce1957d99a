package aggregation

import (
	"database/sql"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

// ScoreStats aggregates one score column over the known values only. Unknown
// scores are excluded, never counted as zero. Min, Max and Mean are unknown
// when Count is zero.
type ScoreStats struct {
	Count int                 `json:"count"`
	Min   decimal.NullDecimal `json:"min"`
	Max   decimal.NullDecimal `json:"max"`
	Mean  decimal.NullDecimal `json:"mean"`
}

// MetricSummary is the group-by-metric summary of a table.
type MetricSummary struct {
	MetricName string                          `json:"metric_name"`
	Rows       int                             `json:"rows"`
	FirstDay   sql.NullTime                    `json:"first_day"`
	LastDay    sql.NullTime                    `json:"last_day"`
	Scores     map[cityscore.Period]ScoreStats `json:"scores"`
}

// meanPlaces is the precision of ScoreStats.Mean.
const meanPlaces = 6

type accumulator struct {
	count    int
	min, max decimal.Decimal
	sum      decimal.Decimal
}

func (a *accumulator) add(v decimal.Decimal) {
	if a.count == 0 || v.LessThan(a.min) {
		a.min = v
	}
	if a.count == 0 || v.GreaterThan(a.max) {
		a.max = v
	}
	a.sum = a.sum.Add(v)
	a.count++
}

func (a *accumulator) stats() ScoreStats {
	if a.count == 0 {
		return ScoreStats{}
	}
	return ScoreStats{
		Count: a.count,
		Min:   decimal.NullDecimal{Decimal: a.min, Valid: true},
		Max:   decimal.NullDecimal{Decimal: a.max, Valid: true},
		Mean:  decimal.NullDecimal{Decimal: a.sum.DivRound(decimal.NewFromInt(int64(a.count)), meanPlaces), Valid: true},
	}
}

// Summarize groups t by metric name, sorted by name.
func Summarize(t *cityscore.Table) []MetricSummary {
	type group struct {
		summary MetricSummary
		acc     map[cityscore.Period]*accumulator
	}
	groups := make(map[string]*group)

	for _, row := range t.Rows() {
		g, ok := groups[row.MetricName]
		if !ok {
			g = &group{
				summary: MetricSummary{MetricName: row.MetricName},
				acc:     make(map[cityscore.Period]*accumulator, len(cityscore.Periods)),
			}
			for _, p := range cityscore.Periods {
				g.acc[p] = &accumulator{}
			}
			groups[row.MetricName] = g
		}

		g.summary.Rows++
		if day := row.Buckets.Day; day.Valid {
			if !g.summary.FirstDay.Valid || day.Time.Before(g.summary.FirstDay.Time) {
				g.summary.FirstDay = day
			}
			if !g.summary.LastDay.Valid || day.Time.After(g.summary.LastDay.Time) {
				g.summary.LastDay = day
			}
		}
		for _, p := range cityscore.Periods {
			if s := row.Measure(p).Score; s.Valid {
				g.acc[p].add(s.Decimal)
			}
		}
	}

	out := make([]MetricSummary, 0, len(groups))
	for _, g := range groups {
		g.summary.Scores = make(map[cityscore.Period]ScoreStats, len(g.acc))
		for p, a := range g.acc {
			g.summary.Scores[p] = a.stats()
		}
		out = append(out, g.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricName < out[j].MetricName })
	return out
}
