package cityscore

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Table is an immutable snapshot of observations. Every accessor returns
// copies, so views handed to presentation code can never alter the table.
type Table struct {
	resourceID string
	fields     []string
	rows       []Observation
}

func newTable(resourceID string, fields []string, rows []Observation) *Table {
	return &Table{
		resourceID: resourceID,
		fields:     slices.Clone(fields),
		rows:       rows,
	}
}

// NewTable builds a table from already typed rows, copying its inputs.
func NewTable(resourceID string, fields []string, rows []Observation) *Table {
	cp := make([]Observation, len(rows))
	for i, r := range rows {
		cp[i] = r.clone()
	}
	return newTable(resourceID, fields, cp)
}

// WithBuckets returns a new table whose rows carry the buckets computed by
// derive from each row's score_calculated_ts.
func (t *Table) WithBuckets(derive func(ts sql.NullTime) Buckets) *Table {
	rows := make([]Observation, len(t.rows))
	for i, r := range t.rows {
		r = r.clone()
		r.Buckets = derive(r.ScoreCalculatedTS)
		rows[i] = r
	}
	return newTable(t.resourceID, t.fields, rows)
}

func (t *Table) ResourceID() string { return t.resourceID }

// Fields returns the source field names in declared order.
func (t *Table) Fields() []string { return slices.Clone(t.fields) }

func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of every row in table order.
func (t *Table) Rows() []Observation {
	out := make([]Observation, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.clone()
	}
	return out
}

// MetricNames returns the distinct metric codes present, sorted.
func (t *Table) MetricNames() []string {
	seen := make(map[string]struct{})
	for i := range t.rows {
		seen[t.rows[i].MetricName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Query selects and orders rows. Zero values mean "no filter" and "order by
// record id".
type Query struct {
	Latest      *bool
	Metrics     []string
	Period      Period
	PeriodStart time.Time
	SortBy      Column
	Descending  bool
}

// Select returns the rows matching q in the requested order. Sorting is
// stable, unknown values sort last in either direction, and ties fall back
// to record id.
func (t *Table) Select(q Query) ([]Observation, error) {
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = ColumnRecordID
	}
	col, ok := columns[sortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, sortBy)
	}
	if !q.PeriodStart.IsZero() {
		if _, err := ParsePeriod(string(q.Period)); err != nil {
			return nil, err
		}
	}

	var metrics map[string]bool
	if len(q.Metrics) > 0 {
		metrics = make(map[string]bool, len(q.Metrics))
		for _, m := range q.Metrics {
			metrics[m] = true
		}
	}

	out := make([]Observation, 0, len(t.rows))
	for i := range t.rows {
		r := &t.rows[i]
		if q.Latest != nil && r.IsLatest() != *q.Latest {
			continue
		}
		if metrics != nil && !metrics[r.MetricName] {
			continue
		}
		if !q.PeriodStart.IsZero() && !sameDate(r.Buckets.Start(q.Period), q.PeriodStart) {
			continue
		}
		out = append(out, r.clone())
	}

	slices.SortStableFunc(out, func(a, b Observation) int {
		va, vb := col.valid(&a), col.valid(&b)
		switch {
		case va && !vb:
			return -1
		case !va && vb:
			return 1
		case va && vb:
			c := col.compare(&a, &b)
			if q.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.RecordID, b.RecordID)
	})

	return out, nil
}

func sameDate(bucket sql.NullTime, day time.Time) bool {
	if !bucket.Valid {
		return false
	}
	by, bm, bd := bucket.Time.Date()
	y, m, d := day.Date()
	return by == y && bm == m && bd == d
}

// Headline is the most recent bucket of each granularity among the latest
// rows; it labels a "current scores" view.
type Headline struct {
	Day     sql.NullTime
	Week    sql.NullTime
	Month   sql.NullTime
	Quarter sql.NullTime
	Year    sql.NullInt32
}

// CurrentScores is the latest snapshot of every metric.
type CurrentScores struct {
	Headline Headline
	Rows     []Observation
}

// Current returns the rows flagged latest, ordered by metric name.
func (t *Table) Current() CurrentScores {
	latest := true
	rows, _ := t.Select(Query{Latest: &latest, SortBy: ColumnMetricName})

	var h Headline
	for i := range rows {
		b := rows[i].Buckets
		h.Day = maxTime(h.Day, b.Day)
		h.Week = maxTime(h.Week, b.Week)
		h.Month = maxTime(h.Month, b.Month)
		h.Quarter = maxTime(h.Quarter, b.Quarter)
		if b.Year.Valid && (!h.Year.Valid || b.Year.Int32 > h.Year.Int32) {
			h.Year = b.Year
		}
	}
	return CurrentScores{Headline: h, Rows: rows}
}

// MaxDay returns the most recent day bucket in the table.
func (t *Table) MaxDay() sql.NullTime {
	var best sql.NullTime
	for i := range t.rows {
		best = maxTime(best, t.rows[i].Buckets.Day)
	}
	return best
}

func maxTime(a, b sql.NullTime) sql.NullTime {
	switch {
	case !b.Valid:
		return a
	case !a.Valid || b.Time.After(a.Time):
		return b
	default:
		return a
	}
}

// HistoryPoint is one bucket of a metric's score series.
type HistoryPoint struct {
	Start time.Time
	Score decimal.NullDecimal
}

// History returns the distinct (bucket start, score) points of one metric at
// granularity p, ordered by start. Rows without a bucket are skipped.
func (t *Table) History(metric string, p Period) []HistoryPoint {
	type key struct {
		start int64
		score string
	}
	seen := make(map[key]bool)

	var points []HistoryPoint
	for i := range t.rows {
		r := &t.rows[i]
		if r.MetricName != metric {
			continue
		}
		start := r.Buckets.Start(p)
		if !start.Valid {
			continue
		}
		score := r.Measure(p).Score
		k := key{start: start.Time.Unix()}
		if score.Valid {
			k.score = score.Decimal.String()
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		points = append(points, HistoryPoint{Start: start.Time, Score: score})
	}

	slices.SortStableFunc(points, func(a, b HistoryPoint) int {
		return a.Start.Compare(b.Start)
	})
	return points
}
