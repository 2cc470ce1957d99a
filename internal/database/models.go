package database

import (
	"database/sql"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

// observationColumns is the COPY column order for the observations table.
var observationColumns = []string{
	"snapshot_id", "record_id", "metric_name", "metric_logic", "target", "score_calculated_ts",
	"day_score", "day_numerator", "day_denominator",
	"week_score", "week_numerator", "week_denominator",
	"month_score", "month_numerator", "month_denominator",
	"quarter_score", "quarter_numerator", "quarter_denominator",
	"latest_score_flag", "day", "week", "month", "quarter", "year",
}

// observationValues maps one row onto observationColumns. Unknown values
// become SQL NULL through their driver.Valuer implementations.
func observationValues(snapshotID string, o cityscore.Observation) []any {
	values := []any{
		snapshotID,
		o.RecordID,
		o.MetricName,
		nullString(o.MetricLogic),
		o.Target,
		o.ScoreCalculatedTS,
	}
	for _, p := range cityscore.Periods {
		m := o.Measure(p)
		values = append(values, m.Score, m.Numerator, m.Denominator)
	}
	return append(values,
		o.LatestScoreFlag,
		o.Buckets.Day,
		o.Buckets.Week,
		o.Buckets.Month,
		o.Buckets.Quarter,
		o.Buckets.Year,
	)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
