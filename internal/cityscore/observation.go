// Package cityscore holds the CityScore domain model: typed metric
// observations, the static metric definitions, and the read-only table the
// presentation surfaces query.
package cityscore

import (
	"database/sql"
	"fmt"
	"maps"

	"github.com/shopspring/decimal"
)

// Source field names of the CityScore full-metrics resource.
const (
	FieldRecordID          = "_id"
	FieldMetricName        = "metric_name"
	FieldMetricLogic       = "metric_logic"
	FieldTarget            = "target"
	FieldScoreCalculatedTS = "score_calculated_ts"
	FieldLatestScoreFlag   = "latest_score_flag"
)

// Period is a calendar bucket granularity.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
)

// Periods lists the bucket granularities in display order.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter}

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown period %q (expected day, week, month or quarter)", s)
}

// Measure is the score of one period together with the counts behind it.
type Measure struct {
	Score       decimal.NullDecimal
	Numerator   decimal.NullDecimal
	Denominator decimal.NullDecimal
}

// Buckets are the derived calendar columns of an observation. Each start is
// invalid when the observation has no usable score_calculated_ts.
type Buckets struct {
	Day     sql.NullTime
	Week    sql.NullTime
	Month   sql.NullTime
	Quarter sql.NullTime
	Year    sql.NullInt32
}

// Start returns the bucket start for p.
func (b Buckets) Start(p Period) sql.NullTime {
	switch p {
	case PeriodDay:
		return b.Day
	case PeriodWeek:
		return b.Week
	case PeriodMonth:
		return b.Month
	case PeriodQuarter:
		return b.Quarter
	}
	return sql.NullTime{}
}

// Observation is one scoring snapshot for one metric.
type Observation struct {
	RecordID          int64
	MetricName        string
	MetricLogic       string
	Target            decimal.NullDecimal
	ScoreCalculatedTS sql.NullTime
	Day               Measure
	Week              Measure
	Month             Measure
	Quarter           Measure
	LatestScoreFlag   sql.NullBool
	Buckets           Buckets

	// Extra keeps the raw text of declared source fields without a typed slot.
	Extra map[string]string
}

// Measure returns the measure for p.
func (o *Observation) Measure(p Period) Measure {
	switch p {
	case PeriodDay:
		return o.Day
	case PeriodWeek:
		return o.Week
	case PeriodMonth:
		return o.Month
	case PeriodQuarter:
		return o.Quarter
	}
	return Measure{}
}

// IsLatest reports whether the row is flagged as its metric's latest snapshot.
func (o *Observation) IsLatest() bool {
	return o.LatestScoreFlag.Valid && o.LatestScoreFlag.Bool
}

func (o Observation) clone() Observation {
	if o.Extra != nil {
		o.Extra = maps.Clone(o.Extra)
	}
	return o
}

// FieldWarning records one field that could not be coerced to its semantic
// type. The row is kept and the field is left unknown.
type FieldWarning struct {
	RecordID int64  `json:"record_id"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	Reason   string `json:"reason"`
}

func (w FieldWarning) String() string {
	return fmt.Sprintf("record %d: %s=%q: %s", w.RecordID, w.Field, w.Value, w.Reason)
}
