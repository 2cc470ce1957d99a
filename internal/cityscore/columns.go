package cityscore

import (
	"cmp"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownColumn is returned for a sort or export column the table does not have.
var ErrUnknownColumn = errors.New("unknown column")

// Column names a table column. Names match the source fields and the derived
// bucket columns.
type Column string

const (
	ColumnRecordID          Column = FieldRecordID
	ColumnMetricName        Column = FieldMetricName
	ColumnMetricLogic       Column = FieldMetricLogic
	ColumnTarget            Column = FieldTarget
	ColumnScoreCalculatedTS Column = FieldScoreCalculatedTS
	ColumnLatestScoreFlag   Column = FieldLatestScoreFlag
	ColumnDay               Column = "day"
	ColumnWeek              Column = "week"
	ColumnMonth             Column = "month"
	ColumnQuarter           Column = "quarter"
	ColumnYear              Column = "year"
)

// DerivedColumns are appended after the source fields in exports.
var DerivedColumns = []Column{ColumnDay, ColumnWeek, ColumnMonth, ColumnQuarter, ColumnYear}

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

type columnSpec struct {
	// valid reports whether the value is known; unknown values sort last.
	valid   func(o *Observation) bool
	compare func(a, b *Observation) int
	format  func(o *Observation) string
}

var columns = map[Column]columnSpec{
	ColumnRecordID: {
		valid:   always,
		compare: func(a, b *Observation) int { return cmp.Compare(a.RecordID, b.RecordID) },
		format:  func(o *Observation) string { return strconv.FormatInt(o.RecordID, 10) },
	},
	ColumnMetricName: {
		valid:   func(o *Observation) bool { return o.MetricName != "" },
		compare: func(a, b *Observation) int { return strings.Compare(a.MetricName, b.MetricName) },
		format:  func(o *Observation) string { return o.MetricName },
	},
	ColumnMetricLogic: {
		valid:   func(o *Observation) bool { return o.MetricLogic != "" },
		compare: func(a, b *Observation) int { return strings.Compare(a.MetricLogic, b.MetricLogic) },
		format:  func(o *Observation) string { return o.MetricLogic },
	},
	ColumnTarget: decimalColumn(func(o *Observation) decimal.NullDecimal { return o.Target }),
	ColumnScoreCalculatedTS: timeColumn(
		func(o *Observation) sql.NullTime { return o.ScoreCalculatedTS }, timestampLayout),
	ColumnLatestScoreFlag: {
		valid: func(o *Observation) bool { return o.LatestScoreFlag.Valid },
		compare: func(a, b *Observation) int {
			return cmp.Compare(boolInt(a.LatestScoreFlag.Bool), boolInt(b.LatestScoreFlag.Bool))
		},
		format: func(o *Observation) string {
			switch {
			case !o.LatestScoreFlag.Valid:
				return ""
			case o.LatestScoreFlag.Bool:
				return "True"
			default:
				return "False"
			}
		},
	},
	ColumnDay:     timeColumn(func(o *Observation) sql.NullTime { return o.Buckets.Day }, dateLayout),
	ColumnWeek:    timeColumn(func(o *Observation) sql.NullTime { return o.Buckets.Week }, dateLayout),
	ColumnMonth:   timeColumn(func(o *Observation) sql.NullTime { return o.Buckets.Month }, dateLayout),
	ColumnQuarter: timeColumn(func(o *Observation) sql.NullTime { return o.Buckets.Quarter }, dateLayout),
	ColumnYear: {
		valid:   func(o *Observation) bool { return o.Buckets.Year.Valid },
		compare: func(a, b *Observation) int { return cmp.Compare(a.Buckets.Year.Int32, b.Buckets.Year.Int32) },
		format: func(o *Observation) string {
			if !o.Buckets.Year.Valid {
				return ""
			}
			return strconv.Itoa(int(o.Buckets.Year.Int32))
		},
	},
}

func init() {
	for _, p := range Periods {
		columns[MeasureColumn(p, "score")] = decimalColumn(func(o *Observation) decimal.NullDecimal {
			return o.Measure(p).Score
		})
		columns[MeasureColumn(p, "numerator")] = decimalColumn(func(o *Observation) decimal.NullDecimal {
			return o.Measure(p).Numerator
		})
		columns[MeasureColumn(p, "denominator")] = decimalColumn(func(o *Observation) decimal.NullDecimal {
			return o.Measure(p).Denominator
		})
	}
}

// MeasureColumn names the score, numerator or denominator column of p.
func MeasureColumn(p Period, part string) Column {
	return Column(string(p) + "_" + part)
}

// ScoreColumn names the score column of p.
func ScoreColumn(p Period) Column {
	return MeasureColumn(p, "score")
}

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	c := Column(s)
	if _, ok := columns[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, s)
	}
	return c, nil
}

func always(*Observation) bool { return true }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decimalColumn(get func(o *Observation) decimal.NullDecimal) columnSpec {
	return columnSpec{
		valid:   func(o *Observation) bool { return get(o).Valid },
		compare: func(a, b *Observation) int { return get(a).Decimal.Cmp(get(b).Decimal) },
		format: func(o *Observation) string {
			v := get(o)
			if !v.Valid {
				return ""
			}
			return v.Decimal.String()
		},
	}
}

func timeColumn(get func(o *Observation) sql.NullTime, layout string) columnSpec {
	return columnSpec{
		valid:   func(o *Observation) bool { return get(o).Valid },
		compare: func(a, b *Observation) int { return get(a).Time.Compare(get(b).Time) },
		format: func(o *Observation) string {
			v := get(o)
			if !v.Valid {
				return ""
			}
			return v.Time.Format(layout)
		},
	}
}
