package cityscore

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// Tokens the source uses for "no value". They coerce to unknown silently.
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"none": true,
	"null": true,
	"n/a":  true,
}

// Normalize coerces a raw resource into typed observations. It never drops a
// row: a field that cannot be coerced is left unknown and reported as a
// FieldWarning. Derived bucket columns are left unset.
func Normalize(res *opendata.Resource) (*Table, []FieldWarning) {
	n := &normalizer{}
	rows := make([]Observation, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, n.observation(res.Fields, rec))
	}
	return newTable(res.ResourceID, res.Fields, rows), n.warnings
}

type normalizer struct {
	warnings []FieldWarning
}

func (n *normalizer) warn(id int64, field, value, reason string) {
	n.warnings = append(n.warnings, FieldWarning{RecordID: id, Field: field, Value: value, Reason: reason})
}

func (n *normalizer) observation(fields []string, rec opendata.Record) Observation {
	var o Observation

	if id, ok := rec.ID(); ok {
		o.RecordID = id
	} else {
		raw, _ := rec.Text(FieldRecordID)
		n.warn(0, FieldRecordID, raw, "not an integer record id")
	}

	for _, f := range fields {
		raw, present := rec.Text(f)

		switch f {
		case FieldRecordID:
		case FieldMetricName:
			o.MetricName = strings.TrimSpace(raw)
		case FieldMetricLogic:
			o.MetricLogic = raw
		case FieldScoreCalculatedTS:
			o.ScoreCalculatedTS = n.timestamp(o.RecordID, f, raw, present)
		case FieldLatestScoreFlag:
			o.LatestScoreFlag = n.flag(o.RecordID, f, raw, present)
		case FieldTarget:
			o.Target = n.decimal(o.RecordID, f, raw, present)
		default:
			if slot, ok := measureField(&o, f); ok {
				*slot = n.decimal(o.RecordID, f, raw, present)
				continue
			}
			if present {
				if o.Extra == nil {
					o.Extra = make(map[string]string)
				}
				o.Extra[f] = raw
			}
		}
	}

	return o
}

// measureField maps "<period>_score", "<period>_numerator" and
// "<period>_denominator" onto the observation's measure for that period.
func measureField(o *Observation, field string) (*decimal.NullDecimal, bool) {
	prefix, suffix, ok := strings.Cut(field, "_")
	if !ok {
		return nil, false
	}

	var m *Measure
	switch Period(prefix) {
	case PeriodDay:
		m = &o.Day
	case PeriodWeek:
		m = &o.Week
	case PeriodMonth:
		m = &o.Month
	case PeriodQuarter:
		m = &o.Quarter
	default:
		return nil, false
	}

	switch suffix {
	case "score":
		return &m.Score, true
	case "numerator":
		return &m.Numerator, true
	case "denominator":
		return &m.Denominator, true
	}
	return nil, false
}

func (n *normalizer) decimal(id int64, field, raw string, present bool) decimal.NullDecimal {
	text := strings.TrimSpace(raw)
	if !present || nullTokens[strings.ToLower(text)] {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		n.warn(id, field, raw, "not a decimal")
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func (n *normalizer) timestamp(id int64, field, raw string, present bool) sql.NullTime {
	text := strings.TrimSpace(raw)
	if !present || nullTokens[strings.ToLower(text)] {
		n.warn(id, field, raw, "missing timestamp")
		return sql.NullTime{}
	}

	if t, ok := ParseTimestamp(text); ok {
		return sql.NullTime{Time: t, Valid: true}
	}
	n.warn(id, field, raw, "unrecognised timestamp format")
	return sql.NullTime{}
}

func (n *normalizer) flag(id int64, field, raw string, present bool) sql.NullBool {
	text := strings.TrimSpace(raw)
	if !present || text == "" {
		n.warn(id, field, raw, "missing flag")
		return sql.NullBool{}
	}

	if i, err := strconv.Atoi(text); err == nil {
		switch i {
		case 0:
			return sql.NullBool{Bool: false, Valid: true}
		case 1:
			return sql.NullBool{Bool: true, Valid: true}
		}
	}
	switch strings.ToLower(text) {
	case "true":
		return sql.NullBool{Bool: true, Valid: true}
	case "false":
		return sql.NullBool{Bool: false, Valid: true}
	}

	n.warn(id, field, raw, "flag must be 0 or 1")
	return sql.NullBool{}
}

// ParseTimestamp parses the date-time formats the datastore emits. Values
// without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
