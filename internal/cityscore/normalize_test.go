package cityscore

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
)

var sourceFields = []string{
	"_id", "metric_name", "metric_logic", "day_score", "day_numerator", "day_denominator",
	"week_score", "month_score", "quarter_score", "target", "score_calculated_ts",
	"latest_score_flag",
}

func record(id int, kv ...any) opendata.Record {
	r := opendata.Record{"_id": json.Number(strconv.Itoa(id))}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = kv[i+1]
	}
	return r
}

func TestNormalize_TypedRow(t *testing.T) {
	res := &opendata.Resource{
		ResourceID: "res",
		Fields:     sourceFields,
		Records: []opendata.Record{record(7,
			"metric_name", "BFD RESPONSE TIME",
			"metric_logic", "lower is better",
			"day_score", json.Number("0.95"),
			"day_numerator", json.Number("19"),
			"day_denominator", "20",
			"week_score", "NaN",
			"target", json.Number("1.0"),
			"score_calculated_ts", "2023-03-15T08:00:00Z",
			"latest_score_flag", json.Number("1"),
		)},
	}

	table, warnings := Normalize(res)
	require.Equal(t, 1, table.Len())
	assert.Empty(t, warnings)

	o := table.Rows()[0]
	assert.Equal(t, int64(7), o.RecordID)
	assert.Equal(t, "BFD RESPONSE TIME", o.MetricName)
	assert.Equal(t, "lower is better", o.MetricLogic)
	assert.True(t, o.Day.Score.Valid)
	assert.True(t, o.Day.Score.Decimal.Equal(decimal.RequireFromString("0.95")))
	assert.True(t, o.Day.Denominator.Decimal.Equal(decimal.NewFromInt(20)))
	assert.False(t, o.Week.Score.Valid, "NaN is unknown")
	assert.False(t, o.Month.Score.Valid, "absent is unknown")
	assert.True(t, o.Target.Decimal.Equal(decimal.NewFromInt(1)))
	assert.True(t, o.ScoreCalculatedTS.Valid)
	assert.Equal(t, time.Date(2023, 3, 15, 8, 0, 0, 0, time.UTC), o.ScoreCalculatedTS.Time)
	assert.True(t, o.IsLatest())
	assert.False(t, o.Buckets.Day.Valid, "buckets are derived later")
}

func TestNormalize_EmptyScoreIsUnknown(t *testing.T) {
	res := &opendata.Resource{
		Fields: sourceFields,
		Records: []opendata.Record{record(1,
			"metric_name", "LIBRARY USERS",
			"day_score", "",
			"score_calculated_ts", "2023-03-15T08:00:00",
			"latest_score_flag", json.Number("0"),
		)},
	}

	table, warnings := Normalize(res)
	require.Equal(t, 1, table.Len())
	assert.Empty(t, warnings)

	o := table.Rows()[0]
	assert.False(t, o.Day.Score.Valid)
	assert.True(t, o.LatestScoreFlag.Valid)
	assert.False(t, o.IsLatest())
}

func TestNormalize_WarningsKeepRow(t *testing.T) {
	res := &opendata.Resource{
		Fields: sourceFields,
		Records: []opendata.Record{
			record(1, "metric_name", "A", "day_score", "high", "score_calculated_ts", "yesterday",
				"latest_score_flag", "2"),
			record(2, "metric_name", "B", "latest_score_flag", json.Number("1")),
		},
	}

	table, warnings := Normalize(res)
	require.Equal(t, 2, table.Len())

	type key struct {
		id    int64
		field string
	}
	got := make(map[key]string)
	for _, w := range warnings {
		got[key{w.RecordID, w.Field}] = w.Reason
	}
	assert.Equal(t, "not a decimal", got[key{1, "day_score"}])
	assert.Equal(t, "unrecognised timestamp format", got[key{1, "score_calculated_ts"}])
	assert.Equal(t, "flag must be 0 or 1", got[key{1, "latest_score_flag"}])
	assert.Equal(t, "missing timestamp", got[key{2, "score_calculated_ts"}])

	rows := table.Rows()
	assert.False(t, rows[0].Day.Score.Valid)
	assert.False(t, rows[0].LatestScoreFlag.Valid)
	assert.False(t, rows[1].ScoreCalculatedTS.Valid)
}

func TestNormalize_ExtraFieldsKept(t *testing.T) {
	res := &opendata.Resource{
		Fields:  []string{"_id", "metric_name", "notes"},
		Records: []opendata.Record{record(3, "metric_name", "X", "notes", "hello")},
	}
	table, _ := Normalize(res)
	assert.Equal(t, "hello", table.Rows()[0].Extra["notes"])
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2023-03-15T08:00:00Z", time.Date(2023, 3, 15, 8, 0, 0, 0, time.UTC), true},
		{"2023-03-15T08:00:00.123", time.Date(2023, 3, 15, 8, 0, 0, 123000000, time.UTC), true},
		{"2023-03-15 08:00:00", time.Date(2023, 3, 15, 8, 0, 0, 0, time.UTC), true},
		{"2023-03-15", time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"15/03/2023", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tc.in)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.True(t, tc.want.Equal(got), "got %v", got)
			}
		})
	}
}
