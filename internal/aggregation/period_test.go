package aggregation

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
)

func ts(s string) sql.NullTime {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return sql.NullTime{Time: t, Valid: true}
}

func ymd(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDerivePeriods(t *testing.T) {
	cases := []struct {
		name    string
		ts      string
		day     time.Time
		week    time.Time
		month   time.Time
		quarter time.Time
		year    int32
	}{
		{
			name: "mid quarter", ts: "2023-03-15T08:00:00Z",
			day: ymd(2023, 3, 14), week: ymd(2023, 3, 5), month: ymd(2023, 2, 1),
			quarter: ymd(2022, 10, 1), year: 2023,
		},
		{
			name: "first of month shifts into previous month", ts: "2023-03-01T06:00:00Z",
			day: ymd(2023, 2, 28), week: ymd(2023, 2, 19), month: ymd(2023, 1, 1),
			quarter: ymd(2022, 10, 1), year: 2023,
		},
		{
			name: "leap day", ts: "2024-03-01T00:00:00Z",
			day: ymd(2024, 2, 29), week: ymd(2024, 2, 18), month: ymd(2024, 1, 1),
			quarter: ymd(2023, 10, 1), year: 2024,
		},
		{
			name: "new year", ts: "2024-01-01T12:00:00Z",
			day: ymd(2023, 12, 31), week: ymd(2023, 12, 24), month: ymd(2023, 11, 1),
			quarter: ymd(2023, 7, 1), year: 2023,
		},
		{
			name: "quarter boundary", ts: "2023-07-01T09:30:00Z",
			day: ymd(2023, 6, 30), week: ymd(2023, 6, 18), month: ymd(2023, 5, 1),
			quarter: ymd(2023, 1, 1), year: 2023,
		},
		{
			name: "day is a sunday", ts: "2023-03-13T08:00:00Z",
			day: ymd(2023, 3, 12), week: ymd(2023, 3, 5), month: ymd(2023, 2, 1),
			quarter: ymd(2022, 10, 1), year: 2023,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := DerivePeriods(ts(tc.ts))
			assert.Equal(t, tc.day, b.Day.Time)
			assert.Equal(t, tc.week, b.Week.Time)
			assert.Equal(t, tc.month, b.Month.Time)
			assert.Equal(t, tc.quarter, b.Quarter.Time)
			assert.Equal(t, tc.year, b.Year.Int32)
			assert.Equal(t, time.Sunday, b.Week.Time.Weekday())
		})
	}
}

func TestDerivePeriods_Unknown(t *testing.T) {
	b := DerivePeriods(sql.NullTime{})
	assert.Equal(t, cityscore.Buckets{}, b)
}

// Every valid timestamp across several years lands in buckets that bracket
// the previous period of its shifted day.
func TestDerivePeriods_Bounds(t *testing.T) {
	start := time.Date(2019, 12, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 5*366; i++ {
		at := start.AddDate(0, 0, i)
		b := DerivePeriods(sql.NullTime{Time: at, Valid: true})
		day := b.Day.Time

		y, m, d := at.Date()
		require.Equal(t, time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC), day, at)

		// week is one week before the week containing day
		current := b.Week.Time.AddDate(0, 0, 7)
		require.False(t, day.Before(current), at)
		require.True(t, day.Before(current.AddDate(0, 0, 7)), at)

		current = b.Month.Time.AddDate(0, 1, 0)
		require.False(t, day.Before(current), at)
		require.True(t, day.Before(current.AddDate(0, 1, 0)), at)

		current = b.Quarter.Time.AddDate(0, 3, 0)
		require.False(t, day.Before(current), at)
		require.True(t, day.Before(current.AddDate(0, 3, 0)), at)
		require.Contains(t, []time.Month{time.January, time.April, time.July, time.October}, b.Quarter.Time.Month())
	}
}

func TestDerive_ScenarioAndIdempotence(t *testing.T) {
	res := &opendata.Resource{
		ResourceID: "res",
		Fields:     []string{"_id", "metric_name", "target", "day_score", "score_calculated_ts", "latest_score_flag"},
		Records: []opendata.Record{
			{"_id": json.Number("1"), "metric_name": "BFD", "target": "1.0", "day_score": "0.95",
				"score_calculated_ts": "2023-03-15T08:00:00Z", "latest_score_flag": "1"},
			{"_id": json.Number("2"), "metric_name": "BFD", "target": "1.0", "day_score": "",
				"score_calculated_ts": "2023-03-14T08:00:00Z", "latest_score_flag": "0"},
		},
	}

	build := func() *cityscore.Table {
		table, warnings := cityscore.Normalize(res)
		require.Empty(t, warnings)
		return Derive(table)
	}

	table := build()
	row := table.Rows()[0]
	assert.Equal(t, "1", row.Target.Decimal.String())
	assert.Equal(t, "0.95", row.Day.Score.Decimal.String())
	assert.True(t, row.IsLatest())
	assert.Equal(t, ymd(2023, 3, 14), row.Buckets.Day.Time)
	assert.Equal(t, ymd(2023, 2, 1), row.Buckets.Month.Time)
	assert.Equal(t, ymd(2022, 10, 1), row.Buckets.Quarter.Time)
	assert.False(t, table.Rows()[1].Day.Score.Valid)

	var a, b bytes.Buffer
	require.NoError(t, table.WriteCSV(&a))
	require.NoError(t, build().WriteCSV(&b))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestDerive_LeavesInputUntouched(t *testing.T) {
	base := cityscore.NewTable("res", nil, []cityscore.Observation{
		{RecordID: 1, ScoreCalculatedTS: ts("2023-03-15T08:00:00Z")},
	})
	derived := Derive(base)

	assert.False(t, base.Rows()[0].Buckets.Day.Valid)
	assert.True(t, derived.Rows()[0].Buckets.Day.Valid)
}
