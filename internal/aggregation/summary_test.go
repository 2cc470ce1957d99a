package aggregation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

func dec(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestSummarize_ExcludesUnknown(t *testing.T) {
	base := cityscore.NewTable("res", nil, []cityscore.Observation{
		{RecordID: 1, MetricName: "PARKS", ScoreCalculatedTS: ts("2023-03-15T08:00:00Z"), Day: cityscore.Measure{Score: dec("0.5")}},
		{RecordID: 2, MetricName: "BFD", ScoreCalculatedTS: ts("2023-03-15T08:00:00Z"), Day: cityscore.Measure{Score: dec("1.0")}},
		{RecordID: 3, MetricName: "BFD", ScoreCalculatedTS: ts("2023-03-10T08:00:00Z"), Day: cityscore.Measure{Score: dec("")}},
		{RecordID: 4, MetricName: "BFD", ScoreCalculatedTS: ts("2023-03-12T08:00:00Z"), Day: cityscore.Measure{Score: dec("0.5")}},
		{RecordID: 5, MetricName: "BFD"},
	})

	summaries := Summarize(Derive(base))
	require.Len(t, summaries, 2)
	assert.Equal(t, "BFD", summaries[0].MetricName)
	assert.Equal(t, "PARKS", summaries[1].MetricName)

	bfd := summaries[0]
	assert.Equal(t, 4, bfd.Rows)
	assert.Equal(t, ymd(2023, 3, 9), bfd.FirstDay.Time)
	assert.Equal(t, ymd(2023, 3, 14), bfd.LastDay.Time)

	day := bfd.Scores[cityscore.PeriodDay]
	assert.Equal(t, 2, day.Count)
	assert.Equal(t, "0.5", day.Min.Decimal.String())
	assert.Equal(t, "1", day.Max.Decimal.String())
	assert.Equal(t, "0.75", day.Mean.Decimal.String())

	week := bfd.Scores[cityscore.PeriodWeek]
	assert.Equal(t, 0, week.Count)
	assert.False(t, week.Mean.Valid)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Empty(t, Summarize(cityscore.NewTable("res", nil, nil)))
}
