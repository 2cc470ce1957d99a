package quality

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cityscore"
)

var defs = func() *cityscore.Definitions {
	d, err := cityscore.ParseDefinitions([]byte(`
metrics:
  - name: BFD
    pretty: Fire Response
  - name: PARKS
`))
	if err != nil {
		panic(err)
	}
	return d
}()

func at(s string) sql.NullTime {
	t, _ := time.Parse(time.RFC3339, s)
	return sql.NullTime{Time: t, Valid: true}
}

func flag(b bool) sql.NullBool { return sql.NullBool{Bool: b, Valid: true} }

func cleanTable() *cityscore.Table {
	return cityscore.NewTable("res", nil, []cityscore.Observation{
		{RecordID: 1, MetricName: "BFD", ScoreCalculatedTS: at("2023-03-15T08:00:00Z"), LatestScoreFlag: flag(true)},
		{RecordID: 2, MetricName: "BFD", ScoreCalculatedTS: at("2023-03-14T08:00:00Z"), LatestScoreFlag: flag(false)},
		{RecordID: 3, MetricName: "PARKS", ScoreCalculatedTS: at("2023-03-15T08:00:00Z"), LatestScoreFlag: flag(true)},
	})
}

func dirtyTable() *cityscore.Table {
	return cityscore.NewTable("res", nil, []cityscore.Observation{
		{RecordID: 1, MetricName: "BFD", ScoreCalculatedTS: at("2023-03-15T08:00:00Z"), LatestScoreFlag: flag(true)},
		{RecordID: 4, MetricName: "BFD", ScoreCalculatedTS: at("2023-03-15T08:00:00Z"), LatestScoreFlag: flag(true)},
		{RecordID: 5, MetricName: "PARKS", LatestScoreFlag: flag(false)},
		{RecordID: 6, MetricName: "MYSTERY", ScoreCalculatedTS: at("2023-03-15T08:00:00Z"), LatestScoreFlag: flag(true)},
	})
}

func TestCheck_Clean(t *testing.T) {
	report := Check(cleanTable(), nil, defs)
	assert.True(t, report.Clean())
	assert.Equal(t, 3, report.Rows)
}

func TestCheck_Violations(t *testing.T) {
	warnings := []cityscore.FieldWarning{{RecordID: 5, Field: "day_score", Value: "x", Reason: "not a decimal"}}
	report := Check(dirtyTable(), warnings, defs)

	require.Len(t, report.Violations, 4)
	kinds := make([]Kind, len(report.Violations))
	for i, v := range report.Violations {
		kinds[i] = v.Kind
	}
	assert.Equal(t, []Kind{
		KindDuplicateLatest, KindDuplicateObservation, KindMissingTimestamp, KindUnknownMetric,
	}, kinds)

	dup := report.Violations[0]
	assert.Equal(t, "BFD", dup.Metric)
	assert.Equal(t, []int64{1, 4}, dup.RecordIDs)
	assert.Equal(t, SeverityError, dup.Severity)

	assert.Equal(t, "2023-03-15T08:00:00Z", report.Violations[1].Subject)
	assert.Equal(t, []int64{5}, report.Violations[2].RecordIDs)
	assert.Equal(t, SeverityWarning, report.Violations[3].Severity)
	assert.Equal(t, "MYSTERY", report.Violations[3].Metric)

	assert.Equal(t, warnings, report.Warnings)
	assert.Equal(t, map[string]int{
		"duplicate_latest_flag": 1,
		"duplicate_observation": 1,
		"missing_timestamp":     1,
		"unknown_metric":        1,
		"field_coercion":        1,
	}, report.CountsByKind())
}

func TestCheck_NilDefinitions(t *testing.T) {
	report := Check(dirtyTable(), nil, nil)
	assert.Equal(t, 0, report.Count(KindUnknownMetric))
}

func testTracker(t *testing.T, store StateStore) {
	ctx := context.Background()
	tracker := NewTracker(store, nil)

	transitions, err := tracker.Observe(ctx, "res", Check(dirtyTable(), nil, defs))
	require.NoError(t, err)
	require.Len(t, transitions, 4)
	for _, tr := range transitions {
		assert.Equal(t, ViolationOpened, tr.Type)
		assert.Equal(t, "res", tr.ResourceID)
	}

	// Same problems again: nothing new.
	transitions, err = tracker.Observe(ctx, "res", Check(dirtyTable(), nil, defs))
	require.NoError(t, err)
	assert.Empty(t, transitions)

	transitions, err = tracker.Observe(ctx, "res", Check(cleanTable(), nil, defs))
	require.NoError(t, err)
	require.Len(t, transitions, 4)
	for _, tr := range transitions {
		assert.Equal(t, ViolationResolved, tr.Type)
		assert.False(t, tr.OpenedAt.IsZero())
	}

	open, err := store.List(ctx, "res")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTracker_MemoryStore(t *testing.T) {
	testTracker(t, NewMemoryStore())
}

func TestTracker_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	testTracker(t, NewRedisStore(client))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client)
	ctx := context.Background()

	v := Violation{Kind: KindMissingTimestamp, Metric: "BFD"}
	require.NoError(t, store.Set(ctx, "res", v.Key(), &ViolationState{Violation: v}))
	assert.Equal(t, 7*24*time.Hour, mr.TTL("quality_state:res:"+v.Key()))

	states, err := store.List(ctx, "res")
	require.NoError(t, err)
	require.Contains(t, states, v.Key())
	assert.Equal(t, "BFD", states[v.Key()].Violation.Metric)

	other, err := store.List(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}
