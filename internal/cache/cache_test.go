package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
)

func testResource(fetchedAt time.Time) *opendata.Resource {
	return &opendata.Resource{
		ResourceID: "res-1",
		Fields:     []string{"_id", "metric_name", "day_score"},
		Records: []opendata.Record{
			{"_id": json.Number("1"), "metric_name": "BFD", "day_score": json.Number("0.95")},
		},
		Total:     1,
		Pages:     1,
		FetchedAt: fetchedAt,
	}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2023, 3, 15, 8, 0, 0, 0, time.UTC)
	c := NewMemory(time.Hour).WithClock(func() time.Time { return now })

	_, ok, err := c.Get(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, testResource(now)))

	now = now.Add(59 * time.Minute)
	got, ok, err := c.Get(ctx, "res-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "res-1", got.ResourceID)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry at TTL age is expired")
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)
	require.NoError(t, c.Set(ctx, testResource(time.Now())))
	require.NoError(t, c.Delete(ctx, "res-1"))

	_, ok, _ := c.Get(ctx, "res-1")
	assert.False(t, ok)
}

func newRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, ttl), mr
}

func TestRedis_RoundTripKeepsNumbers(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t, time.Hour)

	require.NoError(t, c.Set(ctx, testResource(time.Now())))
	assert.True(t, mr.Exists("cityscore:resource:res-1"))
	assert.Equal(t, time.Hour, mr.TTL("cityscore:resource:res-1"))

	got, ok, err := c.Get(ctx, "res-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Records, 1)
	assert.Equal(t, json.Number("0.95"), got.Records[0]["day_score"])
	id, ok := got.Records[0].ID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t, time.Hour)

	require.NoError(t, c.Set(ctx, testResource(time.Now())))
	mr.FastForward(time.Hour)

	_, ok, err := c.Get(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_StaleFetchTimeIgnored(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedis(t, time.Hour)

	require.NoError(t, c.Set(ctx, testResource(time.Now().Add(-2*time.Hour))))
	_, ok, err := c.Get(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Delete(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t, time.Hour)

	require.NoError(t, c.Set(ctx, testResource(time.Now())))
	require.NoError(t, c.Delete(ctx, "res-1"))
	assert.False(t, mr.Exists("cityscore:resource:res-1"))
}

func TestRedis_Unavailable(t *testing.T) {
	c, mr := newRedis(t, time.Hour)
	mr.Close()

	_, _, err := c.Get(context.Background(), "res-1")
	assert.Error(t, err)
}
