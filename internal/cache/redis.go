package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
)

const keyPrefix = "cityscore:resource:"

var (
	_ opendata.Cache = (*Memory)(nil)
	_ opendata.Cache = (*Redis)(nil)
)

// Redis shares fetched resources between processes. Expiry is delegated to
// Redis; entries also carry their fetch time, and an entry older than the TTL
// is ignored even if Redis still holds it.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis creates a cache backed by client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, now: time.Now}
}

func key(resourceID string) string {
	return keyPrefix + resourceID
}

func (r *Redis) Get(ctx context.Context, resourceID string) (*opendata.Resource, bool, error) {
	data, err := r.client.Get(ctx, key(resourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get resource from Redis: %w", err)
	}

	res, err := opendata.DecodeResource(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached resource: %w", err)
	}
	if r.now().Sub(res.FetchedAt) >= r.ttl {
		return nil, false, nil
	}
	return res, true, nil
}

func (r *Redis) Set(ctx context.Context, res *opendata.Resource) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}

	if err := r.client.Set(ctx, key(res.ResourceID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set resource in Redis: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, resourceID string) error {
	return r.client.Del(ctx, key(resourceID)).Err()
}
