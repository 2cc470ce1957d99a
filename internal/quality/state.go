package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViolationState is the stored record of an open violation.
type ViolationState struct {
	Violation Violation `json:"violation"`
	OpenedAt  time.Time `json:"opened_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// StateStore persists open violations per resource.
type StateStore interface {
	List(ctx context.Context, resourceID string) (map[string]*ViolationState, error)
	Set(ctx context.Context, resourceID, key string, state *ViolationState) error
	Delete(ctx context.Context, resourceID, key string) error
}

// stateTTL lets states of abandoned resources expire on their own.
const stateTTL = 7 * 24 * time.Hour

// RedisStore keeps violation states in Redis so that several server
// processes agree on what is already open.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func stateKey(resourceID, key string) string {
	return fmt.Sprintf("quality_state:%s:%s", resourceID, key)
}

// List returns every open violation for resourceID keyed by Violation.Key.
func (s *RedisStore) List(ctx context.Context, resourceID string) (map[string]*ViolationState, error) {
	prefix := stateKey(resourceID, "")

	var keys []string
	iter := s.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan states in Redis: %w", err)
	}

	states := make(map[string]*ViolationState, len(keys))
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get state from Redis: %w", err)
		}

		var state ViolationState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		states[strings.TrimPrefix(key, prefix)] = &state
	}
	return states, nil
}

func (s *RedisStore) Set(ctx context.Context, resourceID, key string, state *ViolationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.redis.Set(ctx, stateKey(resourceID, key), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, resourceID, key string) error {
	return s.redis.Del(ctx, stateKey(resourceID, key)).Err()
}

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]map[string]ViolationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]map[string]ViolationState)}
}

func (s *MemoryStore) List(_ context.Context, resourceID string) (map[string]*ViolationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*ViolationState, len(s.states[resourceID]))
	for k, v := range s.states[resourceID] {
		out[k] = &v
	}
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, resourceID, key string, state *ViolationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.states[resourceID]
	if !ok {
		m = make(map[string]ViolationState)
		s.states[resourceID] = m
	}
	m[key] = *state
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, resourceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states[resourceID], key)
	return nil
}
