package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLiveKey is the Redis hash holding live and in-flight entries.
const DefaultLiveKey = "cadence:live"

// RedisLiveStore snapshots live and in-flight communications into a Redis hash
// keyed by communication id.
type RedisLiveStore struct {
	client *redis.Client
	key    string
}

// NewRedisLiveStore creates a live store on the given hash key.
func NewRedisLiveStore(client *redis.Client, key string) *RedisLiveStore {
	if key == "" {
		key = DefaultLiveKey
	}
	return &RedisLiveStore{client: client, key: key}
}

// Save writes the current state of a communication.
func (s *RedisLiveStore) Save(ctx context.Context, c *domain.Communication) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode live entry %s: %w", c.ID, err)
	}
	if err := s.client.HSet(ctx, s.key, c.ID.String(), data).Err(); err != nil {
		return fmt.Errorf("save live entry %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes a communication that left the live and in-flight sets.
func (s *RedisLiveStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.HDel(ctx, s.key, id.String()).Err(); err != nil {
		return fmt.Errorf("delete live entry %s: %w", id, err)
	}
	return nil
}

// Load returns one stored entry.
func (s *RedisLiveStore) Load(ctx context.Context, id uuid.UUID) (*domain.Communication, error) {
	data, err := s.client.HGet(ctx, s.key, id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load live entry %s: %w", id, err)
	}
	var c domain.Communication
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode live entry %s: %w", id, err)
	}
	return &c, nil
}

// LoadAll returns every stored entry ordered by ScheduledFor.
// Entries that fail to decode are skipped and reported in the error.
func (s *RedisLiveStore) LoadAll(ctx context.Context) ([]*domain.Communication, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load live entries: %w", err)
	}

	result := make([]*domain.Communication, 0, len(raw))
	var bad []string
	for id, data := range raw {
		var c domain.Communication
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			bad = append(bad, id)
			continue
		}
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	if len(bad) > 0 {
		sort.Strings(bad)
		return result, fmt.Errorf("skipped %d undecodable live entries: %v", len(bad), bad)
	}
	return result, nil
}

// Clear drops the whole snapshot.
func (s *RedisLiveStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
