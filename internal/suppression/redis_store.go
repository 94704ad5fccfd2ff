package suppression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "suppress:"

// RedisStore keeps suppression history in redis, one JSON-encoded
// timestamp list per key with the retention window as TTL. Useful when
// several schedulers share suppression state.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// History returns the recorded timestamps for a key.
func (s *RedisStore) History(ctx context.Context, key string) ([]time.Time, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get suppression history: %w", err)
	}

	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// Corrupt value resets this key's history.
		return nil, nil
	}

	times := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		ts, parseErr := time.Parse(time.RFC3339, entry)
		if parseErr != nil {
			continue
		}
		times = append(times, ts)
	}
	return times, nil
}

// Append records one firing, prunes entries past the retention window, and
// refreshes the key TTL.
func (s *RedisStore) Append(ctx context.Context, key string, ts time.Time, retention time.Duration) error {
	history, err := s.History(ctx, key)
	if err != nil {
		return err
	}

	cutoff := ts.Add(-retention)
	entries := make([]string, 0, len(history)+1)
	for _, old := range history {
		if old.After(cutoff) {
			entries = append(entries, old.UTC().Format(time.RFC3339))
		}
	}
	entries = append(entries, ts.UTC().Format(time.RFC3339))

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal suppression history: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, data, retention).Err(); err != nil {
		return fmt.Errorf("set suppression history: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
