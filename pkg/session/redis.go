package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raredx/triage/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// KV is the subset of the go-redis client the store needs.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps one JSON blob per token. Redis expiry bounds storage, and
// the snapshot timestamp is checked again on read.
type RedisStore struct {
	client  KV
	prefix  string
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewRedisStore(client KV, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "triage-session:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, nowFunc: time.Now}
}

func (s *RedisStore) Save(ctx context.Context, snapshot models.SessionSnapshot) error {
	if strings.TrimSpace(snapshot.Token) == "" {
		return errors.New("snapshot token is required")
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = s.nowFunc()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+snapshot.Token, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, token string) (models.SessionSnapshot, error) {
	raw, err := s.client.Get(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return models.SessionSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return models.SessionSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snapshot models.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return models.SessionSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if !Valid(snapshot, s.ttl, s.nowFunc()) {
		_ = s.client.Del(ctx, s.prefix+token).Err()
		return models.SessionSnapshot{}, ErrSnapshotNotFound
	}
	return snapshot, nil
}
