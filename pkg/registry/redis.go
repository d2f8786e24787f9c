package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raredx/triage/pkg/phenotype"
	"github.com/redis/go-redis/v9"
)

// KV is the subset of the go-redis client the registry needs.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisRegistry shares match evidence between gateway replicas. Each entry
// is a JSON array so that an empty matched set stays distinguishable from a
// missing key.
type RedisRegistry struct {
	client KV
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client KV, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "match-registry:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) SetMatched(ctx context.Context, token, diseaseName string, codes []string) error {
	payload, err := json.Marshal(phenotype.NewCodeSet(codes...).Sorted())
	if err != nil {
		return fmt.Errorf("encode matched codes: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+Key(token, diseaseName), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store matched codes: %w", err)
	}
	return nil
}

func (r *RedisRegistry) GetMatched(ctx context.Context, token, diseaseName string) (phenotype.CodeSet, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+Key(token, diseaseName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load matched codes: %w", err)
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, false, fmt.Errorf("decode matched codes: %w", err)
	}
	return phenotype.NewCodeSet(codes...), true, nil
}
