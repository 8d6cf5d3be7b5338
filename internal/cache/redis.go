package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Redis stores JSON-encoded values with a server-side expiry. Any Redis or
// decode error is reported as a miss.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis[V any](client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *Redis[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis[V]{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var out V
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		r.log.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		var zero V
		return zero, false
	}
	return out, true
}

func (r *Redis[V]) Put(ctx context.Context, key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.log.Warn("cache put failed", zap.String("key", key), zap.Error(err))
	}
}
