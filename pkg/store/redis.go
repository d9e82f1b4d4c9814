package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echo-ai/coach-gateway/pkg/engine"
)

const redisKeyPrefix = "coach:session:"

// Redis is a Store backed by a Redis instance, for deployments where
// session state should survive a gateway restart. State is stored as
// one JSON blob per session; Redis's own key TTL replaces the
// in-memory expiry bookkeeping.
//
// The read-modify-write in Update is not atomic across processes. That
// is fine here: one connection owns one session, so no two writers
// ever race on the same key.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the instance described by a redis:// URL and
// verifies the connection before returning.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, sessionID string) (engine.State, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.State{}, nil
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var st engine.State
	if err := json.Unmarshal(raw, &st); err != nil {
		// A corrupt blob is unrecoverable; start the session fresh.
		return engine.State{}, nil
	}
	return st, nil
}

func (r *Redis) Update(ctx context.Context, sessionID string, delta engine.Delta) error {
	st, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	st.Merge(delta)

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+sessionID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
