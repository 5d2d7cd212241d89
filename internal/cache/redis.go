package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelvault/reelvault/internal/model"
)

const (
	keyListKey = "reelvault:api-keys:list"
	keyGenKey  = "reelvault:api-keys:gen"
)

// Redis is a KeyList shared by every reelvault instance pointing at the
// same redis, so an invalidation on one instance is seen by all.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis parses a redis:// URL, connects, and verifies the server
// answers a PING.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context) ([]model.APIKey, int64, bool, error) {
	vals, err := r.client.MGet(ctx, keyListKey, keyGenKey).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis mget: %w", err)
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var entries []entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, gen, false, fmt.Errorf("decode cached key list: %w", err)
	}
	return fromEntries(entries), gen, true, nil
}

// Set writes the listing in a WATCH transaction on the generation key, so an
// Invalidate from any instance between the check and the write aborts it.
func (r *Redis) Set(ctx context.Context, gen int64, keys []model.APIKey) error {
	data, err := json.Marshal(toEntries(keys))
	if err != nil {
		return fmt.Errorf("encode key list: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, keyGenKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyListKey, data, r.ttl)
			return nil
		})
		return err
	}, keyGenKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, keyGenKey)
		pipe.Del(ctx, keyListKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func parseGen(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cache generation %q: %w", s, err)
	}
	return gen, nil
}

// Ping reports whether redis is reachable, for readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
