// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hottier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// RedisConfig holds the connection parameters for a single Redis
// node.
type RedisConfig struct {
	Address  string
	Password string
	DB       int

	// DialTimeout bounds connection establishment and the startup
	// ping. Zero means five seconds.
	DialTimeout time.Duration
}

// RedisBackend is a Backend on a Redis server. Multi-key writes run
// in MULTI/EXEC; Replace uses SET XX KEEPTTL.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend connects to Redis and verifies the connection with
// PING.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: redis address is required", contextentry.ErrValidation)
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, contextentry.BackendError("redis", "ping "+cfg.Address, err)
	}
	return &RedisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client. The backend
// takes ownership: Close closes the client.
func NewRedisBackendFromClient(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Put(ctx context.Context, ttl time.Duration, items ...Item) error {
	if ttl <= 0 {
		// SET with a zero expiration means "never expire", which the
		// hot tier must not do.
		return fmt.Errorf("%w: hot tier ttl must be positive, got %s", contextentry.ErrValidation, ttl)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range items {
			pipe.Set(ctx, item.Key, item.Value, ttl)
		}
		return nil
	})
	return contextentry.BackendError("redis", "put", err)
}

func (r *RedisBackend) Replace(ctx context.Context, key string, value []byte) error {
	err := r.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("hot key %q: %w", key, contextentry.ErrNotFound)
	}
	return contextentry.BackendError("redis", "replace", err)
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("hot key %q: %w", key, contextentry.ErrNotFound)
	}
	if err != nil {
		return nil, contextentry.BackendError("redis", "get", err)
	}
	return value, nil
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return contextentry.BackendError("redis", "delete", r.client.Del(ctx, keys...).Err())
}

func (r *RedisBackend) Scan(ctx context.Context, prefix, cursor string, count int) ([]string, string, error) {
	var position uint64
	if cursor != "" {
		var err error
		position, err = strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid scan cursor %q", contextentry.ErrValidation, cursor)
		}
	}
	if count <= 0 {
		count = 10
	}

	keys, next, err := r.client.Scan(ctx, position, escapeGlob(prefix)+"*", int64(count)).Result()
	if err != nil {
		return nil, "", contextentry.BackendError("redis", "scan", err)
	}
	if next == 0 {
		return keys, "", nil
	}
	return keys, strconv.FormatUint(next, 10), nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern
// syntax, so ids are matched literally.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var builder strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			builder.WriteByte('\\')
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
