package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// RedisConfig describes how to reach the shared result cache.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// OpenRedis connects to Redis and verifies the connection with a PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is empty", domain.ErrConfigInvalid)
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisResultStore keeps cached responses in Redis as JSON documents.
type RedisResultStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisResultStore wraps an existing client. Keys are namespaced by prefix.
func NewRedisResultStore(client redis.UniversalClient, prefix string) *RedisResultStore {
	if prefix == "" {
		prefix = "toolnexus:result:"
	}
	return &RedisResultStore{client: client, prefix: prefix}
}

// Get loads a cached response.
func (s *RedisResultStore) Get(ctx context.Context, key string) (domain.Response, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Response{}, false, nil
	}
	if err != nil {
		return domain.Response{}, false, fmt.Errorf("redis get: %w", err)
	}

	var resp domain.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Response{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	return resp, true, nil
}

// Set stores a response with an expiry.
func (s *RedisResultStore) Set(ctx context.Context, key string, resp domain.Response, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisResultStore) Close() error {
	return s.client.Close()
}
