package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"renterchat/internal/config"
	"renterchat/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each client memory as one JSON value
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from configuration
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// NewRedisBackend wraps a Redis client. A positive ttl is applied on every save.
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "renterchat:memory:"
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

// Name implements Backend
func (b *RedisBackend) Name() string {
	return "redis"
}

// Ping tests the Redis connection
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Load implements Backend
func (b *RedisBackend) Load(ctx context.Context, clientID string) (*model.ClientMemory, error) {
	raw, err := b.client.Get(ctx, b.key(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memory for %s: %w", clientID, err)
	}

	var mem model.ClientMemory
	if err := json.Unmarshal(raw, &mem); err != nil {
		return nil, fmt.Errorf("failed to decode memory for %s: %w", clientID, err)
	}
	if mem.Preferences == nil {
		mem.Preferences = model.PreferenceSet{}
	}
	if mem.Turns == nil {
		mem.Turns = []model.Turn{}
	}
	return &mem, nil
}

// Save implements Backend
func (b *RedisBackend) Save(ctx context.Context, mem *model.ClientMemory) error {
	raw, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("failed to encode memory for %s: %w", mem.ClientID, err)
	}
	if err := b.client.Set(ctx, b.key(mem.ClientID), raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save memory for %s: %w", mem.ClientID, err)
	}
	return nil
}

// Delete implements Backend
func (b *RedisBackend) Delete(ctx context.Context, clientID string) error {
	n, err := b.client.Del(ctx, b.key(clientID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete memory for %s: %w", clientID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements Backend
func (b *RedisBackend) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), b.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan memories: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *RedisBackend) key(clientID string) string {
	return b.prefix + clientID
}
