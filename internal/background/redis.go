package background

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/utils"
)

const redisTaskKeyPrefix = "crawler:task:"

// RedisTaskStore implements TaskStore on Redis so task results survive
// restarts and can be shared between replicas. Entries are JSON with a TTL.
type RedisTaskStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTaskStore connects to Redis and verifies the connection.
func NewRedisTaskStore(cfg *config.Config) (*RedisTaskStore, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = cfg.Redis.Timeout
	opts.ReadTimeout = cfg.Redis.Timeout
	opts.WriteTimeout = cfg.Redis.Timeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	ttl := cfg.Redis.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisTaskStore{client: client, ttl: ttl}, nil
}

// Store stores a task result
func (s *RedisTaskStore) Store(ctx context.Context, result *TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}
	return s.client.Set(ctx, redisTaskKeyPrefix+result.ProcessID, data, s.ttl).Err()
}

// Get retrieves a task result by process ID
func (s *RedisTaskStore) Get(ctx context.Context, processID string) (*TaskResult, error) {
	data, err := s.client.Get(ctx, redisTaskKeyPrefix+processID).Bytes()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	var result TaskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task result: %w", err)
	}
	return &result, nil
}

// Update updates a task result
func (s *RedisTaskStore) Update(ctx context.Context, result *TaskResult) error {
	exists, err := s.client.Exists(ctx, redisTaskKeyPrefix+result.ProcessID).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrTaskNotFound
	}
	return s.Store(ctx, result)
}

// Delete removes a task result
func (s *RedisTaskStore) Delete(ctx context.Context, processID string) error {
	deleted, err := s.client.Del(ctx, redisTaskKeyPrefix+processID).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Cleanup is a no-op: Redis expires entries through the TTL.
func (s *RedisTaskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	return nil
}

// List returns all task results (for monitoring)
func (s *RedisTaskStore) List(ctx context.Context) ([]*TaskResult, error) {
	keys, err := s.client.Keys(ctx, redisTaskKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	results := make([]*TaskResult, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var result TaskResult
		if err := json.Unmarshal(data, &result); err != nil {
			continue
		}
		results = append(results, &result)
	}
	return results, nil
}

// Close releases the Redis connection.
func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}

// NewStoreFromConfig picks the Redis store when enabled and reachable,
// otherwise falls back to in-memory storage.
func NewStoreFromConfig(cfg *config.Config) TaskStore {
	logger := utils.GetLogger()

	if cfg.Redis.Enabled {
		store, err := NewRedisTaskStore(cfg)
		if err == nil {
			logger.Info("Using Redis task store")
			return store
		}
		logger.WithError(err).Warn("Redis task store unavailable, falling back to in-memory store")
	}

	return NewInMemoryTaskStore()
}
