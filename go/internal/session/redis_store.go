package session

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed session store.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Key      string // Hash key holding the pair, default "boardwalk:session"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr: "localhost:6379",
		Key:  "boardwalk:session",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if key := os.Getenv("REDIS_SESSION_KEY"); key != "" {
		cfg.Key = key
	}
	return cfg
}

const (
	fieldToken   = "token"
	fieldRefresh = "refresh_token"
)

// RedisStore keeps the pair in a Redis hash so several headless clients on
// one host can share a login.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, key: cfg.Key}
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*StoredPair, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if values[fieldToken] == "" {
		return nil, nil
	}
	return &StoredPair{AccessToken: values[fieldToken], RefreshToken: values[fieldRefresh]}, nil
}

func (s *RedisStore) Save(ctx context.Context, pair StoredPair) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key, fieldToken, pair.AccessToken)
	if pair.RefreshToken != "" {
		pipe.HSet(ctx, s.key, fieldRefresh, pair.RefreshToken)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
