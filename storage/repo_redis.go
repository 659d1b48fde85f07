package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "turf"

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores values in Redis so several client processes on one
// machine (CLI and local server) share a single session.
type RedisRepo struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisRepoOption func(*RedisRepo)

// WithPrefix namespaces every key as "<prefix>:<key>"
func WithPrefix(prefix string) RedisRepoOption {
	return func(r *RedisRepo) {
		r.prefix = prefix
	}
}

// WithTTL expires stored values after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisRepoOption {
	return func(r *RedisRepo) {
		r.ttl = ttl
	}
}

func NewRedisRepo(redisClient *redis.Client, options ...RedisRepoOption) (*RedisRepo, error) {
	if redisClient == nil {
		return nil, errors.New("[NewRedisRepo] redis client is required")
	}
	r := &RedisRepo{
		redis:  redisClient,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *RedisRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	value, err := r.redis.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo.Get] %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisRepo) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := r.redis.Set(ctx, r.redisKey(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("[RedisRepo.Set] %s: %w", key, err)
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := r.redis.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("[RedisRepo.Delete] %s: %w", key, err)
	}
	return nil
}

func (r *RedisRepo) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}
