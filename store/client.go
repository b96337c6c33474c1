package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrKeyNotFound = errors.New("key not found")

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, addr, password string, db int, prefix string) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisClientFrom(rdb, prefix), nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(rdb *redis.Client, prefix string) *RedisClient {
	return &RedisClient{
		client: rdb,
		prefix: prefix,
	}
}

func (r *RedisClient) generateKey(keys ...string) string {
	all := make([]string, 0, len(keys)+1)
	if r.prefix != "" {
		all = append(all, r.prefix)
	}
	all = append(all, keys...)
	return strings.Join(all, ":")
}

func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return err
	}

	return json.Unmarshal(data, dest)
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
