package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// DenyUserTokens records a revocation cutoff for the user: access tokens
// issued at or before now are dead. The key lives only as long as the access
// TTL, after which every such token has expired on its own.
func (r *RedisRepo) DenyUserTokens(ctx context.Context, userID int64, ttl time.Duration) error {
	const op = "storage.redis.DenyUserTokens"

	key := denyKey(userID)

	if err := r.client.Set(ctx, key, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TokensDeniedSince returns the user's revocation cutoff, if one is recorded.
func (r *RedisRepo) TokensDeniedSince(ctx context.Context, userID int64) (time.Time, bool, error) {
	const op = "storage.redis.TokensDeniedSince"

	val, err := r.client.Get(ctx, denyKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: %w", op, err)
	}

	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: malformed cutoff: %w", op, err)
	}

	return time.Unix(sec, 0), true, nil
}

func denyKey(userID int64) string {
	return fmt.Sprintf("auth:denied:%d", userID)
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
