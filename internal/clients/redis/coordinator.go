package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shopchat/autoreply-backend/internal/autoerr"
	"github.com/shopchat/autoreply-backend/internal/logger"
)

// Coordinator is the narrow slice of the coordination store the engine
// needs: atomic set-if-absent with TTL, plain get/delete, and list
// push/pop/trim for the event queue, poison list and failure side-channel.
// All cross-process exclusion runs through these primitives; nothing in
// the engine holds an in-process lock.
type Coordinator interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	PushList(ctx context.Context, key string, values ...string) error
	PopList(ctx context.Context, key string) (string, bool, error)
	TrimList(ctx context.Context, key string, maxLen int64) error
	Close() error
}

type coordinator struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewCoordinator(log *logger.Logger) (Coordinator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &coordinator{
		log: log.With("service", "RedisCoordinator"),
		rdb: rdb,
	}, nil
}

func (c *coordinator) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w: %w", key, autoerr.ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (c *coordinator) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w: %w", key, autoerr.ErrStoreUnavailable, err)
	}
	return val, true, nil
}

func (c *coordinator) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w: %w", key, autoerr.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (c *coordinator) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w: %w", autoerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *coordinator) PushList(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	if err := c.rdb.RPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w: %w", key, autoerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *coordinator) PopList(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.LPop(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis lpop %s: %w: %w", key, autoerr.ErrStoreUnavailable, err)
	}
	return val, true, nil
}

func (c *coordinator) TrimList(ctx context.Context, key string, maxLen int64) error {
	if err := c.rdb.LTrim(ctx, key, -maxLen, -1).Err(); err != nil {
		return fmt.Errorf("redis ltrim %s: %w: %w", key, autoerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *coordinator) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
