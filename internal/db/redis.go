package db

import (
	"context"
	"time"

	"github.com/Eiffelllll/Activiti/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the rate limiter's Redis.
func NewRedisClient(c config.RedisConfig) (*redis.Client, error) {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
