package database

import (
	"fmt"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/avatarchat/internal/config"
)

// NewRedis connects and pings so a dead server fails startup instead of
// every archive write.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Pass,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
