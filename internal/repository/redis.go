package repository

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisDB подключение к Redis для окон ограничения частоты
type RedisDB struct {
	Client *redis.Client
}

// NewRedisClient таймауты короткие: каждый запрос на приём событий проходит через Redis
func NewRedisClient(cfg config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", client.Options().Addr, err)
	}

	return &RedisDB{Client: client}, nil
}

func (db *RedisDB) Close() error {
	return db.Client.Close()
}
