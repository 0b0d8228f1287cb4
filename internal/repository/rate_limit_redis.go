package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// admitScript: отказ без изменения счётчика, если лимит исчерпан;
// окно начинается с первого запроса и истекает по TTL ключа.
var admitScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
	return 0
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

type redisRateLimitRepository struct {
	redis *RedisDB
}

// NewRedisRateLimitRepository окна хранятся как ключи с TTL, очистка не нужна
func NewRedisRateLimitRepository(redis *RedisDB) RateLimitRepository {
	return &redisRateLimitRepository{redis: redis}
}

// Admit время окна отсчитывает Redis, аргумент now не используется
func (r *redisRateLimitRepository) Admit(ctx context.Context, hashedIP string, _ time.Time, window time.Duration, limit int) (bool, error) {
	res, err := admitScript.Run(ctx, r.redis.Client, []string{r.key(hashedIP)}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return res == 1, nil
}

func (r *redisRateLimitRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *redisRateLimitRepository) DeleteAll(ctx context.Context) (int64, error) {
	var deleted int64
	iter := r.redis.Client.Scan(ctx, 0, rateLimitKeyPrefix+"*", 500).Iterator()

	batch := make([]string, 0, 500)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.redis.Client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete rate limits: %w", err)
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan rate limits: %w", err)
	}
	if err := flush(); err != nil {
		return deleted, err
	}

	return deleted, nil
}

func (r *redisRateLimitRepository) key(hashedIP string) string {
	return rateLimitKeyPrefix + hashedIP
}
