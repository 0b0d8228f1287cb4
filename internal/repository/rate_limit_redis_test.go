package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisDB) {
	t.Helper()

	mr := miniredis.RunT(t)
	db, err := NewRedisClient(config.RedisConfig{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return mr, db
}

func TestRedisRateLimit_FixedWindow(t *testing.T) {
	mr, db := setupMiniredis(t)
	ctx := t.Context()
	repo := NewRedisRateLimitRepository(db)

	now := time.Now()
	for i := 0; i < 3; i++ {
		ok, err := repo.Admit(ctx, identity('a'), now, time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := repo.Admit(ctx, identity('a'), now, time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	// Отказ не увеличивает счётчик
	count, err := mr.Get(rateLimitKeyPrefix + identity('a'))
	require.NoError(t, err)
	assert.Equal(t, "3", count)

	mr.FastForward(time.Minute + time.Second)

	ok, err = repo.Admit(ctx, identity('a'), now, time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateLimit_DeleteAll(t *testing.T) {
	mr, db := setupMiniredis(t)
	ctx := t.Context()
	repo := NewRedisRateLimitRepository(db)

	for i := 0; i < 5; i++ {
		_, err := repo.Admit(ctx, fmt.Sprintf("identity-%d", i), time.Now(), time.Minute, 10)
		require.NoError(t, err)
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.True(t, mr.Exists("unrelated"))

	pruned, err := repo.Prune(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestRedisRateLimit_Unavailable(t *testing.T) {
	mr, db := setupMiniredis(t)
	repo := NewRedisRateLimitRepository(db)
	mr.Close()

	_, err := repo.Admit(t.Context(), identity('a'), time.Now(), time.Minute, 3)
	assert.Error(t, err)
}

func TestIntegration_RedisRateLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	ctx := t.Context()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	db, err := NewRedisClient(config.RedisConfig{Host: host, Port: port.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRedisRateLimitRepository(db)
	for i := 0; i < 2; i++ {
		ok, err := repo.Admit(ctx, identity('r'), time.Now(), time.Minute, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := repo.Admit(ctx, identity('r'), time.Now(), time.Minute, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := db.Client.PTTL(ctx, rateLimitKeyPrefix+identity('r')).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
