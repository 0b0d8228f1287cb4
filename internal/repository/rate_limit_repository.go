package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/jackc/pgx/v5"
)

// RateLimitRepository хранилище окон ограничения частоты по хэшированной личности
type RateLimitRepository interface {
	// Admit атомарно применяет один запрос к окну и возвращает решение
	Admit(ctx context.Context, hashedIP string, now time.Time, window time.Duration, limit int) (bool, error)
	// Prune удаляет окна, начатые раньше before
	Prune(ctx context.Context, before time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type rateLimitRepository struct {
	db Conn
}

func NewRateLimitRepository(db Conn) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

// Admit выполняется в одной транзакции: строка окна блокируется FOR UPDATE,
// поэтому параллельные запросы одной личности не превышают лимит.
func (r *rateLimitRepository) Admit(ctx context.Context, hashedIP string, now time.Time, window time.Duration, limit int) (bool, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return false, err
	}

	allowed := false
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rate_limits (hashed_ip, request_count, window_start, updated_at)
			VALUES ($1, 0, $2, $2)
			ON CONFLICT (hashed_ip) DO NOTHING
		`, hashedIP, now)
		if err != nil {
			return fmt.Errorf("failed to create rate limit window: %w", err)
		}

		current := models.RateLimitWindow{HashedIP: hashedIP}
		err = tx.QueryRow(ctx, `
			SELECT request_count, window_start
			FROM rate_limits
			WHERE hashed_ip = $1
			FOR UPDATE
		`, hashedIP).Scan(&current.RequestCount, &current.WindowStart)
		if err != nil {
			return fmt.Errorf("failed to read rate limit window: %w", err)
		}

		next, ok := current.Admit(now, window, limit)
		if !ok {
			return nil
		}
		allowed = true

		_, err = tx.Exec(ctx, `
			UPDATE rate_limits
			SET request_count = $2, window_start = $3, updated_at = $4
			WHERE hashed_ip = $1
		`, hashedIP, next.RequestCount, next.WindowStart, now)
		if err != nil {
			return fmt.Errorf("failed to update rate limit window: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return allowed, nil
}

func (r *rateLimitRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return 0, err
	}

	result, err := pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate limits: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *rateLimitRepository) DeleteAll(ctx context.Context) (int64, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return 0, err
	}

	result, err := pool.Exec(ctx, `DELETE FROM rate_limits`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rate limits: %w", err)
	}

	return result.RowsAffected(), nil
}
