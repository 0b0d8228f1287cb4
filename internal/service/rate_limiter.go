package service

import (
	"context"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/repository"
	"go.uber.org/zap"
)

// Параметры окна по умолчанию
const (
	DefaultRateLimitWindow = 60 * time.Second
	DefaultRateLimitMax    = 10
)

// RateLimiter ограничитель частоты с фиксированным окном на хэшированную личность
type RateLimiter interface {
	Admit(ctx context.Context, hashedIP string, now time.Time) (bool, error)
	// Prune удаляет окна, которые уже истекли
	Prune(ctx context.Context, now time.Time) (int64, error)
}

type windowRateLimiter struct {
	repo   repository.RateLimitRepository
	window time.Duration
	limit  int
	logger *zap.Logger
}

// NewRateLimiter создаёт ограничитель. Нулевые параметры заменяются значениями по умолчанию.
func NewRateLimiter(repo repository.RateLimitRepository, window time.Duration, limit int, logger *zap.Logger) RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &windowRateLimiter{
		repo:   repo,
		window: window,
		limit:  limit,
		logger: logger,
	}
}

func (l *windowRateLimiter) Admit(ctx context.Context, hashedIP string, now time.Time) (bool, error) {
	return l.repo.Admit(ctx, hashedIP, now, l.window, l.limit)
}

// Prune окно старше длины окна будет сброшено при следующем запросе, поэтому его можно удалить
func (l *windowRateLimiter) Prune(ctx context.Context, now time.Time) (int64, error) {
	removed, err := l.repo.Prune(ctx, now.Add(-l.window))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.Info("Удалены устаревшие окна лимитов", zap.Int64("removed", removed))
	}
	return removed, nil
}
