package service

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/SergeiKhy/site-analytics/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Компоненты сброса
const (
	ComponentPageViews       = "page_views"
	ComponentVisitorSessions = "visitor_sessions"
	ComponentRateLimits      = "rate_limits"
)

// ResetError сбой очистки одного компонента
type ResetError struct {
	Component string
	Err       error
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("failed to reset %s: %v", e.Component, e.Err)
}

func (e *ResetError) Unwrap() error {
	return e.Err
}

// ResetService безвозвратно удаляет все данные приёма
type ResetService interface {
	Reset(ctx context.Context) (*models.ResetSummary, error)
}

type resetService struct {
	pageViews  repository.PageViewRepository
	sessions   repository.SessionRepository
	rateLimits repository.RateLimitRepository
	logger     *zap.Logger
}

// NewResetService репозитории должны работать с повышенными привилегиями
func NewResetService(
	pageViews repository.PageViewRepository,
	sessions repository.SessionRepository,
	rateLimits repository.RateLimitRepository,
	logger *zap.Logger,
) ResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resetService{
		pageViews:  pageViews,
		sessions:   sessions,
		rateLimits: rateLimits,
		logger:     logger,
	}
}

// Reset очищает таблицы параллельно. Сбой очистки окон лимитов не фатален,
// в сводке такой компонент получает -1.
func (s *resetService) Reset(ctx context.Context) (*models.ResetSummary, error) {
	summary := &models.ResetSummary{}
	var g errgroup.Group

	g.Go(func() error {
		n, err := s.pageViews.DeleteAll(ctx)
		if err != nil {
			return &ResetError{Component: ComponentPageViews, Err: err}
		}
		summary.PageViews = n
		return nil
	})
	g.Go(func() error {
		n, err := s.sessions.DeleteAll(ctx)
		if err != nil {
			return &ResetError{Component: ComponentVisitorSessions, Err: err}
		}
		summary.VisitorSessions = n
		return nil
	})
	g.Go(func() error {
		n, err := s.rateLimits.DeleteAll(ctx)
		if err != nil {
			s.logger.Warn("Failed to reset rate limit windows", zap.Error(err))
			summary.RateLimits = -1
			return nil
		}
		summary.RateLimits = n
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Analytics reset failed", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Analytics data reset",
		zap.Int64("page_views", summary.PageViews),
		zap.Int64("visitor_sessions", summary.VisitorSessions),
		zap.Int64("rate_limits", summary.RateLimits),
	)
	return summary, nil
}
