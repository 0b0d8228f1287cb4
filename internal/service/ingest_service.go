package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/geo"
	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/SergeiKhy/site-analytics/internal/repository"
	"go.uber.org/zap"
)

// IngestService приём событий трекера
type IngestService interface {
	// Ingest проверяет и сохраняет событие, обновляет сессию и флаги отказов.
	// Шаги выполняются по порядку, первая ошибка прерывает последовательность.
	Ingest(ctx context.Context, req *models.TrackRequest, address string) error
}

type ingestService struct {
	pageViews   repository.PageViewRepository
	sessions    repository.SessionRepository
	rateLimiter RateLimiter
	geo         geo.Lookup
	logger      *zap.Logger
	now         func() time.Time
}

// IngestOption настройка сервиса приёма
type IngestOption func(*ingestService)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) IngestOption {
	return func(s *ingestService) {
		s.now = now
	}
}

// NewIngestService создаёт сервис приёма событий
func NewIngestService(
	pageViews repository.PageViewRepository,
	sessions repository.SessionRepository,
	rateLimiter RateLimiter,
	lookup geo.Lookup,
	logger *zap.Logger,
	opts ...IngestOption,
) IngestService {
	if lookup == nil {
		lookup = geo.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ingestService{
		pageViews:   pageViews,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		geo:         lookup,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ingestService) Ingest(ctx context.Context, req *models.TrackRequest, address string) error {
	if req == nil {
		return fmt.Errorf("%w: missing request body", ErrValidation)
	}
	if strings.TrimSpace(stripNUL(req.PagePath)) == "" || strings.TrimSpace(stripNUL(req.SessionID)) == "" {
		return fmt.Errorf("%w: page_path and session_id are required", ErrValidation)
	}
	if req.TimeOnPage != nil && *req.TimeOnPage < 0 {
		return fmt.Errorf("%w: time_on_page must not be negative", ErrValidation)
	}

	address = strings.TrimSpace(address)
	if address == "" || address == "unknown" {
		return ErrIdentity
	}
	hashedIP := HashIdentity(address)

	now := s.now()

	allowed, err := s.rateLimiter.Admit(ctx, hashedIP, now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !allowed {
		return ErrRateLimited
	}

	ua := ParseUserAgent(req.UserAgent)
	referrerDomain := ReferrerDomain(req.Referrer)

	// Геолокация не обязательна: при ошибке страна остаётся пустой
	var country *string
	if code := s.geo.Country(ctx, address, hashedIP); code != "" {
		country = &code
	}

	path := stripNUL(req.PagePath)
	if !req.IsSection {
		path = models.NormalizePath(path)
	}
	sessionID := truncate(strings.TrimSpace(stripNUL(req.SessionID)), maxSessionIDLength)

	view := &models.PageView{
		PagePath:       truncate(path, maxPathLength),
		PageTitle:      optional(req.PageTitle, maxTitleLength),
		Referrer:       optional(req.Referrer, maxReferrerLength),
		ReferrerDomain: referrerDomain,
		UserAgent:      optional(req.UserAgent, maxUserAgentLength),
		HashedIP:       hashedIP,
		Country:        country,
		DeviceType:     ua.DeviceType,
		Browser:        ua.Browser,
		OS:             ua.OS,
		SessionID:      sessionID,
		TimeOnPage:     req.TimeOnPage,
		IsUpdate:       req.IsUpdate || req.IsFinal,
		CreatedAt:      now,
	}

	if err := s.pageViews.Insert(ctx, view); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	// Обновления времени на странице только добавляют строку
	if view.IsUpdate {
		return nil
	}

	session, err := s.touchSession(ctx, view)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if _, err := s.pageViews.SetSessionBounce(ctx, sessionID, session.IsBounce()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// touchSession увеличивает счётчик существующей сессии или создаёт новую
func (s *ingestService) touchSession(ctx context.Context, view *models.PageView) (*models.VisitorSession, error) {
	session, err := s.sessions.RecordPageView(ctx, view.SessionID, view.CreatedAt)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	// Новая личность определяется один раз, при создании её первой сессии
	seen, err := s.sessions.ExistsForIdentity(ctx, view.HashedIP)
	if err != nil {
		return nil, err
	}

	session = &models.VisitorSession{
		SessionID:    view.SessionID,
		HashedIP:     view.HashedIP,
		Country:      view.Country,
		DeviceType:   view.DeviceType,
		IsNewVisitor: !seen,
		FirstVisitAt: view.CreatedAt,
		LastVisitAt:  view.CreatedAt,
		PageCount:    1,
	}

	err = s.sessions.Create(ctx, session)
	if errors.Is(err, repository.ErrSessionExists) {
		// Сессию успел создать параллельный запрос
		return s.sessions.RecordPageView(ctx, view.SessionID, view.CreatedAt)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Создана сессия посетителя",
		zap.String("session_id", session.SessionID),
		zap.Bool("is_new_visitor", session.IsNewVisitor),
	)

	return session, nil
}
