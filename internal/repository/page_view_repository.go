package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PageViewRepository interface {
	Insert(ctx context.Context, view *models.PageView) error
	SetSessionBounce(ctx context.Context, sessionID string, bounce bool) (int64, error)
	List(ctx context.Context, since time.Time) ([]models.PageView, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type pageViewRepository struct {
	db Conn
}

func NewPageViewRepository(db Conn) PageViewRepository {
	return &pageViewRepository{db: db}
}

func (r *pageViewRepository) Insert(ctx context.Context, view *models.PageView) error {
	pool, err := r.db.Conn()
	if err != nil {
		return err
	}

	if view.ID == "" {
		view.ID = uuid.NewString()
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO page_views (
			id, page_path, page_title, referrer, referrer_domain, user_agent,
			hashed_ip, country, device_type, browser, os, session_id,
			time_on_page, is_update, is_bounce, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = pool.Exec(ctx, query,
		view.ID,
		view.PagePath,
		view.PageTitle,
		view.Referrer,
		view.ReferrerDomain,
		view.UserAgent,
		view.HashedIP,
		view.Country,
		view.DeviceType,
		view.Browser,
		view.OS,
		view.SessionID,
		view.TimeOnPage,
		view.IsUpdate,
		view.IsBounce,
		view.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert page view: %w", err)
	}

	return nil
}

// SetSessionBounce выставляет is_bounce для всех событий сессии.
// Переписываются только строки с отличающимся значением.
func (r *pageViewRepository) SetSessionBounce(ctx context.Context, sessionID string, bounce bool) (int64, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE page_views
		SET is_bounce = $2
		WHERE session_id = $1 AND is_bounce IS DISTINCT FROM $2
	`

	result, err := pool.Exec(ctx, query, sessionID, bounce)
	if err != nil {
		return 0, fmt.Errorf("failed to update bounce flags: %w", err)
	}

	return result.RowsAffected(), nil
}

// List возвращает события начиная с since (нулевое время - без ограничения),
// от новых к старым
func (r *pageViewRepository) List(ctx context.Context, since time.Time) ([]models.PageView, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, page_path, page_title, referrer, referrer_domain, user_agent,
			hashed_ip, country, device_type, browser, os, session_id,
			time_on_page, is_update, is_bounce, created_at
		FROM page_views
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		ORDER BY created_at DESC
	`

	rows, err := pool.Query(ctx, query, sinceArg(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list page views: %w", err)
	}

	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PageView, error) {
		var v models.PageView
		err := row.Scan(
			&v.ID,
			&v.PagePath,
			&v.PageTitle,
			&v.Referrer,
			&v.ReferrerDomain,
			&v.UserAgent,
			&v.HashedIP,
			&v.Country,
			&v.DeviceType,
			&v.Browser,
			&v.OS,
			&v.SessionID,
			&v.TimeOnPage,
			&v.IsUpdate,
			&v.IsBounce,
			&v.CreatedAt,
		)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan page views: %w", err)
	}

	return views, nil
}

func (r *pageViewRepository) DeleteAll(ctx context.Context) (int64, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return 0, err
	}

	result, err := pool.Exec(ctx, `DELETE FROM page_views`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete page views: %w", err)
	}

	return result.RowsAffected(), nil
}

// sinceArg нулевое время превращается в NULL
func sinceArg(since time.Time) *time.Time {
	if since.IsZero() {
		return nil
	}
	t := since.UTC()
	return &t
}
