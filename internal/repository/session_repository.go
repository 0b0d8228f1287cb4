package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*models.VisitorSession, error)
	ExistsForIdentity(ctx context.Context, hashedIP string) (bool, error)
	Create(ctx context.Context, session *models.VisitorSession) error
	RecordPageView(ctx context.Context, sessionID string, at time.Time) (*models.VisitorSession, error)
	List(ctx context.Context, since time.Time) ([]models.VisitorSession, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type sessionRepository struct {
	db Conn
}

func NewSessionRepository(db Conn) SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `session_id, hashed_ip, country, device_type, is_new_visitor, first_visit_at, last_visit_at, page_count`

func scanSession(row pgx.Row) (*models.VisitorSession, error) {
	s := &models.VisitorSession{}
	err := row.Scan(
		&s.SessionID,
		&s.HashedIP,
		&s.Country,
		&s.DeviceType,
		&s.IsNewVisitor,
		&s.FirstVisitAt,
		&s.LastVisitAt,
		&s.PageCount,
	)
	return s, err
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (*models.VisitorSession, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + ` FROM visitor_sessions WHERE session_id = $1`

	session, err := scanSession(pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (r *sessionRepository) ExistsForIdentity(ctx context.Context, hashedIP string) (bool, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return false, err
	}

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM visitor_sessions WHERE hashed_ip = $1)`,
		hashedIP,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check visitor history: %w", err)
	}

	return exists, nil
}

// Create вставляет новую сессию. Если сессия уже создана параллельным запросом,
// возвращает ErrSessionExists.
func (r *sessionRepository) Create(ctx context.Context, session *models.VisitorSession) error {
	pool, err := r.db.Conn()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO visitor_sessions (
			session_id, hashed_ip, country, device_type, is_new_visitor,
			first_visit_at, last_visit_at, page_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING
	`

	result, err := pool.Exec(ctx, query,
		session.SessionID,
		session.HashedIP,
		session.Country,
		session.DeviceType,
		session.IsNewVisitor,
		session.FirstVisitAt,
		session.LastVisitAt,
		session.PageCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionExists
	}

	return nil
}

// RecordPageView атомарно увеличивает page_count и обновляет last_visit_at
func (r *sessionRepository) RecordPageView(ctx context.Context, sessionID string, at time.Time) (*models.VisitorSession, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE visitor_sessions
		SET page_count = page_count + 1, last_visit_at = $2, updated_at = NOW()
		WHERE session_id = $1
		RETURNING ` + sessionColumns

	session, err := scanSession(pool.QueryRow(ctx, query, sessionID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return session, nil
}

// List сессии, начатые не раньше since (нулевое время - все)
func (r *sessionRepository) List(ctx context.Context, since time.Time) ([]models.VisitorSession, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM visitor_sessions
		WHERE $1::timestamptz IS NULL OR first_visit_at >= $1
		ORDER BY first_visit_at DESC
	`

	rows, err := pool.Query(ctx, query, sinceArg(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.VisitorSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func (r *sessionRepository) DeleteAll(ctx context.Context) (int64, error) {
	pool, err := r.db.Conn()
	if err != nil {
		return 0, err
	}

	result, err := pool.Exec(ctx, `DELETE FROM visitor_sessions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	return result.RowsAffected(), nil
}
