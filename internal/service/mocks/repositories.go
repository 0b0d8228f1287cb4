package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/SergeiKhy/site-analytics/internal/repository"
	"github.com/google/uuid"
)

// MockPageViewRepository implements repository.PageViewRepository for testing
type MockPageViewRepository struct {
	mu    sync.RWMutex
	views []*models.PageView

	// InsertErr, if set, is returned by Insert
	InsertErr error
	// DeleteErr, if set, is returned by DeleteAll
	DeleteErr error
}

func NewMockPageViewRepository() *MockPageViewRepository {
	return &MockPageViewRepository{}
}

func (m *MockPageViewRepository) Insert(ctx context.Context, view *models.PageView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	view.ID = uuid.NewString()
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now().UTC()
	}
	stored := *view
	m.views = append(m.views, &stored)
	return nil
}

func (m *MockPageViewRepository) SetSessionBounce(ctx context.Context, sessionID string, bounce bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for _, v := range m.views {
		if v.SessionID != sessionID {
			continue
		}
		if v.IsBounce != nil && *v.IsBounce == bounce {
			continue
		}
		flag := bounce
		v.IsBounce = &flag
		changed++
	}
	return changed, nil
}

func (m *MockPageViewRepository) List(ctx context.Context, since time.Time) ([]models.PageView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.PageView
	for _, v := range m.views {
		if since.IsZero() || !v.CreatedAt.Before(since) {
			out = append(out, *v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockPageViewRepository) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	n := int64(len(m.views))
	m.views = nil
	return n, nil
}

// Views returns a snapshot of stored rows in insertion order
func (m *MockPageViewRepository) Views() []models.PageView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PageView, 0, len(m.views))
	for _, v := range m.views {
		out = append(out, *v)
	}
	return out
}

// MockSessionRepository implements repository.SessionRepository for testing
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.VisitorSession
	order    []string

	DeleteErr error
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[string]*models.VisitorSession),
	}
}

func (m *MockSessionRepository) Get(ctx context.Context, sessionID string) (*models.VisitorSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *MockSessionRepository) ExistsForIdentity(ctx context.Context, hashedIP string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.HashedIP == hashedIP {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.VisitorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.SessionID]; exists {
		return repository.ErrSessionExists
	}
	stored := *session
	m.sessions[session.SessionID] = &stored
	m.order = append(m.order, session.SessionID)
	return nil
}

func (m *MockSessionRepository) RecordPageView(ctx context.Context, sessionID string, at time.Time) (*models.VisitorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, repository.ErrSessionNotFound
	}
	s.PageCount++
	s.LastVisitAt = at
	copied := *s
	return &copied, nil
}

func (m *MockSessionRepository) List(ctx context.Context, since time.Time) ([]models.VisitorSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.VisitorSession
	for _, id := range m.order {
		s := m.sessions[id]
		if since.IsZero() || !s.FirstVisitAt.Before(since) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MockSessionRepository) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	n := int64(len(m.sessions))
	m.sessions = make(map[string]*models.VisitorSession)
	m.order = nil
	return n, nil
}

// MockRateLimitRepository implements repository.RateLimitRepository for testing
type MockRateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]models.RateLimitWindow

	// Err, if set, is returned by every method
	Err error
}

func NewMockRateLimitRepository() *MockRateLimitRepository {
	return &MockRateLimitRepository{
		windows: make(map[string]models.RateLimitWindow),
	}
}

func (m *MockRateLimitRepository) Admit(ctx context.Context, hashedIP string, now time.Time, window time.Duration, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	current := m.windows[hashedIP]
	current.HashedIP = hashedIP
	next, allowed := current.Admit(now, window, limit)
	if allowed {
		m.windows[hashedIP] = next
	}
	return allowed, nil
}

func (m *MockRateLimitRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}
	var removed int64
	for ip, w := range m.windows {
		if w.WindowStart.Before(before) {
			delete(m.windows, ip)
			removed++
		}
	}
	return removed, nil
}

func (m *MockRateLimitRepository) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}
	n := int64(len(m.windows))
	m.windows = make(map[string]models.RateLimitWindow)
	return n, nil
}

// Window returns the current window for an identity
func (m *MockRateLimitRepository) Window(hashedIP string) (models.RateLimitWindow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[hashedIP]
	return w, ok
}

var (
	_ repository.PageViewRepository  = (*MockPageViewRepository)(nil)
	_ repository.SessionRepository   = (*MockSessionRepository)(nil)
	_ repository.RateLimitRepository = (*MockRateLimitRepository)(nil)
)
