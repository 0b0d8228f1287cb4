package models

import (
	"time"
)

// VisitorSession сессия посетителя, ключ - session_id, сгенерированный клиентом
type VisitorSession struct {
	SessionID    string    `json:"session_id"`
	HashedIP     string    `json:"hashed_ip"`
	Country      *string   `json:"country,omitempty"`
	DeviceType   string    `json:"device_type"`
	IsNewVisitor bool      `json:"is_new_visitor"`
	FirstVisitAt time.Time `json:"first_visit_at"`
	LastVisitAt  time.Time `json:"last_visit_at"`
	PageCount    int       `json:"page_count"`
}

// Duration длительность сессии между первым и последним просмотром
func (s *VisitorSession) Duration() time.Duration {
	return s.LastVisitAt.Sub(s.FirstVisitAt)
}

// IsBounce сессия из одного просмотра
func (s *VisitorSession) IsBounce() bool {
	return s.PageCount == 1
}
