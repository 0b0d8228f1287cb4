package models

import (
	"time"
)

// RateLimitWindow счётчик фиксированного окна для одной хэшированной личности
type RateLimitWindow struct {
	HashedIP     string    `json:"hashed_ip"`
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start"`
}

// Admit применяет один запрос к окну. Возвращает обновлённое окно и решение.
// При отказе окно не изменяется.
func (w RateLimitWindow) Admit(now time.Time, window time.Duration, limit int) (RateLimitWindow, bool) {
	if w.RequestCount == 0 || now.Sub(w.WindowStart) >= window {
		w.RequestCount = 1
		w.WindowStart = now
		return w, true
	}
	if w.RequestCount >= limit {
		return w, false
	}
	w.RequestCount++
	return w, true
}
