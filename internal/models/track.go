package models

// TrackRequest тело запроса от трекера
type TrackRequest struct {
	PagePath   string `json:"page_path" binding:"required"`
	PageTitle  string `json:"page_title,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	SessionID  string `json:"session_id" binding:"required"`
	TimeOnPage *int   `json:"time_on_page,omitempty" binding:"omitempty,min=0"`
	IsUpdate   bool   `json:"is_update,omitempty"`
	IsFinal    bool   `json:"is_final,omitempty"`
	IsSection  bool   `json:"is_section,omitempty"`
}

// ResetSummary результат административного сброса
type ResetSummary struct {
	PageViews       int64 `json:"page_views"`
	VisitorSessions int64 `json:"visitor_sessions"`
	RateLimits      int64 `json:"rate_limits"`
}
