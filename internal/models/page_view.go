package models

import (
	"time"
)

// Типы устройств
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// PageView одна запись о просмотре страницы или обновлении времени на странице
type PageView struct {
	ID             string    `json:"id"`
	PagePath       string    `json:"page_path"`
	PageTitle      *string   `json:"page_title,omitempty"`
	Referrer       *string   `json:"referrer,omitempty"`
	ReferrerDomain *string   `json:"referrer_domain,omitempty"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	HashedIP       string    `json:"hashed_ip"`
	Country        *string   `json:"country,omitempty"`
	DeviceType     string    `json:"device_type"`
	Browser        *string   `json:"browser,omitempty"`
	OS             *string   `json:"os,omitempty"`
	SessionID      string    `json:"session_id"`
	TimeOnPage     *int      `json:"time_on_page,omitempty"`
	IsUpdate       bool      `json:"is_update"`
	IsBounce       *bool     `json:"is_bounce,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CountryOr возвращает код страны или запасное значение
func (p *PageView) CountryOr(fallback string) string {
	if p.Country == nil || *p.Country == "" {
		return fallback
	}
	return *p.Country
}

// ReferrerDomainOr возвращает домен реферера или запасное значение
func (p *PageView) ReferrerDomainOr(fallback string) string {
	if p.ReferrerDomain == nil {
		return fallback
	}
	return *p.ReferrerDomain
}
