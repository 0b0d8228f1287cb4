// Package geo определяет страну посетителя по IP через внешние HTTP API.
// Поиск всегда best-effort: ошибка превращается в пустой результат.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Lookup возвращает двухбуквенный код страны или "" если определить не удалось
type Lookup interface {
	Country(ctx context.Context, ip, hashedIP string) string
}

// Noop используется, когда геолокация выключена
type Noop struct{}

func (Noop) Country(context.Context, string, string) string { return "" }

// provider один внешний сервис геолокации со своей квотой
type provider struct {
	name    string
	limiter *rate.Limiter
	url     func(ip string) string
	parse   func(body []byte) string
}

// Config параметры клиента
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
	UserAgent string
}

// Client опрашивает провайдеров по очереди и кэширует результат по хэшу личности
type Client struct {
	http      *http.Client
	providers []provider
	cache     *expirable.LRU[string, string]
	userAgent string
	logger    *zap.Logger
}

// NewClient создаёт клиент с провайдерами ipapi.co (1000/день) и ip-api.com (45/мин)
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "site-analytics/1.0"
	}

	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		providers: []provider{
			{
				name:    "ipapi.co",
				limiter: rate.NewLimiter(rate.Every(24*time.Hour/1000), 10),
				url: func(ip string) string {
					return fmt.Sprintf("https://ipapi.co/%s/country/", ip)
				},
				parse: parsePlainCountry,
			},
			{
				name:    "ip-api.com",
				limiter: rate.NewLimiter(rate.Every(time.Minute/45), 5),
				url: func(ip string) string {
					return fmt.Sprintf("http://ip-api.com/json/%s?fields=countryCode", ip)
				},
				parse: parseIPAPICountry,
			},
		},
		cache:     expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Country ip нужен провайдерам, hashedIP - ключ кэша (сырые адреса в памяти не храним)
func (c *Client) Country(ctx context.Context, ip, hashedIP string) string {
	if country, ok := c.cache.Get(hashedIP); ok {
		return country
	}

	country := ""
	for _, p := range c.providers {
		if !p.limiter.Allow() {
			continue
		}
		code, err := c.fetch(ctx, p, ip)
		if err != nil {
			c.logger.Debug("Geolocation provider failed",
				zap.String("provider", p.name),
				zap.Error(err),
			)
			continue
		}
		if code != "" {
			country = code
			break
		}
	}

	c.cache.Add(hashedIP, country)
	return country
}

func (c *Client) fetch(ctx context.Context, p provider, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(ip), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error содержит адрес посетителя в URL
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return "", urlErr.Err
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}

	return p.parse(body), nil
}

func parsePlainCountry(body []byte) string {
	code := strings.TrimSpace(string(body))
	if len(code) != 2 {
		return ""
	}
	return strings.ToUpper(code)
}

func parseIPAPICountry(body []byte) string {
	var payload struct {
		CountryCode string `json:"countryCode"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return parsePlainCountry([]byte(payload.CountryCode))
}
