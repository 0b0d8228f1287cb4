package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Metrics   MetricsConfig
	Geo       GeoConfig
	GA4       GA4Config
}

type AppConfig struct {
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	// AdminUser/AdminPassword - повышенные привилегии, используются только после аутентификации
	AdminUser     string
	AdminPassword string
}

// HasAdminCredentials сообщает, настроены ли повышенные привилегии
func (c DBConfig) HasAdminCredentials() bool {
	return c.AdminUser != ""
}

// AsAdmin возвращает копию конфигурации с учётными данными администратора
func (c DBConfig) AsAdmin() DBConfig {
	admin := c
	admin.User = c.AdminUser
	admin.Password = c.AdminPassword
	return admin
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type AuthConfig struct {
	Mode         string // supabase | jwt | oidc
	URL          string
	APIKey       string
	JWTSecret    string
	OIDCIssuer   string
	OIDCAudience string
}

type RateLimitConfig struct {
	Backend       string // postgres | redis
	MaxRequests   int
	Window        time.Duration
	PruneSchedule string

	// Token bucket для административного API
	AdminRequestsPerSecond float64
	AdminBurstSize         int
}

type CORSConfig struct {
	AllowedOrigins []string
	// TrustedProxies адреса или CIDR прокси перед сервисом; пусто - заголовкам не доверяем
	TrustedProxies []string
}

type MetricsConfig struct {
	Source             string // store | ga4
	SiteDomain         string
	ExcludedIdentities []string
	CivilTimezone      string
}

type GeoConfig struct {
	Enabled   bool
	CacheSize int
	CacheTTL  time.Duration
}

type GA4Config struct {
	PropertyID      string
	CredentialsJSON string
}

var defaultAllowedOrigins = []string{
	"https://www.watchmanscry.site",
	"https://watchmanscry.site",
	"http://localhost:8000",
	"http://localhost:3000",
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// .env необязателен, достаточно переменных окружения
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("RATE_LIMIT_BACKEND", "postgres")
	viper.SetDefault("RATE_LIMIT_MAX", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW", "60s")
	viper.SetDefault("RATE_LIMIT_PRUNE_SCHEDULE", "@every 10m")
	viper.SetDefault("ADMIN_RATE_LIMIT_RPS", 5)
	viper.SetDefault("ADMIN_RATE_LIMIT_BURST", 10)
	viper.SetDefault("AUTH_MODE", "supabase")
	viper.SetDefault("METRICS_SOURCE", "store")
	viper.SetDefault("CIVIL_TIMEZONE", "America/Chicago")
	viper.SetDefault("GEO_ENABLED", true)
	viper.SetDefault("GEO_CACHE_SIZE", 10000)
	viper.SetDefault("GEO_CACHE_TTL", "24h")

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.DB.AdminUser = viper.GetString("DB_ADMIN_USER")
	cfg.DB.AdminPassword = viper.GetString("DB_ADMIN_PASSWORD")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")

	cfg.Auth.Mode = strings.ToLower(viper.GetString("AUTH_MODE"))
	cfg.Auth.URL = strings.TrimRight(viper.GetString("AUTH_URL"), "/")
	cfg.Auth.APIKey = viper.GetString("AUTH_API_KEY")
	cfg.Auth.JWTSecret = viper.GetString("AUTH_JWT_SECRET")
	cfg.Auth.OIDCIssuer = viper.GetString("AUTH_OIDC_ISSUER")
	cfg.Auth.OIDCAudience = viper.GetString("AUTH_OIDC_AUDIENCE")

	cfg.RateLimit.Backend = strings.ToLower(viper.GetString("RATE_LIMIT_BACKEND"))
	cfg.RateLimit.MaxRequests = viper.GetInt("RATE_LIMIT_MAX")
	cfg.RateLimit.Window = viper.GetDuration("RATE_LIMIT_WINDOW")
	cfg.RateLimit.PruneSchedule = viper.GetString("RATE_LIMIT_PRUNE_SCHEDULE")
	cfg.RateLimit.AdminRequestsPerSecond = viper.GetFloat64("ADMIN_RATE_LIMIT_RPS")
	cfg.RateLimit.AdminBurstSize = viper.GetInt("ADMIN_RATE_LIMIT_BURST")

	cfg.CORS.AllowedOrigins = parseList(viper.GetString("ALLOWED_ORIGINS"))
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = defaultAllowedOrigins
	}

	cfg.CORS.TrustedProxies = parseList(viper.GetString("TRUSTED_PROXIES"))
	for _, proxy := range cfg.CORS.TrustedProxies {
		if !validProxy(proxy) {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}

	cfg.Metrics.Source = strings.ToLower(viper.GetString("METRICS_SOURCE"))
	cfg.Metrics.SiteDomain = viper.GetString("SITE_DOMAIN")
	if cfg.Metrics.SiteDomain == "" {
		cfg.Metrics.SiteDomain = siteDomainFromOrigins(cfg.CORS.AllowedOrigins)
	}
	cfg.Metrics.ExcludedIdentities = parseList(viper.GetString("EXCLUDED_IDENTITIES"))
	cfg.Metrics.CivilTimezone = viper.GetString("CIVIL_TIMEZONE")

	cfg.Geo.Enabled = viper.GetBool("GEO_ENABLED")
	cfg.Geo.CacheSize = viper.GetInt("GEO_CACHE_SIZE")
	cfg.Geo.CacheTTL = viper.GetDuration("GEO_CACHE_TTL")

	cfg.GA4.PropertyID = viper.GetString("GA4_PROPERTY_ID")
	cfg.GA4.CredentialsJSON = viper.GetString("GA4_CREDENTIALS_JSON")

	return &cfg, nil
}

// siteDomainFromOrigins первый разрешённый источник, который не указывает на локальную машину
func siteDomainFromOrigins(origins []string) string {
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == "" || host == "localhost" || net.ParseIP(host) != nil {
			continue
		}
		return strings.TrimPrefix(host, "www.")
	}
	return ""
}

func validProxy(proxy string) bool {
	if _, _, err := net.ParseCIDR(proxy); err == nil {
		return true
	}
	return net.ParseIP(proxy) != nil
}

// parseList разбирает список через запятую, пустые элементы отбрасываются
func parseList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
