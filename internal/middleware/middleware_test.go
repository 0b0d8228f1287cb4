package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/auth"
	"github.com/SergeiKhy/site-analytics/internal/middleware"
	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TestRateLimiter_Middleware проверяет работу rate limiter middleware
func TestRateLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Лимит 5 запросов в секунду и burst 5
	rl := middleware.NewRateLimiter(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", okHandler)

	// Первые 5 запросов проходят в пределах burst
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// Следующий запрос ограничен
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

// TestRateLimiter_MiddlewareWithKey проверяет rate limiting с кастомным ключом
func TestRateLimiter_MiddlewareWithKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: 2,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})

	router := gin.New()
	router.Use(rl.MiddlewareWithKey(func(c *gin.Context) string {
		return c.GetHeader("Authorization")
	}))
	router.GET("/test", okHandler)

	send := func(token string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", token)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("Bearer a"))
	assert.Equal(t, http.StatusOK, send("Bearer a"))
	assert.Equal(t, http.StatusTooManyRequests, send("Bearer a"))

	// Другой ключ имеет свою квоту
	assert.Equal(t, http.StatusOK, send("Bearer b"))
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(middleware.CORS([]string{"https://watchmanscry.site", "http://localhost:3000"}, http.MethodGet))
	router.GET("/data", okHandler)
	router.OPTIONS("/data", okHandler)

	tests := []struct {
		name       string
		method     string
		headers    map[string]string
		wantOrigin string
		wantCode   int
	}{
		{"allowed origin", http.MethodGet, map[string]string{"Origin": "https://watchmanscry.site"}, "https://watchmanscry.site", http.StatusOK},
		{"referer fallback", http.MethodGet, map[string]string{"Referer": "http://localhost:3000/admin.html"}, "http://localhost:3000", http.StatusOK},
		{"lookalike host", http.MethodGet, map[string]string{"Origin": "https://watchmanscry.site.evil.com"}, "", http.StatusOK},
		{"foreign origin", http.MethodGet, map[string]string{"Origin": "https://example.com"}, "", http.StatusOK},
		{"no origin", http.MethodGet, nil, "", http.StatusOK},
		{"preflight", http.MethodOptions, map[string]string{"Origin": "https://watchmanscry.site"}, "https://watchmanscry.site", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, "/data", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}

type stubVerifier struct {
	err error
}

func (s stubVerifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != "valid" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Principal{Subject: "admin"}, nil
}

func TestRequireBearer(t *testing.T) {
	newRouter := func(v auth.Verifier) *gin.Engine {
		router := gin.New()
		router.Use(middleware.RequireBearer(v, nil))
		router.GET("/secure", func(c *gin.Context) {
			p, ok := middleware.GetPrincipal(c)
			require.True(t, ok)
			c.JSON(http.StatusOK, gin.H{"subject": p.Subject})
		})
		return router
	}

	send := func(router *gin.Engine, header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/secure", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		return w
	}

	router := newRouter(stubVerifier{})

	w := send(router, "Bearer valid")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")

	w = send(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")

	w = send(router, "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = send(newRouter(stubVerifier{err: errors.Join(auth.ErrProviderUnavailable, errors.New("timeout"))}), "Bearer valid")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "upstream_unavailable")
}

func TestRequestMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(middleware.RequestMetrics(m))
	router.GET("/items/:id", okHandler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/items/42", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration, "analytics_http_request_duration_seconds"))
}
