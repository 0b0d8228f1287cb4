package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/SergeiKhy/site-analytics/internal/auth"
	"github.com/SergeiKhy/site-analytics/internal/handler"
	"github.com/SergeiKhy/site-analytics/internal/metrics"
	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/SergeiKhy/site-analytics/internal/service"
	"github.com/SergeiKhy/site-analytics/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminToken = "admin-token"
	siteOrigin = "https://www.watchmanscry.site"
	// testProxy адрес соединения, который выставляет httptest.NewRequest
	testProxy = "192.0.2.1"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubVerifier принимает только adminToken
type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	if v.err != nil {
		return nil, v.err
	}
	if token != adminToken {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Principal{Subject: "admin-1", Email: "admin@example.com"}, nil
}

type failingSource struct{}

func (failingSource) Compute(context.Context, metrics.Query) (any, error) {
	return nil, fmt.Errorf("query failed: %w", metrics.ErrUpstreamUnavailable)
}

type testEnv struct {
	router     *gin.Engine
	views      *mocks.MockPageViewRepository
	sessions   *mocks.MockSessionRepository
	rateLimits *mocks.MockRateLimitRepository
}

type envOption func(*handler.RouterDeps)

func withSource(source metrics.Source) envOption {
	return func(d *handler.RouterDeps) { d.Metrics = source }
}

func withVerifier(v auth.Verifier) envOption {
	return func(d *handler.RouterDeps) { d.Verifier = v }
}

func withTrustedProxies(proxies ...string) envOption {
	return func(d *handler.RouterDeps) { d.TrustedProxies = proxies }
}

func setupTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		views:      mocks.NewMockPageViewRepository(),
		sessions:   mocks.NewMockSessionRepository(),
		rateLimits: mocks.NewMockRateLimitRepository(),
	}

	limiter := service.NewRateLimiter(env.rateLimits, 0, 0, nil)
	deps := handler.RouterDeps{
		Ingest:         service.NewIngestService(env.views, env.sessions, limiter, nil, nil),
		Reset:          service.NewResetService(env.views, env.sessions, env.rateLimits, nil),
		Metrics:        metrics.NewAggregator(env.views, env.sessions, metrics.AggregatorConfig{SiteDomain: "watchmanscry.site"}, nil),
		Verifier:       stubVerifier{},
		AllowedOrigins: []string{siteOrigin},
		TrustedProxies: []string{testProxy},
		Observability:  observability.NewMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.router = handler.NewRouter(deps)
	return env
}

func (env *testEnv) do(method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) track(address, body string) *httptest.ResponseRecorder {
	return env.do(http.MethodPost, "/api/v1/track", body, map[string]string{
		"Content-Type":    "application/json",
		"X-Forwarded-For": address,
		"Origin":          siteOrigin,
	})
}

func (env *testEnv) metric(query string) *httptest.ResponseRecorder {
	return env.do(http.MethodGet, "/api/v1/metrics?"+query, "", map[string]string{
		"Authorization": "Bearer " + adminToken,
	})
}

func trackBody(session, path string) string {
	return fmt.Sprintf(`{"page_path":%q,"session_id":%q,"user_agent":"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148 Safari/604.1"}`, path, session)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"site-analytics"}`, w.Body.String())
}

func TestTrack(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "просмотр страницы",
			body:           trackBody("s1", "/"),
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "нет session_id",
			body:           `{"page_path":"/"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "validation_failed",
		},
		{
			name:           "нет page_path",
			body:           `{"session_id":"s1"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "validation_failed",
		},
		{
			name:           "пустое тело",
			body:           "",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "validation_failed",
		},
		{
			name:           "не JSON",
			body:           "page_path=/",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "validation_failed",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.track(fmt.Sprintf("203.0.113.%d", i+1), tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, decodeError(t, w).Error)
			}
		})
	}
}

func TestTrack_CORSHeaders(t *testing.T) {
	env := setupTestEnv(t)

	w := env.track("203.0.113.10", trackBody("s1", "/"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, siteOrigin, w.Header().Get("Access-Control-Allow-Origin"))

	w = env.do(http.MethodPost, "/api/v1/track", trackBody("s2", "/"), map[string]string{
		"X-Forwarded-For": "203.0.113.11",
		"Origin":          "https://www.watchmanscry.site.evil.com",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTrack_TextPlainBeacon(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/track", trackBody("s1", "/about"), map[string]string{
		"Content-Type":    "text/plain;charset=UTF-8",
		"X-Forwarded-For": "203.0.113.20",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, env.views.Views(), 1)
	assert.Equal(t, "/about", env.views.Views()[0].PagePath)
}

func TestTrack_ValidationMessages(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"отрицательное время", `{"page_path":"/","session_id":"s1","time_on_page":-5}`, "time_on_page must be at least 0"},
		{"нет обоих полей", `{"page_title":"Home"}`, "page_path is required; session_id is required"},
		{"путь из пробелов", `{"page_path":"   ","session_id":"s1"}`, "page_path and session_id are required"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.track(fmt.Sprintf("203.0.113.%d", 100+i), tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, "validation_failed", resp.Error)
			assert.Contains(t, resp.Message, tt.message)
		})
	}
	assert.Empty(t, env.views.Views())
}

func TestTrack_MethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/track", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "method_not_allowed", decodeError(t, w).Error)
}

func TestTrack_RateLimited(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < service.DefaultRateLimitMax; i++ {
		w := env.track("203.0.113.30", trackBody("s1", fmt.Sprintf("/page-%d", i)))
		require.Equal(t, http.StatusNoContent, w.Code, "request %d", i)
	}

	w := env.track("203.0.113.30", trackBody("s1", "/one-more"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeError(t, w).Error)
	assert.Len(t, env.views.Views(), service.DefaultRateLimitMax)

	// Другой адрес не ограничен
	w = env.track("203.0.113.31", trackBody("s2", "/"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMetrics_RequiresToken(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/metrics?metric=pageviews", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/v1/metrics?metric=pageviews", "", map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Error)
}

func TestMetrics_UnauthorizedKeepsCORSHeaders(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/metrics?metric=pageviews", "", map[string]string{
		"Origin": siteOrigin,
	})

	// Браузер должен увидеть 401, а не ошибку CORS
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, siteOrigin, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetrics_ProviderUnavailable(t *testing.T) {
	env := setupTestEnv(t, withVerifier(stubVerifier{err: auth.ErrProviderUnavailable}))

	w := env.metric("metric=pageviews")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "upstream_unavailable", decodeError(t, w).Error)
}

func TestMetrics_BadRequests(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name          string
		query         string
		expectedError string
	}{
		{"нет метрики", "period=7d", "missing_metric"},
		{"неизвестная метрика", "metric=revenue", "unknown_metric"},
		{"день без месяца", "metric=timeline&day=2026-03-10&month=2026-04", "invalid_filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.metric(tt.query)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.expectedError, decodeError(t, w).Error)
		})
	}
}

func TestMetrics_PageviewsAfterTracking(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{"/index.html", "/", "/about"} {
		require.Equal(t, http.StatusNoContent, env.track("203.0.113.40", trackBody("s1", path)).Code)
	}
	// Обновление времени не считается просмотром
	update := `{"page_path":"/about","session_id":"s1","time_on_page":42,"is_update":true}`
	require.Equal(t, http.StatusNoContent, env.track("203.0.113.40", update).Code)

	w := env.metric("metric=pageviews&period=7d")
	require.Equal(t, http.StatusOK, w.Code)

	var resp metrics.PageviewsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, []metrics.PathCount{{Path: "/", Count: 2}, {Path: "/about", Count: 1}}, resp.TopPages)

	w = env.metric("metric=DEVICES")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mobile")
}

func TestMetrics_SourceUnavailable(t *testing.T) {
	env := setupTestEnv(t, withSource(failingSource{}))

	w := env.metric("metric=visitors")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "upstream_unavailable", decodeError(t, w).Error)
}

func TestMetrics_PreflightSkipsAuth(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodOptions, "/api/v1/metrics", "", map[string]string{
		"Origin": siteOrigin,
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, siteOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestReset(t *testing.T) {
	env := setupTestEnv(t)

	require.Equal(t, http.StatusNoContent, env.track("203.0.113.50", trackBody("s1", "/")).Code)
	require.Equal(t, http.StatusNoContent, env.track("203.0.113.51", trackBody("s2", "/about")).Code)

	w := env.do(http.MethodPost, "/api/v1/reset", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Len(t, env.views.Views(), 2)

	w = env.do(http.MethodPost, "/api/v1/reset", "", map[string]string{
		"Authorization": "Bearer " + adminToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.ResetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Deleted)
	assert.Equal(t, int64(2), resp.Deleted.PageViews)
	assert.Equal(t, int64(2), resp.Deleted.VisitorSessions)
	assert.Equal(t, int64(2), resp.Deleted.RateLimits)

	for _, period := range []string{"7d", "30d", "all"} {
		w := env.metric("metric=pageviews&period=" + period)
		require.Equal(t, http.StatusOK, w.Code)
		var pv metrics.PageviewsResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pv))
		assert.Zero(t, pv.Total, period)
		assert.Empty(t, pv.TopPages, period)
	}
}

func TestReset_MethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/reset", "", map[string]string{
		"Authorization": "Bearer " + adminToken,
	})

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTrackerScript(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/tracker.js", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/javascript"))
	assert.Contains(t, w.Body.String(), "/api/v1/track")
}

func TestPrometheusEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	require.Equal(t, http.StatusNoContent, env.track("203.0.113.60", trackBody("s1", "/")).Code)

	w := env.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "analytics_ingest_total")
}

func TestTrack_ClientAddress(t *testing.T) {
	const proxy = "10.0.0.2:1234"

	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"X-Forwarded-For от прокси", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, proxy, "198.51.100.1"},
		{"ближайший недоверенный адрес цепочки", map[string]string{"X-Forwarded-For": "203.0.113.9, 198.51.100.9"}, proxy, "198.51.100.9"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "198.51.100.2"}, proxy, "198.51.100.2"},
		{"Cloudflare", map[string]string{"CF-Connecting-IP": "198.51.100.3"}, proxy, "198.51.100.3"},
		{"Vercel", map[string]string{"X-Vercel-Forwarded-For": "198.51.100.4"}, proxy, "198.51.100.4"},
		{"пустой X-Forwarded-For", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.6"}, proxy, "198.51.100.6"},
		{"адрес соединения", nil, "198.51.100.5:4321", "198.51.100.5"},
		{"заголовок от недоверенного клиента", map[string]string{"X-Forwarded-For": "203.0.113.77"}, "198.51.100.7:4444", "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, withTrustedProxies("10.0.0.0/8"))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/track", strings.NewReader(trackBody("s1", "/")))
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			require.Equal(t, http.StatusNoContent, w.Code)
			views := env.views.Views()
			require.Len(t, views, 1)
			assert.Equal(t, service.HashIdentity(tt.expected), views[0].HashedIP)
		})
	}
}

func TestTrack_UnknownClientAddress(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", strings.NewReader(trackBody("s1", "/")))
	req.RemoteAddr = ""
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "identity_undeterminable", decodeError(t, w).Error)
}

func TestTrack_SpoofedForwardingHeadersDoNotBypassRateLimit(t *testing.T) {
	// Прокси не настроены: заголовки игнорируются, личность - адрес соединения
	env := setupTestEnv(t, withTrustedProxies())

	accepted := 0
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/track", strings.NewReader(trackBody("s1", fmt.Sprintf("/p-%d", i))))
		req.RemoteAddr = "198.51.100.7:4444"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code == http.StatusNoContent {
			accepted++
		}
	}

	assert.Equal(t, service.DefaultRateLimitMax, accepted)
	for _, v := range env.views.Views() {
		assert.Equal(t, service.HashIdentity("198.51.100.7"), v.HashedIP)
	}
}
