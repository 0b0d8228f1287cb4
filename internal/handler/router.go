package handler

import (
	"net/http"

	"github.com/SergeiKhy/site-analytics/internal/auth"
	"github.com/SergeiKhy/site-analytics/internal/metrics"
	"github.com/SergeiKhy/site-analytics/internal/middleware"
	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/SergeiKhy/site-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Ingest         service.IngestService
	Reset          service.ResetService
	Metrics        metrics.Source
	Verifier       auth.Verifier
	AdminThrottle  *middleware.RateLimiter
	AllowedOrigins []string
	// TrustedProxies адреса и подсети прокси, чьим заголовкам можно верить
	TrustedProxies []string
	Observability  *observability.Metrics
	Logger         *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	// Адрес клиента берётся из заголовков только если запрос пришёл от доверенного прокси,
	// иначе используется адрес соединения
	router.RemoteIPHeaders = ClientAddressHeaders
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		logger.Error("Invalid trusted proxies, forwarding headers are ignored", zap.Error(err))
		router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.HandleMethodNotAllowed = true
	router.NoMethod(MethodNotAllowed)
	router.NoRoute(NotFound)

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Next()
	})
	router.Use(middleware.RequestMetrics(deps.Observability))

	trackHandler := NewTrackHandler(deps.Ingest, deps.Observability, logger)
	metricsHandler := NewMetricsHandler(deps.Metrics, deps.Observability, logger)
	resetHandler := NewResetHandler(deps.Reset, logger)

	trackCORS := middleware.CORS(deps.AllowedOrigins, http.MethodPost)
	metricsCORS := middleware.CORS(deps.AllowedOrigins, http.MethodGet)
	resetCORS := middleware.CORS(deps.AllowedOrigins, http.MethodPost)

	// Административные эндпоинты: сначала ограничение частоты, затем токен
	admin := []gin.HandlerFunc{middleware.RequireBearer(deps.Verifier, logger)}
	if deps.AdminThrottle != nil {
		admin = append([]gin.HandlerFunc{deps.AdminThrottle.Middleware()}, admin...)
	}

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		v1.POST("/track", trackCORS, trackHandler.Track)
		v1.OPTIONS("/track", trackCORS)

		v1.GET("/metrics", chain(metricsCORS, admin, metricsHandler.GetMetric)...)
		v1.OPTIONS("/metrics", metricsCORS)

		v1.POST("/reset", chain(resetCORS, admin, resetHandler.Reset)...)
		v1.OPTIONS("/reset", resetCORS)
	}

	AddBeaconRoutes(router)
	router.GET("/metrics", gin.WrapH(deps.Observability.Handler()))

	return router
}

func chain(first gin.HandlerFunc, middle []gin.HandlerFunc, last gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(middle)+2)
	handlers = append(handlers, first)
	handlers = append(handlers, middle...)
	return append(handlers, last)
}
