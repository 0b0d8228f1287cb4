package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/site-analytics/internal/metrics"
	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MetricsHandler struct {
	source  metrics.Source
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewMetricsHandler(source metrics.Source, metrics *observability.Metrics, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		source:  source,
		metrics: metrics,
		logger:  logger,
	}
}

// GetMetric godoc
// @Summary Compute an analytics metric
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Param metric query string true "pageviews, visitors, devices, geography, timeonpage, visits, hourly, timeline, growth, engagement, sources, content, journey"
// @Param period query string false "7d, 30d or all" default(7d)
// @Param page_path query string false "hourly: only this path"
// @Param month query string false "timeline: YYYY-MM"
// @Param day query string false "timeline: YYYY-MM-DD"
// @Param limit query int false "visits: 1..500" default(50)
// @Success 200 {object} object
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/metrics [get]
func (h *MetricsHandler) GetMetric(c *gin.Context) {
	name := c.Query("metric")
	if name == "" {
		h.metrics.ObserveQuery("", http.StatusBadRequest)
		abortWithError(c, http.StatusBadRequest, "missing_metric", "Metric parameter required")
		return
	}

	q, err := metrics.ParseQuery(name, c.Request.URL.Query())
	if err == nil {
		var result any
		result, err = h.source.Compute(c.Request.Context(), q)
		if err == nil {
			h.metrics.ObserveQuery(string(q.Request.Metric()), http.StatusOK)
			c.JSON(http.StatusOK, result)
			return
		}
	}

	status, code, message := metricError(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.logger.Error("Failed to compute metric", zap.String("metric", name), zap.Error(err))
	}
	label := name
	if q.Request != nil {
		label = string(q.Request.Metric())
	} else if errors.Is(err, metrics.ErrUnknownMetric) {
		label = "unknown"
	}
	h.metrics.ObserveQuery(label, status)
	abortWithError(c, status, code, message)
}

func metricError(err error) (int, string, string) {
	switch {
	case errors.Is(err, metrics.ErrUnknownMetric):
		return http.StatusBadRequest, "unknown_metric", err.Error()
	case errors.Is(err, metrics.ErrInvalidFilter):
		return http.StatusBadRequest, "invalid_filter", err.Error()
	case errors.Is(err, metrics.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable", "Metrics source is unavailable"
	}
	return http.StatusInternalServerError, "internal_error", "Internal server error"
}
