package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/SergeiKhy/site-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxTrackBodyBytes события трекера маленькие, всё крупнее отклоняется
const maxTrackBodyBytes = 16 << 10

// ClientAddressHeaders заголовки прокси в порядке приоритета.
// Учитываются только для запросов от доверенных прокси.
var ClientAddressHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"X-Vercel-Forwarded-For",
}

type TrackHandler struct {
	service service.IngestService
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewTrackHandler(service service.IngestService, metrics *observability.Metrics, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// Track godoc
// @Summary Track a page view or time-on-page update
// @Description Body may be sent as application/json or text/plain (sendBeacon)
// @Tags tracking
// @Accept json
// @Param request body models.TrackRequest true "Tracker event"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/track [post]
func (h *TrackHandler) Track(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxTrackBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		h.metrics.ObserveIngest(observability.OutcomeInvalid)
		abortWithError(c, http.StatusBadRequest, "validation_failed", "Request body is required")
		return
	}

	// sendBeacon отправляет text/plain, поэтому тело разбирается как JSON независимо от Content-Type
	var req models.TrackRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		h.metrics.ObserveIngest(observability.OutcomeInvalid)
		abortWithError(c, http.StatusBadRequest, "validation_failed", bindingMessage(err))
		return
	}

	// Последовательность приёма не прерывается при обрыве соединения клиента
	ctx := context.WithoutCancel(c.Request.Context())
	err = h.service.Ingest(ctx, &req, c.ClientIP())
	switch {
	case err == nil:
		h.metrics.ObserveIngest(observability.OutcomeAccepted)
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrValidation):
		h.metrics.ObserveIngest(observability.OutcomeInvalid)
		abortWithError(c, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, service.ErrIdentity):
		h.metrics.ObserveIngest(observability.OutcomeNoIdentity)
		abortWithError(c, http.StatusBadRequest, "identity_undeterminable", "Could not determine client address")
	case errors.Is(err, service.ErrRateLimited):
		h.metrics.ObserveIngest(observability.OutcomeRateLimited)
		abortWithError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests")
	default:
		h.metrics.ObserveIngest(observability.OutcomeStorageError)
		h.logger.Error("Failed to ingest event", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "storage_failure", "Failed to record event")
	}
}

// bindingMessage текст ошибки разбора с именами полей как в JSON
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Request body must be a JSON object"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := jsonFieldName(fe.StructField())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", name, fe.Param()))
		default:
			msgs = append(msgs, name+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonFieldName(field string) string {
	f, ok := reflect.TypeOf(models.TrackRequest{}).FieldByName(field)
	if !ok {
		return field
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return field
	}
	return name
}
