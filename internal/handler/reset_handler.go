package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/site-analytics/internal/middleware"
	"github.com/SergeiKhy/site-analytics/internal/models"
	"github.com/SergeiKhy/site-analytics/internal/repository"
	"github.com/SergeiKhy/site-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ResetHandler struct {
	service service.ResetService
	logger  *zap.Logger
}

func NewResetHandler(service service.ResetService, logger *zap.Logger) *ResetHandler {
	return &ResetHandler{
		service: service,
		logger:  logger,
	}
}

type ResetResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Deleted *models.ResetSummary `json:"deleted"`
}

// Reset godoc
// @Summary Delete all analytics data
// @Description Irreversible. Removes page views, visitor sessions and rate limit windows.
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ResetResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/reset [post]
func (h *ResetHandler) Reset(c *gin.Context) {
	subject := "unknown"
	if p, ok := middleware.GetPrincipal(c); ok {
		subject = p.Subject
	}

	summary, err := h.service.Reset(c.Request.Context())
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotConfigured) {
			abortWithError(c, http.StatusServiceUnavailable, "upstream_unavailable", "Elevated database credentials are not configured")
			return
		}
		var resetErr *service.ResetError
		if errors.As(err, &resetErr) {
			abortWithError(c, http.StatusInternalServerError, "storage_failure", "Failed to reset "+resetErr.Component)
			return
		}
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}

	h.logger.Warn("Analytics data reset by administrator", zap.String("subject", subject))
	c.JSON(http.StatusOK, ResetResponse{
		Success: true,
		Message: "All analytics data has been reset",
		Deleted: summary,
	})
}
