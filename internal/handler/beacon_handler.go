package handler

import (
	"net/http"

	"github.com/SergeiKhy/site-analytics/web"
	"github.com/gin-gonic/gin"
)

// Tracker godoc
// @Summary Tracking beacon script
// @Tags tracking
// @Produce application/javascript
// @Success 200 {string} string "tracker.js"
// @Router /tracker.js [get]
func Tracker(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", web.TrackerJS)
}

// AddBeaconRoutes раздаёт скрипт трекера без аутентификации
func AddBeaconRoutes(router *gin.Engine) {
	router.GET("/tracker.js", Tracker)
	router.HEAD("/tracker.js", Tracker)
}
