package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the endpoints that live outside the versioned API group.
type Handler struct {
	started time.Time
}

func NewHandler() *Handler {
	return &Handler{started: time.Now()}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).String(),
	}))
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
