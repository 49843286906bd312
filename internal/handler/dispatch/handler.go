package dispatch

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/billfox/dunning-api/internal/handler"
	"github.com/billfox/dunning-api/internal/service/dispatch"
)

type Handler struct {
	service *dispatch.Service
}

func NewHandler(service *dispatch.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/dispatch/run", h.Run)
}

// Run triggers one dispatch pass on demand. The worker runs the same pass
// on its own schedule.
func (h *Handler) Run(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context(), time.Now())
	if err != nil {
		handler.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}
