package invoice

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/handler"
	"github.com/billfox/dunning-api/internal/repository"
	"github.com/billfox/dunning-api/internal/service/reconciler"
)

type Handler struct {
	reconciler *reconciler.Service
	invoices   repository.InvoiceRepository
}

func NewHandler(rec *reconciler.Service, invoices repository.InvoiceRepository) *Handler {
	return &Handler{
		reconciler: rec,
		invoices:   invoices,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.PUT("/invoices/:id/sequence", h.AssignSequence)
}

type assignSequenceRequest struct {
	SequenceID uuid.UUID `json:"sequence_id" binding:"required"`
}

// AssignSequence persists a manual sequence assignment and reconciles the
// invoice's reminders against the target sequence. Assigning an inactive
// sequence records the association and creates nothing.
func (h *Handler) AssignSequence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid invoice ID"))
		return
	}

	var req assignSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.invoices.AssignSequence(c.Request.Context(), id, &req.SequenceID); err != nil {
		handler.AbortWithError(c, err)
		return
	}

	report, err := h.reconciler.AssignManually(c.Request.Context(), id, req.SequenceID)
	if err != nil {
		handler.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}
