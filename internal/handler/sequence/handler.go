package sequence

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/handler"
	"github.com/billfox/dunning-api/internal/repository"
	"github.com/billfox/dunning-api/internal/service/reconciler"
)

// Handler exposes the sequence lifecycle transitions. Activation and
// deactivation flip the stored flag, then hand off to the reconciler.
type Handler struct {
	reconciler *reconciler.Service
	sequences  repository.SequenceRepository
	reminders  repository.ReminderRepository
}

func NewHandler(rec *reconciler.Service, sequences repository.SequenceRepository, reminders repository.ReminderRepository) *Handler {
	return &Handler{
		reconciler: rec,
		sequences:  sequences,
		reminders:  reminders,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sequences/:id/activate", h.Activate)
	r.POST("/sequences/:id/deactivate", h.Deactivate)
	r.GET("/sequences/:id/reminders", h.ListReminders)
}

// Activate marks the sequence active and populates reminders for its
// unpaid invoices. Per-invoice failures come back in the report, not as an
// HTTP error.
func (h *Handler) Activate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid sequence ID"))
		return
	}

	if err := h.sequences.SetActive(c.Request.Context(), id, true); err != nil {
		handler.AbortWithError(c, err)
		return
	}

	report, err := h.reconciler.Populate(c.Request.Context(), id)
	if err != nil {
		handler.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}

// Deactivate marks the sequence inactive and removes its scheduled reminders.
func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid sequence ID"))
		return
	}

	if err := h.sequences.SetActive(c.Request.Context(), id, false); err != nil {
		handler.AbortWithError(c, err)
		return
	}

	report, err := h.reconciler.Cleanup(c.Request.Context(), id)
	if err != nil {
		handler.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}

func (h *Handler) ListReminders(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid sequence ID"))
		return
	}

	reminders, err := h.reminders.FindBySequence(c.Request.Context(), id)
	if err != nil {
		handler.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(reminders))
}
