package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/pkg/response"
)

type availabilityService interface {
	GetAvailability(ctx context.Context, teacherID string) (*models.TeacherAvailability, error)
	SetAvailability(ctx context.Context, actor models.Identity, req models.SetAvailabilityRequest) (*models.AvailabilityUpdateResult, error)
	AddBusy(ctx context.Context, actor models.Identity, input models.BusyBlockInput) (*models.BusyBlock, error)
	ListBusy(ctx context.Context, teacherID, from, to string) ([]models.BusyBlock, error)
	DeleteBusy(ctx context.Context, actor models.Identity, id string) error
}

// AvailabilityHandler lets teachers manage class hours and busy blocks.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Get godoc
// @Summary Own availability
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/availability [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	availability, err := h.service.GetAvailability(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}

// Set godoc
// @Summary Replace own availability
// @Description Entries outside the working window are dropped; colliding appointments are cancelled
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body models.SetAvailabilityRequest true "Availability"
// @Success 200 {object} response.Envelope
// @Router /teacher/availability [put]
func (h *AvailabilityHandler) Set(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.SetAvailabilityRequest
	if !bindJSON(c, &req, "invalid availability payload") {
		return
	}
	result, err := h.service.SetAvailability(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListBusy godoc
// @Summary Own busy blocks
// @Tags Availability
// @Produce json
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teacher/busy [get]
func (h *AvailabilityHandler) ListBusy(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	blocks, err := h.service.ListBusy(c.Request.Context(), actor.UserID, c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

// AddBusy godoc
// @Summary Add a busy block
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body models.BusyBlockInput true "Busy block"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teacher/busy [post]
func (h *AvailabilityHandler) AddBusy(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.BusyBlockInput
	if !bindJSON(c, &req, "Missing fields") {
		return
	}
	block, err := h.service.AddBusy(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, block)
}

// DeleteBusy godoc
// @Summary Delete a busy block
// @Tags Availability
// @Param id path string true "Busy block ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /teacher/busy/{id} [delete]
func (h *AvailabilityHandler) DeleteBusy(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.DeleteBusy(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
