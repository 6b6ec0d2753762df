package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/internal/service"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, actor models.Identity, req models.BookAppointmentRequest) (*models.Appointment, error)
}

type appointmentService interface {
	Get(ctx context.Context, actor models.Identity, id string) (*models.Appointment, error)
	List(ctx context.Context, actor models.Identity, query models.ListAppointmentsQuery) ([]models.Appointment, int, error)
	Approve(ctx context.Context, actor models.Identity, id string, req models.TransitionRequest) (*models.ApprovalResult, error)
	Reject(ctx context.Context, actor models.Identity, id string, req models.TransitionRequest) (*models.Appointment, error)
	Cancel(ctx context.Context, actor models.Identity, id string, req models.TransitionRequest) (*models.Appointment, error)
}

type reportService interface {
	ExportAppointments(ctx context.Context, actor models.Identity, query models.ListAppointmentsQuery, format string) (*service.ExportFile, error)
}

// AppointmentHandler exposes booking and the appointment lifecycle.
type AppointmentHandler struct {
	booking      bookingService
	appointments appointmentService
	reports      reportService
}

// NewAppointmentHandler constructs the handler. reports may be nil.
func NewAppointmentHandler(booking bookingService, appointments appointmentService, reports reportService) *AppointmentHandler {
	return &AppointmentHandler{booking: booking, appointments: appointments, reports: reports}
}

// Book godoc
// @Summary Request an appointment
// @Description Creates a pending request after checking every scheduling rule
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body models.BookAppointmentRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.BookAppointmentRequest
	if !bindJSON(c, &req, "Missing fields") {
		return
	}
	appt, err := h.booking.Book(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appt)
}

// List godoc
// @Summary List appointments
// @Description Students see their requests, teachers their schedule, admins everything
// @Tags Appointments
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param teacher_id query string false "Teacher filter (admin only)"
// @Param student_id query string false "Student filter (admin only)"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query models.ListAppointmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	items, total, err := h.appointments.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// Get godoc
// @Summary Get appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appt, err := h.appointments.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Approve godoc
// @Summary Approve appointment
// @Description Approves a pending request and auto-rejects rivals for the same window
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body models.TransitionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/approve [post]
func (h *AppointmentHandler) Approve(c *gin.Context) {
	actor, req, ok := h.transitionInput(c)
	if !ok {
		return
	}
	result, err := h.appointments.Approve(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body models.TransitionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/reject [post]
func (h *AppointmentHandler) Reject(c *gin.Context) {
	actor, req, ok := h.transitionInput(c)
	if !ok {
		return
	}
	appt, err := h.appointments.Reject(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Cancel godoc
// @Summary Cancel appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body models.TransitionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	actor, req, ok := h.transitionInput(c)
	if !ok {
		return
	}
	appt, err := h.appointments.Cancel(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Export godoc
// @Summary Export appointments
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param teacher_id query string false "Teacher filter"
// @Success 200 {file} file
// @Router /admin/appointments/export [get]
func (h *AppointmentHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if h.reports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "reports are disabled"))
		return
	}
	var query models.ListAppointmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.reports.ExportAppointments(c.Request.Context(), actor, query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// transitionInput reads the optional note body of lifecycle actions.
func (h *AppointmentHandler) transitionInput(c *gin.Context) (models.Identity, models.TransitionRequest, bool) {
	var req models.TransitionRequest
	actor, ok := actorFromContext(c)
	if !ok {
		return actor, req, false
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid note") {
		return actor, req, false
	}
	return actor, req, true
}
