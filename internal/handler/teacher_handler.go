package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/appointment-booking-api/internal/middleware"
	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/pkg/response"
)

type teacherService interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Teacher, error)
	Invite(ctx context.Context, actor models.Identity, req models.InviteTeacherRequest) (*models.InviteTeacherResult, error)
	Remove(ctx context.Context, actor models.Identity, teacherID string) (*models.TeacherRemovalResult, error)
}

type calendarService interface {
	GetUnavailability(ctx context.Context, teacherID, from, to string) (*models.TeacherCalendar, error)
	GetFreeSlots(ctx context.Context, teacherID, date string, step int) (*models.FreeSlots, error)
	GetTeacherDay(ctx context.Context, teacherID, date string) (*models.TeacherDay, error)
}

// TeacherHandler serves the teacher directory, calendars and admin
// onboarding endpoints.
type TeacherHandler struct {
	teachers teacherService
	calendar calendarService
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(teachers teacherService, calendar calendarService) *TeacherHandler {
	return &TeacherHandler{teachers: teachers, calendar: calendar}
}

// List godoc
// @Summary List teachers
// @Tags Teachers
// @Produce json
// @Param search query string false "Name or email"
// @Param department query string false "Department"
// @Param subject query string false "Subject"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	filter := models.TeacherFilter{
		Search:     c.Query("search"),
		Department: c.Query("department"),
		Subject:    c.Query("subject"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}
	teachers, pagination, err := h.teachers.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, pagination)
}

// Get godoc
// @Summary Get teacher
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.teachers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Calendar godoc
// @Summary Teacher unavailability
// @Description Holidays, class hours, busy blocks and approved appointments in an inclusive date range
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string true "From date (YYYY-MM-DD)"
// @Param to query string true "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /teachers/{id}/calendar [get]
func (h *TeacherHandler) Calendar(c *gin.Context) {
	calendar, err := h.calendar.GetUnavailability(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "blocks", len(calendar.Busy))
	response.JSON(c, http.StatusOK, calendar, nil, middleware.ExtractMeta(c))
}

// Slots godoc
// @Summary Free slots
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param step query int false "Slot length in minutes"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/slots [get]
func (h *TeacherHandler) Slots(c *gin.Context) {
	slots, err := h.calendar.GetFreeSlots(c.Request.Context(), c.Param("id"), c.Query("date"), queryInt(c, "step", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// PublicSchedule godoc
// @Summary Public day schedule
// @Description Occupied windows of a teacher on one date without student details
// @Tags Public
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /public/teachers/{id}/schedule [get]
func (h *TeacherHandler) PublicSchedule(c *gin.Context) {
	day, err := h.calendar.GetTeacherDay(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, day, nil)
}

// Invite godoc
// @Summary Invite teacher
// @Description Creates or promotes the account and emails a password link
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.InviteTeacherRequest true "Invite"
// @Success 201 {object} response.Envelope
// @Router /admin/teachers/invite [post]
func (h *TeacherHandler) Invite(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.InviteTeacherRequest
	if !bindJSON(c, &req, "invalid invite payload") {
		return
	}
	result, err := h.teachers.Invite(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Remove godoc
// @Summary Remove teacher
// @Description Cancels future appointments and deletes the teacher account
// @Tags Admin
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/teachers/{id} [delete]
func (h *TeacherHandler) Remove(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.teachers.Remove(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
