package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

func appointmentAt(id, date, start, end string, status models.AppointmentStatus) models.Appointment {
	s, _ := timeutil.Combine(date, start, time.UTC)
	e, _ := timeutil.Combine(date, end, time.UTC)
	return models.Appointment{ID: id, TeacherID: "teacher-1", StudentID: "student-1", StartAt: s, EndAt: e, Status: status}
}

func TestPlanPolicyCascade(t *testing.T) {
	policy := models.OrganizationPolicy{
		WorkdayStart: "10:00",
		WorkdayEnd:   "16:00",
		Holidays:     []models.Holiday{{Date: "2026-10-20", Name: "Founders Day"}},
	}
	candidates := []models.Appointment{
		appointmentAt("inside", "2026-10-19", "10:00", "10:30", models.AppointmentApproved),
		appointmentAt("early", "2026-10-19", "09:00", "09:30", models.AppointmentPending),
		appointmentAt("straddle", "2026-10-19", "15:45", "16:15", models.AppointmentApproved),
		appointmentAt("holiday", "2026-10-20", "11:00", "11:30", models.AppointmentPending),
		appointmentAt("done", "2026-10-19", "08:00", "08:30", models.AppointmentCancelled),
	}

	plan := PlanPolicyCascade(policy, candidates, time.UTC)

	reasons := map[string]string{}
	for _, item := range plan {
		reasons[item.Appointment.ID] = item.Reason
	}
	assert.Equal(t, map[string]string{
		"early":    models.ReasonOutsideWorkingHours,
		"straddle": models.ReasonOutsideWorkingHours,
		"holiday":  models.ReasonHoliday,
	}, reasons)
}

func TestPlanPolicyCascadeHolidayWinsOverHours(t *testing.T) {
	policy := models.OrganizationPolicy{WorkdayStart: "09:00", WorkdayEnd: "17:00", Holidays: []models.Holiday{{Date: "2026-10-20", Name: "X"}}}
	plan := PlanPolicyCascade(policy, []models.Appointment{appointmentAt("a", "2026-10-20", "07:00", "07:30", models.AppointmentApproved)}, time.UTC)
	require.Len(t, plan, 1)
	assert.Equal(t, models.ReasonHoliday, plan[0].Reason)
}

func TestPlanAvailabilityCascade(t *testing.T) {
	weekly := models.WeeklyAvailability{"mon": {{Start: "10:00", End: "11:00"}}}
	busy := []models.BusyBlock{{Date: "2026-10-21", Start: "13:00", End: "14:00"}}
	candidates := []models.Appointment{
		appointmentAt("class", "2026-10-19", "10:30", "11:00", models.AppointmentApproved),
		appointmentAt("touching", "2026-10-19", "11:00", "11:30", models.AppointmentPending),
		appointmentAt("busy", "2026-10-21", "13:30", "14:00", models.AppointmentPending),
		appointmentAt("other-day", "2026-10-20", "10:30", "11:00", models.AppointmentApproved),
	}

	plan := PlanAvailabilityCascade(weekly, busy, candidates, time.UTC)

	ids := make([]string, 0, len(plan))
	for _, item := range plan {
		ids = append(ids, item.Appointment.ID)
		assert.Equal(t, models.ReasonAvailabilityChanged, item.Reason)
	}
	assert.Equal(t, []string{"class", "busy"}, ids)
}

func TestPlanTeacherRemoval(t *testing.T) {
	other := appointmentAt("other", "2026-10-19", "10:00", "10:30", models.AppointmentApproved)
	other.TeacherID = "teacher-2"
	candidates := []models.Appointment{
		appointmentAt("a", "2026-10-19", "10:00", "10:30", models.AppointmentApproved),
		appointmentAt("b", "2026-10-19", "11:00", "11:30", models.AppointmentPending),
		appointmentAt("c", "2026-10-19", "12:00", "12:30", models.AppointmentCancelled),
		other,
	}

	plan := PlanTeacherRemoval("teacher-1", candidates)

	require.Len(t, plan, 2)
	for _, item := range plan {
		assert.Equal(t, models.ReasonTeacherRemoved, item.Reason)
	}
}
