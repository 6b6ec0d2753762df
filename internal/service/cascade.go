package service

import (
	"time"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

// Cascade planners are pure: they take the candidate appointments and return
// the cancellations to apply, leaving persistence to the caller's transaction.

// PlanPolicyCascade selects active appointments that fall on a holiday or no
// longer lie fully inside the working window.
func PlanPolicyCascade(policy models.OrganizationPolicy, candidates []models.Appointment, loc *time.Location) []models.AppointmentCancellation {
	window := policy.Window()
	plan := make([]models.AppointmentCancellation, 0)
	for _, appt := range candidates {
		if !appt.Status.Active() {
			continue
		}
		if _, holiday := policy.HolidayOn(appt.LocalDate(loc)); holiday {
			plan = append(plan, models.AppointmentCancellation{Appointment: appt, Reason: models.ReasonHoliday})
			continue
		}
		if !appt.LocalRange(loc).Within(window) {
			plan = append(plan, models.AppointmentCancellation{Appointment: appt, Reason: models.ReasonOutsideWorkingHours})
		}
	}
	return plan
}

// PlanAvailabilityCascade selects the teacher's active appointments that now
// overlap a weekly class range or a busy block.
func PlanAvailabilityCascade(weekly models.WeeklyAvailability, busy []models.BusyBlock, candidates []models.Appointment, loc *time.Location) []models.AppointmentCancellation {
	busyByDate := make(map[string][]timeutil.Range, len(busy))
	for _, b := range busy {
		busyByDate[b.Date] = append(busyByDate[b.Date], b.Range())
	}
	plan := make([]models.AppointmentCancellation, 0)
	for _, appt := range candidates {
		if !appt.Status.Active() {
			continue
		}
		local := appt.StartAt.In(loc)
		slot := appt.LocalRange(loc)
		blocked := overlapsAny(slot, weekly[timeutil.WeekdayKey(local)]) ||
			overlapsAny(slot, busyByDate[timeutil.FormatDate(local)])
		if blocked {
			plan = append(plan, models.AppointmentCancellation{Appointment: appt, Reason: models.ReasonAvailabilityChanged})
		}
	}
	return plan
}

// PlanTeacherRemoval cancels every active appointment of the teacher.
func PlanTeacherRemoval(teacherID string, candidates []models.Appointment) []models.AppointmentCancellation {
	plan := make([]models.AppointmentCancellation, 0)
	for _, appt := range candidates {
		if appt.TeacherID != teacherID || !appt.Status.Active() {
			continue
		}
		plan = append(plan, models.AppointmentCancellation{Appointment: appt, Reason: models.ReasonTeacherRemoved})
	}
	return plan
}

func overlapsAny(slot timeutil.Range, ranges []timeutil.Range) bool {
	for _, r := range ranges {
		if timeutil.RangesOverlap(slot, r) {
			return true
		}
	}
	return false
}
