package models

import (
	"time"

	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

// AppointmentStatus captures lifecycle states.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Active reports whether the status still occupies the teacher's time.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentPending || s == AppointmentApproved
}

// Cancellation reasons and notes written by the lifecycle manager.
const (
	ReasonHoliday             = "Holiday"
	ReasonOutsideWorkingHours = "Outside organization working hours"
	ReasonTeacherRemoved      = "Teacher account removed"
	ReasonAvailabilityChanged = "Teacher availability changed"
	NoteAutoRejected          = "Auto-rejected: another request for this slot was approved."
)

// Appointment is a student's request for a teacher's time. Rows are never deleted.
type Appointment struct {
	ID           string            `db:"id" json:"id"`
	TeacherID    string            `db:"teacher_id" json:"teacher_id"`
	StudentID    string            `db:"student_id" json:"student_id"`
	StartAt      time.Time         `db:"start_at" json:"start_at"`
	EndAt        time.Time         `db:"end_at" json:"end_at"`
	Status       AppointmentStatus `db:"status" json:"status"`
	Note         *string           `db:"note" json:"note,omitempty"`
	CancelReason *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	DecidedBy    *string           `db:"decided_by" json:"decided_by,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// LocalDate returns the appointment's start date in loc.
func (a Appointment) LocalDate(loc *time.Location) string {
	return timeutil.FormatDate(a.StartAt.In(loc))
}

// LocalRange returns the appointment's start and end as HH:MM in loc.
func (a Appointment) LocalRange(loc *time.Location) timeutil.Range {
	return timeutil.Range{Start: timeutil.FormatClock(a.StartAt.In(loc)), End: timeutil.FormatClock(a.EndAt.In(loc))}
}

// SameWindow reports whether both appointments occupy the identical interval.
func (a Appointment) SameWindow(other Appointment) bool {
	return a.StartAt.Equal(other.StartAt) && a.EndAt.Equal(other.EndAt)
}

// AppointmentFilter constrains listing queries.
type AppointmentFilter struct {
	TeacherID string
	StudentID string
	Status    []AppointmentStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// BookAppointmentRequest is a student's booking payload. Validation happens in
// the booking engine so each failure carries its own reason.
type BookAppointmentRequest struct {
	TeacherID string `json:"teacher_id"`
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Note      string `json:"note"`
}

// TransitionRequest carries the optional note of an approve, reject or cancel.
type TransitionRequest struct {
	Note *string `json:"note" validate:"omitempty,max=1000"`
}

// ListAppointmentsQuery holds listing query parameters. TeacherID and
// StudentID only apply to admins.
type ListAppointmentsQuery struct {
	TeacherID string `form:"teacher_id"`
	StudentID string `form:"student_id"`
	Status    string `form:"status"`
	From      string `form:"from"`
	To        string `form:"to"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// AppointmentCancellation is one planned cascade cancellation.
type AppointmentCancellation struct {
	Appointment Appointment `json:"appointment"`
	Reason      string      `json:"reason"`
}

// CascadeResult reports the number of appointments a cascade cancelled.
type CascadeResult struct {
	Cancelled int `json:"cancelled"`
}

// ApprovalResult reports the approved appointment and its auto-rejected rivals.
type ApprovalResult struct {
	Appointment  Appointment   `json:"appointment"`
	AutoRejected []Appointment `json:"auto_rejected"`
}
