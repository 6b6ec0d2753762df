package models

import "time"

// NotificationKind classifies in-app notifications.
type NotificationKind string

const (
	NotificationApproved         NotificationKind = "appointment_approved"
	NotificationRejected         NotificationKind = "appointment_rejected"
	NotificationAutoRejected     NotificationKind = "appointment_auto_rejected"
	NotificationCancelled        NotificationKind = "appointment_cancelled"
	NotificationCascadeCancelled NotificationKind = "appointment_cascade_cancelled"
	NotificationTeacherRemoved   NotificationKind = "teacher_removed"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"user_id"`
	AppointmentID *string          `db:"appointment_id" json:"appointment_id,omitempty"`
	Kind          NotificationKind `db:"kind" json:"kind"`
	Message       string           `db:"message" json:"message"`
	ReadAt        *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}
