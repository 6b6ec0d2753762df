package models

import (
	"time"

	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

// WeeklyAvailability maps weekday keys (sun..sat) to recurring busy ranges.
type WeeklyAvailability map[string][]timeutil.Range

// BusyBlock is a one-off unavailable range for a teacher on a date.
type BusyBlock struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Date      string    `db:"busy_date" json:"date"`
	Start     string    `db:"start_time" json:"start"`
	End       string    `db:"end_time" json:"end"`
	Note      *string   `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Range returns the block's time range.
func (b BusyBlock) Range() timeutil.Range {
	return timeutil.Range{Start: b.Start, End: b.End}
}

// TeacherAvailability bundles the weekly document and the busy blocks.
type TeacherAvailability struct {
	TeacherID string             `json:"teacher_id"`
	Weekly    WeeklyAvailability `json:"weekly"`
	Busy      []BusyBlock        `json:"busy"`
	UpdatedAt *time.Time         `json:"updated_at,omitempty"`
}

// BusyBlockInput is a submitted busy block.
type BusyBlockInput struct {
	Date  string  `json:"date" validate:"required"`
	Start string  `json:"start" validate:"required"`
	End   string  `json:"end" validate:"required"`
	Note  *string `json:"note" validate:"omitempty,max=500"`
}

// SetAvailabilityRequest fully replaces a teacher's availability.
type SetAvailabilityRequest struct {
	Weekly map[string][]timeutil.Range `json:"weekly"`
	Busy   []BusyBlockInput            `json:"busy"`
}

// AvailabilityUpdateResult reports what was stored, dropped and cancelled.
type AvailabilityUpdateResult struct {
	Availability  TeacherAvailability `json:"availability"`
	DroppedWeekly int                 `json:"dropped_weekly"`
	DroppedBusy   int                 `json:"dropped_busy"`
	Cancelled     int                 `json:"cancelled"`
}
