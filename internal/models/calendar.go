package models

import "github.com/noah-isme/appointment-booking-api/pkg/timeutil"

// BlockSource identifies where an unavailable block came from.
type BlockSource string

const (
	SourceHoliday     BlockSource = "admin-holiday"
	SourceWeekly      BlockSource = "teacher-weekly"
	SourceBusy        BlockSource = "teacher-busy"
	SourceAppointment BlockSource = "appointment"
)

// Full-day bounds used for holiday blocks.
const (
	DayStart = "00:00"
	DayEnd   = "23:59"
)

// UnavailableBlock is one merged unavailable interval on a date.
type UnavailableBlock struct {
	Date   string      `json:"date"`
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Source BlockSource `json:"source"`
	Note   string      `json:"note,omitempty"`
}

// SortKey orders blocks chronologically given zero-padded values.
func (b UnavailableBlock) SortKey() string {
	return b.Date + b.Start
}

// CalendarQuery holds the aggregated calendar query parameters.
type CalendarQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// FreeSlots lists bookable slots for a teacher on a date.
type FreeSlots struct {
	TeacherID string           `json:"teacher_id"`
	Date      string           `json:"date"`
	Step      int              `json:"step"`
	Slots     []timeutil.Range `json:"slots"`
}

// TeacherDaySlot is a public, anonymised occupied window.
type TeacherDaySlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Kind  string `json:"kind"`
}

// TeacherDay is the public schedule of a teacher for one date.
type TeacherDay struct {
	TeacherID string           `json:"teacher_id"`
	Date      string           `json:"date"`
	Holiday   *Holiday         `json:"holiday,omitempty"`
	Slots     []TeacherDaySlot `json:"slots"`
}

// TeacherCalendar is the aggregated unavailability of a teacher over a date range.
type TeacherCalendar struct {
	TeacherID string             `json:"teacher_id"`
	From      string             `json:"from"`
	To        string             `json:"to"`
	Workday   timeutil.Range     `json:"workday"`
	Busy      []UnavailableBlock `json:"busy"`
}
