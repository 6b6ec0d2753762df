package models

import (
	"time"

	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

// Default organization working window.
const (
	DefaultWorkdayStart = "09:00"
	DefaultWorkdayEnd   = "17:00"
)

// Holiday is a named non-bookable date.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// OrganizationPolicy is the singleton working-hours and holiday calendar.
type OrganizationPolicy struct {
	WorkdayStart string     `json:"workday_start"`
	WorkdayEnd   string     `json:"workday_end"`
	Holidays     []Holiday  `json:"holidays"`
	UpdatedBy    *string    `json:"updated_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// DefaultPolicy is returned when no policy has been stored.
func DefaultPolicy() OrganizationPolicy {
	return OrganizationPolicy{
		WorkdayStart: DefaultWorkdayStart,
		WorkdayEnd:   DefaultWorkdayEnd,
		Holidays:     []Holiday{},
	}
}

// Window returns the working window as a range.
func (p OrganizationPolicy) Window() timeutil.Range {
	return timeutil.Range{Start: p.WorkdayStart, End: p.WorkdayEnd}
}

// HolidayOn returns the holiday falling on date, if any.
func (p OrganizationPolicy) HolidayOn(date string) (Holiday, bool) {
	for _, h := range p.Holidays {
		if h.Date == date {
			return h, true
		}
	}
	return Holiday{}, false
}

// SetPolicyRequest is the admin payload for replacing the policy.
type SetPolicyRequest struct {
	WorkdayStart string    `json:"workday_start" validate:"required"`
	WorkdayEnd   string    `json:"workday_end" validate:"required"`
	Holidays     []Holiday `json:"holidays"`
}

// PolicyUpdateResult reports the stored policy and the cascade blast radius.
type PolicyUpdateResult struct {
	Policy          OrganizationPolicy `json:"policy"`
	Cancelled       int                `json:"cancelled"`
	DroppedHolidays int                `json:"dropped_holidays"`
}
