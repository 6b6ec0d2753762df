// Package timeutil holds the time-of-day and calendar-date arithmetic shared by
// the booking engine. Times of day are zero-padded "HH:MM" strings and dates are
// zero-padded "YYYY-MM-DD" strings, so lexicographic order equals chronological
// order for both.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the canonical calendar date layout.
const DateLayout = "2006-01-02"

// DefaultSlotStep is the slot width used when callers pass a non-positive step.
const DefaultSlotStep = 30

const secondsPerDay = 24 * 60 * 60

var (
	timeOfDayPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// WeekdayKeys lists the weekly availability keys indexed by time.Weekday.
var WeekdayKeys = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// Range is a half-open [Start, End) interval of "HH:MM" values.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// IsTimeOfDay reports whether value is a valid zero-padded HH:MM time.
func IsTimeOfDay(value string) bool {
	_, err := Minutes(value)
	return err == nil
}

// IsDate reports whether value is a valid zero-padded YYYY-MM-DD date.
func IsDate(value string) bool {
	_, err := ParseDate(value, time.UTC)
	return err == nil
}

// Minutes converts an HH:MM string into minutes since midnight.
func Minutes(value string) (int, error) {
	if !timeOfDayPattern.MatchString(value) {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	h, _ := strconv.Atoi(value[:2])
	m, _ := strconv.Atoi(value[3:])
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("time of day out of range %q", value)
	}
	return h*60 + m, nil
}

// FromMinutes renders minutes since midnight as HH:MM.
func FromMinutes(mins int) string {
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// ParseDate parses a zero-padded date at midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if !datePattern.MatchString(value) {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return d, nil
}

// FormatDate renders t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatClock renders t as HH:MM in its own location.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// Combine resolves a date and an HH:MM time into an instant in loc.
func Combine(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := Minutes(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), mins/60, mins%60, 0, 0, day.Location()), nil
}

// WeekdayKey returns the weekly availability key for t.
func WeekdayKey(t time.Time) string {
	return WeekdayKeys[t.Weekday()]
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return FormatDate(now.In(loc))
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}
	return FormatDate(d.AddDate(0, 0, n)), nil
}

// DaysBetween enumerates every date in [from, to] inclusive.
func DaysBetween(from, to string) ([]string, error) {
	span, err := DaySpan(from, to)
	if err != nil {
		return nil, err
	}
	start, _ := ParseDate(from, time.UTC)
	days := make([]string, 0, span)
	for i := 0; i < span; i++ {
		days = append(days, FormatDate(start.AddDate(0, 0, i)))
	}
	return days, nil
}

// DaySpan counts the calendar days in the inclusive range [from, to] without
// materializing them.
func DaySpan(from, to string) (int, error) {
	start, err := ParseDate(from, time.UTC)
	if err != nil {
		return 0, err
	}
	end, err := ParseDate(to, time.UTC)
	if err != nil {
		return 0, err
	}
	if end.Before(start) {
		return 0, fmt.Errorf("date range end %s before start %s", to, from)
	}
	return int((end.Unix()-start.Unix())/secondsPerDay) + 1, nil
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch at a boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return !(aEnd <= bStart || bEnd <= aStart)
}

// OverlapsAt is Overlaps for absolute instants.
func OverlapsAt(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !(!aEnd.After(bStart) || !bEnd.After(aStart))
}

// RangesOverlap compares two HH:MM ranges. Malformed ranges never overlap.
func RangesOverlap(a, b Range) bool {
	as, ae, ok := a.Bounds()
	if !ok {
		return false
	}
	bs, be, ok := b.Bounds()
	if !ok {
		return false
	}
	return Overlaps(as, ae, bs, be)
}

// Bounds returns the range in minutes and whether it is well formed.
func (r Range) Bounds() (int, int, bool) {
	start, err := Minutes(r.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err := Minutes(r.End)
	if err != nil {
		return 0, 0, false
	}
	return start, end, end > start
}

// Within reports whether r is well formed and lies inside window.
func (r Range) Within(window Range) bool {
	start, end, ok := r.Bounds()
	if !ok {
		return false
	}
	ws, we, ok := window.Bounds()
	if !ok {
		return false
	}
	return start >= ws && end <= we
}

// GenerateSlots splits [windowStart, windowEnd) into consecutive slots of
// stepMinutes. Slots that would end past windowEnd are not emitted.
func GenerateSlots(windowStart, windowEnd string, stepMinutes int) ([]Range, error) {
	start, err := Minutes(windowStart)
	if err != nil {
		return nil, err
	}
	end, err := Minutes(windowEnd)
	if err != nil {
		return nil, err
	}
	if stepMinutes <= 0 {
		stepMinutes = DefaultSlotStep
	}
	slots := make([]Range, 0)
	for t := start; t+stepMinutes <= end; t += stepMinutes {
		slots = append(slots, Range{Start: FromMinutes(t), End: FromMinutes(t + stepMinutes)})
	}
	return slots, nil
}

// Subtract removes every slot overlapping any busy range.
func Subtract(slots, busy []Range) []Range {
	free := make([]Range, 0, len(slots))
	for _, slot := range slots {
		blocked := false
		for _, b := range busy {
			if RangesOverlap(slot, b) {
				blocked = true
				break
			}
		}
		if !blocked {
			free = append(free, slot)
		}
	}
	return free
}
