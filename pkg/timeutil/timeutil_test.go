package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapsHalfOpen(t *testing.T) {
	assert.True(t, Overlaps(540, 600, 570, 630))
	assert.True(t, Overlaps(540, 600, 550, 560))
	assert.False(t, Overlaps(540, 600, 600, 630), "touching intervals must not overlap")
	assert.False(t, Overlaps(600, 630, 540, 600))
	assert.False(t, Overlaps(540, 600, 700, 730))
}

func TestOverlapsAt(t *testing.T) {
	base := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	assert.True(t, OverlapsAt(base, base.Add(time.Hour), base.Add(30*time.Minute), base.Add(90*time.Minute)))
	assert.False(t, OverlapsAt(base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2*time.Hour)))
}

func TestGenerateSlots(t *testing.T) {
	slots, err := GenerateSlots("09:00", "10:45", 30)
	require.NoError(t, err)
	assert.Equal(t, []Range{
		{Start: "09:00", End: "09:30"},
		{Start: "09:30", End: "10:00"},
		{Start: "10:00", End: "10:30"},
	}, slots)

	defaults, err := GenerateSlots("09:00", "10:00", 0)
	require.NoError(t, err)
	assert.Len(t, defaults, 2)

	empty, err := GenerateSlots("09:00", "09:20", 30)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = GenerateSlots("9:00", "10:00", 30)
	assert.Error(t, err)
}

func TestMinutesRejectsNonPadded(t *testing.T) {
	mins, err := Minutes("09:05")
	require.NoError(t, err)
	assert.Equal(t, 545, mins)

	for _, bad := range []string{"9:05", "09:5", "24:00", "12:60", "", "ab:cd"} {
		_, err := Minutes(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "09:05", FromMinutes(545))
}

func TestParseDateRejectsNonPadded(t *testing.T) {
	_, err := ParseDate("2026-1-05", time.UTC)
	assert.Error(t, err)
	_, err = ParseDate("2026-02-30", time.UTC)
	assert.Error(t, err)
	d, err := ParseDate("2026-02-28", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d.Weekday())
	assert.True(t, IsWeekend(d))
	assert.Equal(t, "sat", WeekdayKey(d))
}

func TestCombineUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	at, err := Combine("2026-11-02", "09:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 2, 2, 30, 0, 0, time.UTC), at.UTC())
	assert.Equal(t, "09:30", FormatClock(at))
}

func TestRangeWithin(t *testing.T) {
	window := Range{Start: "09:00", End: "17:00"}
	assert.True(t, Range{Start: "09:00", End: "17:00"}.Within(window))
	assert.True(t, Range{Start: "10:00", End: "11:00"}.Within(window))
	assert.False(t, Range{Start: "08:30", End: "09:30"}.Within(window))
	assert.False(t, Range{Start: "16:30", End: "17:30"}.Within(window))
	assert.False(t, Range{Start: "11:00", End: "10:00"}.Within(window))
	assert.False(t, Range{Start: "11:00", End: "11:00"}.Within(window))
}

func TestDaysBetween(t *testing.T) {
	days, err := DaysBetween("2026-12-30", "2027-01-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-12-30", "2026-12-31", "2027-01-01", "2027-01-02"}, days)

	_, err = DaysBetween("2026-12-30", "2026-12-29")
	assert.Error(t, err)
}

func TestDaySpan(t *testing.T) {
	span, err := DaySpan("2026-12-30", "2027-01-02")
	require.NoError(t, err)
	assert.Equal(t, 4, span)

	span, err = DaySpan("2026-10-19", "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 1, span)

	span, err = DaySpan("0001-01-01", "9999-12-31")
	require.NoError(t, err)
	assert.Equal(t, 3652059, span)

	_, err = DaySpan("2026-10-20", "2026-10-19")
	assert.Error(t, err)
	_, err = DaySpan("2026-1-20", "2026-10-19")
	assert.Error(t, err)
}

func TestSubtract(t *testing.T) {
	slots, err := GenerateSlots("09:00", "11:00", 30)
	require.NoError(t, err)
	free := Subtract(slots, []Range{{Start: "09:15", End: "10:00"}})
	assert.Equal(t, []Range{{Start: "10:00", End: "10:30"}, {Start: "10:30", End: "11:00"}}, free)
}

func TestToday(t *testing.T) {
	now := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-16", Today(now, time.UTC))
	assert.Equal(t, "2026-10-17", Today(now, time.FixedZone("UTC+7", 7*3600)))
}
