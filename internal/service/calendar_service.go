package service

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/internal/repository"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

type calendarAvailabilityReader interface {
	GetWeekly(ctx context.Context, teacherID string) (models.WeeklyAvailability, *time.Time, error)
	ListBusy(ctx context.Context, teacherID, from, to string) ([]models.BusyBlock, error)
}

type calendarAppointmentReader interface {
	ListApprovedInRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.Appointment, error)
	ListTeacherWindow(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time, lock bool) ([]models.Appointment, error)
}

type calendarCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// CalendarService merges holidays, weekly class hours, busy blocks and
// approved appointments into one sorted unavailability list.
type CalendarService struct {
	policy       policyReader
	availability calendarAvailabilityReader
	appts        calendarAppointmentReader
	cache        calendarCache
	opts         SchedulingOptions
	logger       *zap.Logger
}

// NewCalendarService constructs the aggregator. cache may be nil.
func NewCalendarService(policy policyReader, availability calendarAvailabilityReader, appts calendarAppointmentReader, cache calendarCache, opts SchedulingOptions, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{policy: policy, availability: availability, appts: appts, cache: cache, opts: opts.normalize(), logger: logger}
}

// GetUnavailability aggregates every unavailable block of the teacher for the
// inclusive date range.
func (s *CalendarService) GetUnavailability(ctx context.Context, teacherID, from, to string) (*models.TeacherCalendar, error) {
	days, err := s.validateRange(teacherID, from, to)
	if err != nil {
		return nil, err
	}

	key := CalendarKey(teacherID, from, to)
	if s.cache != nil {
		var cached models.TeacherCalendar
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	policy, err := s.policy.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	weekly, _, err := s.availability.GetWeekly(ctx, teacherID)
	if err != nil && !isNoRows(err) {
		return nil, internalError(err, "failed to load weekly availability")
	}
	busy, err := s.availability.ListBusy(ctx, teacherID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to load busy blocks")
	}

	fromStart, _ := timeutil.ParseDate(from, s.opts.Location)
	toStart, _ := timeutil.ParseDate(to, s.opts.Location)
	approved, err := s.appts.ListApprovedInRange(ctx, teacherID, fromStart.UTC(), toStart.AddDate(0, 0, 1).UTC())
	if err != nil {
		if repository.IsTransient(err) {
			s.logger.Warn("appointment index unavailable", zap.String("teacher_id", teacherID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrIndexNotReady.Code, appErrors.ErrIndexNotReady.Status, appErrors.ErrIndexNotReady.Message)
		}
		return nil, internalError(err, "failed to load appointments")
	}

	blocks := make([]models.UnavailableBlock, 0)
	for _, h := range policy.Holidays {
		if h.Date >= from && h.Date <= to {
			note := h.Name
			if note == "" {
				note = "Holiday"
			}
			blocks = append(blocks, models.UnavailableBlock{Date: h.Date, Start: models.DayStart, End: models.DayEnd, Source: models.SourceHoliday, Note: note})
		}
	}
	for _, day := range days {
		d, _ := timeutil.ParseDate(day, time.UTC)
		for _, r := range weekly[timeutil.WeekdayKey(d)] {
			if _, _, ok := r.Bounds(); !ok {
				continue
			}
			blocks = append(blocks, models.UnavailableBlock{Date: day, Start: r.Start, End: r.End, Source: models.SourceWeekly})
		}
	}
	for _, b := range busy {
		block := models.UnavailableBlock{Date: b.Date, Start: b.Start, End: b.End, Source: models.SourceBusy}
		if b.Note != nil {
			block.Note = *b.Note
		}
		blocks = append(blocks, block)
	}
	for _, appt := range approved {
		r := appt.LocalRange(s.opts.Location)
		blocks = append(blocks, models.UnavailableBlock{Date: appt.LocalDate(s.opts.Location), Start: r.Start, End: r.End, Source: models.SourceAppointment})
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].SortKey() < blocks[j].SortKey() })

	result := &models.TeacherCalendar{TeacherID: teacherID, From: from, To: to, Workday: policy.Window(), Busy: blocks}
	if s.cache != nil {
		s.cache.Set(ctx, key, result, 0)
	}
	return result, nil
}

// GetFreeSlots returns the bookable slots of a teacher on date: the working
// window split into steps minus every unavailable block. Weekends, holidays
// and dates that are not in the future have no slots.
func (s *CalendarService) GetFreeSlots(ctx context.Context, teacherID, date string, step int) (*models.FreeSlots, error) {
	if step <= 0 {
		step = s.opts.SlotStep
	}
	if step > 24*60 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid slot step")
	}
	result := &models.FreeSlots{TeacherID: teacherID, Date: date, Step: step, Slots: []timeutil.Range{}}
	if !timeutil.IsDate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date")
	}
	day, _ := timeutil.ParseDate(date, s.opts.Location)
	if timeutil.IsWeekend(day) || date <= s.opts.today() {
		return result, nil
	}

	calendar, err := s.GetUnavailability(ctx, teacherID, date, date)
	if err != nil {
		return nil, err
	}
	busy := make([]timeutil.Range, 0, len(calendar.Busy))
	for _, block := range calendar.Busy {
		if block.Source == models.SourceHoliday {
			return result, nil
		}
		busy = append(busy, timeutil.Range{Start: block.Start, End: block.End})
	}
	slots, err := timeutil.GenerateSlots(calendar.Workday.Start, calendar.Workday.End, step)
	if err != nil {
		return nil, internalError(err, "invalid working window")
	}
	result.Slots = timeutil.Subtract(slots, busy)
	return result, nil
}

// GetTeacherDay returns the public occupied windows of a teacher on date:
// busy blocks plus pending and approved appointments, without identities.
func (s *CalendarService) GetTeacherDay(ctx context.Context, teacherID, date string) (*models.TeacherDay, error) {
	if teacherID == "" || !timeutil.IsDate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId and date required")
	}
	policy, err := s.policy.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	busy, err := s.availability.ListBusy(ctx, teacherID, date, date)
	if err != nil {
		return nil, internalError(err, "failed to load busy blocks")
	}
	from, to, err := s.opts.dayBounds(date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date")
	}
	appts, err := s.appts.ListTeacherWindow(ctx, nil, teacherID, from, to, false)
	if err != nil {
		if repository.IsTransient(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrIndexNotReady.Code, appErrors.ErrIndexNotReady.Status, appErrors.ErrIndexNotReady.Message)
		}
		return nil, internalError(err, "failed to load appointments")
	}

	day := &models.TeacherDay{TeacherID: teacherID, Date: date, Slots: []models.TeacherDaySlot{}}
	if h, ok := policy.HolidayOn(date); ok {
		day.Holiday = &h
	}
	for _, b := range busy {
		day.Slots = append(day.Slots, models.TeacherDaySlot{Start: b.Start, End: b.End, Kind: "busy"})
	}
	for _, appt := range appts {
		if !appt.Status.Active() {
			continue
		}
		r := appt.LocalRange(s.opts.Location)
		day.Slots = append(day.Slots, models.TeacherDaySlot{Start: r.Start, End: r.End, Kind: string(appt.Status)})
	}
	sort.SliceStable(day.Slots, func(i, j int) bool { return day.Slots[i].Start < day.Slots[j].Start })
	return day, nil
}

func (s *CalendarService) validateRange(teacherID, from, to string) ([]string, error) {
	if teacherID == "" || from == "" || to == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId, from (YYYY-MM-DD), to required")
	}
	if !timeutil.IsDate(from) || !timeutil.IsDate(to) || to < from {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
	}
	span, err := timeutil.DaySpan(from, to)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
	}
	if span > s.opts.MaxRangeDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Date range too large")
	}
	days, err := timeutil.DaysBetween(from, to)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
	}
	return days, nil
}
