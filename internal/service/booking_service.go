package service

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

type teacherLocker interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error)
}

type bookingAppointmentRepository interface {
	ListTeacherWindow(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time, lock bool) ([]models.Appointment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, appt *models.Appointment) error
}

// BookingService validates and records appointment requests. Checks run in a
// fixed order and the first failure is returned; nothing is written unless
// every check passes.
type BookingService struct {
	teachers     teacherLocker
	policy       policyReader
	availability calendarAvailabilityReader
	appts        bookingAppointmentRepository
	tx           txProvider
	notifier     outboxWriter
	cache        calendarInvalidator
	metrics      *MetricsService
	opts         SchedulingOptions
	logger       *zap.Logger
}

// NewBookingService constructs the booking engine.
func NewBookingService(teachers teacherLocker, policy policyReader, availability calendarAvailabilityReader, appts bookingAppointmentRepository, tx txProvider, notifier outboxWriter, cache calendarInvalidator, metrics *MetricsService, opts SchedulingOptions, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		teachers:     teachers,
		policy:       policy,
		availability: availability,
		appts:        appts,
		tx:           tx,
		notifier:     notifier,
		cache:        cache,
		metrics:      metrics,
		opts:         opts.normalize(),
		logger:       logger,
	}
}

func policyConflict(reason string) error {
	return appErrors.Clone(appErrors.ErrPolicyConflict, reason)
}

func slotConflict(reason string) error {
	return appErrors.Clone(appErrors.ErrConflict, reason)
}

// Book creates a pending appointment for the calling student.
func (s *BookingService) Book(ctx context.Context, actor models.Identity, req models.BookAppointmentRequest) (*models.Appointment, error) {
	appt, err := s.book(ctx, actor, req)
	outcome := "created"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordBooking(outcome)
	return appt, err
}

func (s *BookingService) book(ctx context.Context, actor models.Identity, req models.BookAppointmentRequest) (*models.Appointment, error) {
	teacherID := strings.TrimSpace(req.TeacherID)
	date := strings.TrimSpace(req.Date)
	slot := timeutil.Range{Start: strings.TrimSpace(req.Start), End: strings.TrimSpace(req.End)}
	loc := s.opts.Location

	if teacherID == "" || date == "" || slot.Start == "" || slot.End == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing fields")
	}
	startAt, errStart := timeutil.Combine(date, slot.Start, loc)
	endAt, errEnd := timeutil.Combine(date, slot.End, loc)
	if errStart != nil || errEnd != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing fields")
	}
	if !endAt.After(startAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid time range")
	}
	if timeutil.IsWeekend(startAt) {
		return nil, policyConflict("Weekends are not bookable")
	}
	today := s.opts.today()
	if date == today {
		return nil, policyConflict("Same-day bookings are not allowed")
	}
	if date < today {
		return nil, policyConflict("Past dates are not bookable")
	}
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only students can book")
	}
	if !actor.Approved {
		return nil, appErrors.Clone(appErrors.ErrAccountPending, "Account pending approval")
	}
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, internalError(err, "failed to load teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	policy, err := s.policy.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if !slot.Within(policy.Window()) {
		return nil, policyConflict("Outside working hours")
	}
	if _, holiday := policy.HolidayOn(date); holiday {
		return nil, policyConflict("Selected day is a holiday")
	}

	weekly, _, err := s.availability.GetWeekly(ctx, teacherID)
	if err != nil && !isNoRows(err) {
		return nil, internalError(err, "failed to load weekly availability")
	}
	if overlapsAny(slot, weekly[timeutil.WeekdayKey(startAt)]) {
		return nil, policyConflict("Overlaps teacher class hours")
	}
	busy, err := s.availability.ListBusy(ctx, teacherID, date, date)
	if err != nil {
		return nil, internalError(err, "failed to load busy blocks")
	}
	for _, b := range busy {
		if b.Date == date && timeutil.RangesOverlap(slot, b.Range()) {
			return nil, policyConflict("Overlaps teacher busy time")
		}
	}

	dayStart, dayEnd, _ := s.opts.dayBounds(date)
	appt := &models.Appointment{
		TeacherID: teacherID,
		StudentID: actor.UserID,
		StartAt:   startAt.UTC(),
		EndAt:     endAt.UTC(),
		Status:    models.AppointmentPending,
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		appt.Note = stringPtr(note)
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.teachers.LockByID(ctx, tx, teacherID); err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return internalError(err, "failed to lock teacher")
		}
		sameDay, err := s.appts.ListTeacherWindow(ctx, tx, teacherID, dayStart, dayEnd, true)
		if err != nil {
			return internalError(err, "failed to load teacher appointments")
		}
		for _, other := range sameDay {
			if other.StudentID == actor.UserID && other.Status.Active() && other.SameWindow(*appt) {
				return slotConflict("You already requested this slot")
			}
		}
		for _, other := range sameDay {
			if other.Status == models.AppointmentApproved && timeutil.OverlapsAt(appt.StartAt, appt.EndAt, other.StartAt, other.EndAt) {
				return slotConflict("Slot already taken")
			}
		}
		if err := s.appts.Create(ctx, tx, appt); err != nil {
			return internalError(err, "failed to create appointment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, teacherID)
	}
	if s.notifier != nil {
		outbox := &Outbox{}
		outbox.Emit(EventAppointmentRequested, appt.ID, appt)
		s.notifier.Dispatch(ctx, outbox)
	}
	s.logger.Info("appointment requested", zap.String("appointment_id", appt.ID), zap.String("teacher_id", teacherID), zap.String("student_id", actor.UserID))
	return appt, nil
}
