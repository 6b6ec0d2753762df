package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/internal/repository"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

type lifecycleAppointmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Appointment, error)
	ListTeacherWindow(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time, lock bool) ([]models.Appointment, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) error
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
}

// AppointmentService drives the pending -> approved / cancelled state machine.
type AppointmentService struct {
	appts     lifecycleAppointmentRepository
	teachers  teacherLocker
	tx        txProvider
	notifier  outboxWriter
	cache     calendarInvalidator
	audit     auditWriter
	metrics   *MetricsService
	opts      SchedulingOptions
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAppointmentService constructs the lifecycle manager.
func NewAppointmentService(appts lifecycleAppointmentRepository, teachers teacherLocker, tx txProvider, notifier outboxWriter, cache calendarInvalidator, audit auditWriter, metrics *MetricsService, opts SchedulingOptions, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{
		appts:     appts,
		teachers:  teachers,
		tx:        tx,
		notifier:  notifier,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		opts:      opts.normalize(),
		validator: validate,
		logger:    logger,
	}
}

// Get returns one appointment visible to the caller.
func (s *AppointmentService) Get(ctx context.Context, actor models.Identity, id string) (*models.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && appt.TeacherID != actor.UserID && appt.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Not found")
	}
	return appt, nil
}

// Approve accepts a pending request and auto-rejects pending requests for the
// identical window on the same day.
func (s *AppointmentService) Approve(ctx context.Context, actor models.Identity, id string, req models.TransitionRequest) (*models.ApprovalResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ownsAsTeacher(actor, appt) && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}

	now := s.opts.Now()
	result := &models.ApprovalResult{AutoRejected: []models.Appointment{}}
	outbox := &Outbox{}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		target, err := s.lockForDecision(ctx, tx, appt)
		if err != nil {
			return err
		}
		if target.Status != models.AppointmentPending {
			return slotConflict("Not pending")
		}
		dayStart, dayEnd, _ := s.opts.dayBounds(target.LocalDate(s.opts.Location))
		sameDay, err := s.appts.ListTeacherWindow(ctx, tx, target.TeacherID, dayStart, dayEnd, true)
		if err != nil {
			return internalError(err, "failed to load teacher appointments")
		}
		for _, other := range sameDay {
			if other.ID != target.ID && other.Status == models.AppointmentApproved &&
				timeutil.OverlapsAt(target.StartAt, target.EndAt, other.StartAt, other.EndAt) {
				return slotConflict("Overlaps an approved appointment")
			}
		}

		if err := s.transition(ctx, tx, target, models.AppointmentApproved, actor, req.Note, now); err != nil {
			return err
		}
		outbox.Add(approvedNotice(*target, s.opts.Location))
		outbox.Emit(EventAppointmentApproved, target.ID, target)

		for _, other := range sameDay {
			if other.ID == target.ID || other.Status != models.AppointmentPending || !other.SameWindow(*target) {
				continue
			}
			rival := other
			if err := s.transition(ctx, tx, &rival, models.AppointmentCancelled, actor, stringPtr(models.NoteAutoRejected), now); err != nil {
				if appErrors.IsCode(err, appErrors.ErrConflict.Code) {
					continue
				}
				return err
			}
			result.AutoRejected = append(result.AutoRejected, rival)
			outbox.Add(autoRejectedNotice(rival, s.opts.Location))
			outbox.Emit(EventAppointmentCancelled, rival.ID, rival)
		}
		result.Appointment = *target
		return s.record(ctx, tx, outbox)
	})
	if err != nil {
		return nil, err
	}

	s.after(ctx, actor, "approve", &result.Appointment, outbox)
	s.metrics.RecordCascade("auto_reject", len(result.AutoRejected))
	return result, nil
}

// Reject declines a pending request.
func (s *AppointmentService) Reject(ctx context.Context, actor models.Identity, id string, req models.TransitionRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ownsAsTeacher(actor, appt) && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}

	now := s.opts.Now()
	outbox := &Outbox{}
	var target *models.Appointment
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.appts.LockByID(ctx, tx, appt.ID)
		if err != nil {
			return s.lookupError(err)
		}
		if locked.Status != models.AppointmentPending {
			return slotConflict("Not pending")
		}
		if err := s.transition(ctx, tx, locked, models.AppointmentCancelled, actor, req.Note, now); err != nil {
			return err
		}
		target = locked
		outbox.Add(rejectedNotice(*locked, s.opts.Location))
		outbox.Emit(EventAppointmentRejected, locked.ID, locked)
		return s.record(ctx, tx, outbox)
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, actor, "reject", target, outbox)
	return target, nil
}

// Cancel withdraws a pending or approved appointment. Only admins may cancel
// appointments that already started.
func (s *AppointmentService) Cancel(ctx context.Context, actor models.Identity, id string, req models.TransitionRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	isTeacher := s.ownsAsTeacher(actor, appt)
	isStudent := actor.IsStudent() && appt.StudentID == actor.UserID
	isAdmin := actor.IsAdmin()
	teacherCapacity := isTeacher || (isAdmin && actor.IsTeacher())
	if !isTeacher && !isStudent && !isAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}

	now := s.opts.Now()
	if !isAdmin && !appt.StartAt.After(now) {
		return nil, policyConflict("Past appointments cannot be cancelled")
	}

	outbox := &Outbox{}
	var target *models.Appointment
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.appts.LockByID(ctx, tx, appt.ID)
		if err != nil {
			return s.lookupError(err)
		}
		if !locked.Status.Active() {
			return slotConflict("Already cancelled")
		}
		if err := s.transition(ctx, tx, locked, models.AppointmentCancelled, actor, req.Note, now); err != nil {
			return err
		}
		target = locked
		switch {
		case teacherCapacity:
			outbox.Add(cancelledByTeacherNotice(*locked, s.opts.Location))
		case isStudent:
			outbox.Add(cancelledByStudentNotice(*locked, s.opts.Location))
		}
		outbox.Emit(EventAppointmentCancelled, locked.ID, locked)
		return s.record(ctx, tx, outbox)
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, actor, "cancel", target, outbox)
	return target, nil
}

// List returns appointments scoped to the caller: students see their own
// requests, teachers their own schedule and admins everything.
func (s *AppointmentService) List(ctx context.Context, actor models.Identity, query models.ListAppointmentsQuery) ([]models.Appointment, int, error) {
	filter := models.AppointmentFilter{Limit: query.Limit, Offset: query.Offset}
	switch {
	case actor.IsAdmin():
		filter.TeacherID = strings.TrimSpace(query.TeacherID)
		filter.StudentID = strings.TrimSpace(query.StudentID)
	case actor.IsTeacher():
		filter.TeacherID = actor.UserID
	default:
		filter.StudentID = actor.UserID
	}

	statuses, err := ParseStatuses(query.Status)
	if err != nil {
		return nil, 0, err
	}
	filter.Status = statuses

	if query.From != "" {
		from, _, err := s.opts.dayBounds(query.From)
		if err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
		}
		filter.From = &from
	}
	if query.To != "" {
		_, to, err := s.opts.dayBounds(query.To)
		if err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
	}

	appts, total, err := s.appts.List(ctx, filter)
	if err != nil {
		return nil, 0, internalError(err, "failed to list appointments")
	}
	return appts, total, nil
}

// ParseStatuses parses a comma separated status filter.
func ParseStatuses(raw string) ([]models.AppointmentStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make([]models.AppointmentStatus, 0, 3)
	for _, part := range strings.Split(raw, ",") {
		status := models.AppointmentStatus(strings.ToLower(strings.TrimSpace(part)))
		switch status {
		case models.AppointmentPending, models.AppointmentApproved, models.AppointmentCancelled:
			out = append(out, status)
		case "":
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
		}
	}
	return out, nil
}

func (s *AppointmentService) load(ctx context.Context, id string) (*models.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing id")
	}
	appt, err := s.appts.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	return appt, nil
}

func (s *AppointmentService) lookupError(err error) error {
	if isNoRows(err) {
		return appErrors.Clone(appErrors.ErrNotFound, "Not found")
	}
	return internalError(err, "failed to load appointment")
}

func (s *AppointmentService) ownsAsTeacher(actor models.Identity, appt *models.Appointment) bool {
	return actor.IsTeacher() && appt.TeacherID == actor.UserID
}

// lockForDecision locks the teacher row before the appointment row, the same
// order the booking engine uses, so concurrent decisions cannot deadlock.
func (s *AppointmentService) lockForDecision(ctx context.Context, tx *sqlx.Tx, appt *models.Appointment) (*models.Appointment, error) {
	if s.teachers != nil {
		if _, err := s.teachers.LockByID(ctx, tx, appt.TeacherID); err != nil && !isNoRows(err) {
			return nil, internalError(err, "failed to lock teacher")
		}
	}
	locked, err := s.appts.LockByID(ctx, tx, appt.ID)
	if err != nil {
		return nil, s.lookupError(err)
	}
	return locked, nil
}

func (s *AppointmentService) transition(ctx context.Context, tx *sqlx.Tx, appt *models.Appointment, to models.AppointmentStatus, actor models.Identity, note *string, at time.Time) error {
	from := []models.AppointmentStatus{models.AppointmentPending}
	if to == models.AppointmentCancelled && appt.Status == models.AppointmentApproved {
		from = []models.AppointmentStatus{models.AppointmentApproved}
	}
	err := s.appts.Transition(ctx, tx, repository.TransitionParams{
		ID:        appt.ID,
		From:      from,
		To:        to,
		Note:      note,
		DecidedBy: stringPtr(actor.UserID),
		At:        at,
	})
	if err != nil {
		if isNoRows(err) {
			return slotConflict("Not pending")
		}
		return internalError(err, "failed to update appointment")
	}
	appt.Status = to
	appt.DecidedBy = stringPtr(actor.UserID)
	appt.UpdatedAt = at.UTC()
	if note != nil {
		appt.Note = note
	}
	return nil
}

func (s *AppointmentService) record(ctx context.Context, tx *sqlx.Tx, outbox *Outbox) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Record(ctx, tx, outbox)
}

func (s *AppointmentService) after(ctx context.Context, actor models.Identity, action string, appt *models.Appointment, outbox *Outbox) {
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, outbox)
	}
	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, appt.TeacherID)
	}
	s.metrics.RecordTransition(action)
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionAppointmentState, "appointment", appt.ID, map[string]interface{}{
		"action": action,
		"status": appt.Status,
	})
}
