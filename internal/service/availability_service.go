package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

type availabilityRepository interface {
	GetWeekly(ctx context.Context, teacherID string) (models.WeeklyAvailability, *time.Time, error)
	UpsertWeekly(ctx context.Context, exec sqlx.ExtContext, teacherID string, weekly models.WeeklyAvailability) error
	ListBusy(ctx context.Context, teacherID, from, to string) ([]models.BusyBlock, error)
	CreateBusy(ctx context.Context, exec sqlx.ExtContext, block *models.BusyBlock) error
	ReplaceBusy(ctx context.Context, exec sqlx.ExtContext, teacherID string, blocks []models.BusyBlock) error
	DeleteBusy(ctx context.Context, id, teacherID string) error
}

type policyReader interface {
	GetPolicy(ctx context.Context) (*models.OrganizationPolicy, error)
}

// AvailabilityService manages a teacher's recurring class hours and ad-hoc
// busy blocks. Entries outside the organization window are dropped on write.
type AvailabilityService struct {
	repo      availabilityRepository
	policy    policyReader
	appts     cascadeAppointmentRepository
	tx        txProvider
	notifier  outboxWriter
	cache     calendarInvalidator
	audit     auditWriter
	metrics   *MetricsService
	opts      SchedulingOptions
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs the availability model.
func NewAvailabilityService(repo availabilityRepository, policy policyReader, appts cascadeAppointmentRepository, tx txProvider, notifier outboxWriter, cache calendarInvalidator, audit auditWriter, metrics *MetricsService, opts SchedulingOptions, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:      repo,
		policy:    policy,
		appts:     appts,
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

// SanitizeWeekly keeps well-formed ranges under known weekday keys that lie
// inside window, sorted by start. It returns how many ranges were dropped.
func SanitizeWeekly(input map[string][]timeutil.Range, window timeutil.Range) (models.WeeklyAvailability, int) {
	out := models.WeeklyAvailability{}
	known := make(map[string]struct{}, len(timeutil.WeekdayKeys))
	for _, key := range timeutil.WeekdayKeys {
		known[key] = struct{}{}
	}
	dropped := 0
	for key, ranges := range input {
		day := strings.ToLower(strings.TrimSpace(key))
		if _, ok := known[day]; !ok {
			dropped += len(ranges)
			continue
		}
		for _, r := range ranges {
			r = timeutil.Range{Start: strings.TrimSpace(r.Start), End: strings.TrimSpace(r.End)}
			if !r.Within(window) {
				dropped++
				continue
			}
			out[day] = append(out[day], r)
		}
	}
	for day := range out {
		ranges := out[day]
		sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	}
	return out, dropped
}

// SanitizeBusy keeps busy blocks dated today or later whose range lies inside
// window. It returns how many inputs were dropped.
func SanitizeBusy(teacherID string, input []models.BusyBlockInput, window timeutil.Range, today string) ([]models.BusyBlock, int) {
	out := make([]models.BusyBlock, 0, len(input))
	for _, in := range input {
		date := strings.TrimSpace(in.Date)
		r := timeutil.Range{Start: strings.TrimSpace(in.Start), End: strings.TrimSpace(in.End)}
		if !timeutil.IsDate(date) || date < today || !r.Within(window) {
			continue
		}
		out = append(out, models.BusyBlock{TeacherID: teacherID, Date: date, Start: r.Start, End: r.End, Note: in.Note})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].Start < out[j].Start
		}
		return out[i].Date < out[j].Date
	})
	return out, len(input) - len(out)
}

// GetAvailability returns the teacher's weekly ranges and upcoming busy blocks.
func (s *AvailabilityService) GetAvailability(ctx context.Context, teacherID string) (*models.TeacherAvailability, error) {
	weekly, updatedAt, err := s.repo.GetWeekly(ctx, teacherID)
	if err != nil && !isNoRows(err) {
		return nil, internalError(err, "failed to load weekly availability")
	}
	if weekly == nil {
		weekly = models.WeeklyAvailability{}
	}
	busy, err := s.repo.ListBusy(ctx, teacherID, s.opts.today(), "")
	if err != nil {
		return nil, internalError(err, "failed to load busy blocks")
	}
	return &models.TeacherAvailability{TeacherID: teacherID, Weekly: weekly, Busy: busy, UpdatedAt: updatedAt}, nil
}

// SetAvailability fully replaces the caller's availability and cancels future
// appointments that now collide with it.
func (s *AvailabilityService) SetAvailability(ctx context.Context, actor models.Identity, req models.SetAvailabilityRequest) (*models.AvailabilityUpdateResult, error) {
	if err := requireApprovedTeacher(actor); err != nil {
		return nil, err
	}
	policy, err := s.policy.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	window := policy.Window()
	weekly, droppedWeekly := SanitizeWeekly(req.Weekly, window)
	busy, droppedBusy := SanitizeBusy(actor.UserID, req.Busy, window, s.opts.today())

	now := s.opts.Now()
	outbox := &Outbox{}
	cancelled := 0
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.UpsertWeekly(ctx, tx, actor.UserID, weekly); err != nil {
			return internalError(err, "failed to save weekly availability")
		}
		if err := s.repo.ReplaceBusy(ctx, tx, actor.UserID, busy); err != nil {
			return internalError(err, "failed to save busy blocks")
		}
		var cascadeErr error
		cancelled, cascadeErr = s.cascade(ctx, tx, actor, weekly, busy, now, outbox)
		return cascadeErr
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, outbox, cancelled, map[string]interface{}{
		"dropped_weekly": droppedWeekly,
		"dropped_busy":   droppedBusy,
		"busy":           len(busy),
	})

	updatedAt := now.UTC()
	return &models.AvailabilityUpdateResult{
		Availability:  models.TeacherAvailability{TeacherID: actor.UserID, Weekly: weekly, Busy: busy, UpdatedAt: &updatedAt},
		DroppedWeekly: droppedWeekly,
		DroppedBusy:   droppedBusy,
		Cancelled:     cancelled,
	}, nil
}

// AddBusy adds one ad-hoc busy block for the caller.
func (s *AvailabilityService) AddBusy(ctx context.Context, actor models.Identity, input models.BusyBlockInput) (*models.BusyBlock, error) {
	if err := requireApprovedTeacher(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Missing fields")
	}
	date := strings.TrimSpace(input.Date)
	r := timeutil.Range{Start: strings.TrimSpace(input.Start), End: strings.TrimSpace(input.End)}
	if !timeutil.IsDate(date) || !timeutil.IsTimeOfDay(r.Start) || !timeutil.IsTimeOfDay(r.End) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date or time format")
	}
	if r.End <= r.Start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid time range")
	}
	if date < s.opts.today() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Past dates are not allowed")
	}
	policy, err := s.policy.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if !r.Within(policy.Window()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Busy time must be within working hours")
	}

	block := &models.BusyBlock{TeacherID: actor.UserID, Date: date, Start: r.Start, End: r.End, Note: input.Note}
	now := s.opts.Now()
	outbox := &Outbox{}
	cancelled := 0
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.CreateBusy(ctx, tx, block); err != nil {
			return internalError(err, "failed to save busy block")
		}
		var cascadeErr error
		cancelled, cascadeErr = s.cascade(ctx, tx, actor, nil, []models.BusyBlock{*block}, now, outbox)
		return cascadeErr
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, outbox, cancelled, map[string]interface{}{"busy_block": block.ID})
	return block, nil
}

// ListBusy returns a teacher's busy blocks in an optional inclusive date range.
func (s *AvailabilityService) ListBusy(ctx context.Context, teacherID, from, to string) ([]models.BusyBlock, error) {
	if (from != "" && !timeutil.IsDate(from)) || (to != "" && !timeutil.IsDate(to)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid date range")
	}
	blocks, err := s.repo.ListBusy(ctx, teacherID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to load busy blocks")
	}
	return blocks, nil
}

// DeleteBusy removes a busy block owned by the caller. Admins may delete any block.
func (s *AvailabilityService) DeleteBusy(ctx context.Context, actor models.Identity, id string) error {
	owner := actor.UserID
	switch {
	case actor.IsAdmin():
		owner = ""
	case actor.IsTeacher():
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}
	if err := s.repo.DeleteBusy(ctx, id, owner); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "busy block not found")
		}
		return internalError(err, "failed to delete busy block")
	}
	if s.cache != nil {
		if owner == "" {
			s.cache.InvalidateAll(ctx)
		} else {
			s.cache.InvalidateTeacher(ctx, owner)
		}
	}
	return nil
}

func (s *AvailabilityService) cascade(ctx context.Context, tx *sqlx.Tx, actor models.Identity, weekly models.WeeklyAvailability, busy []models.BusyBlock, now time.Time, outbox *Outbox) (int, error) {
	candidates, err := s.appts.ListActiveAfter(ctx, tx, actor.UserID, now)
	if err != nil {
		return 0, internalError(err, "failed to load future appointments")
	}
	plan := PlanAvailabilityCascade(weekly, busy, candidates, s.opts.Location)
	cancelled, err := s.appts.CancelBatch(ctx, tx, plan, stringPtr(actor.UserID), now)
	if err != nil {
		return 0, internalError(err, "failed to cancel appointments")
	}
	for _, item := range plan {
		outbox.Add(cascadeNotices(item, SubjectAvailabilityCascade, "a change in the teacher's availability", s.opts.Location)...)
		outbox.Emit(EventAppointmentCancelled, item.Appointment.ID, item)
	}
	outbox.Emit(EventAvailabilityUpdated, actor.UserID, map[string]interface{}{"cancelled": cancelled})
	if s.notifier != nil {
		if err := s.notifier.Record(ctx, tx, outbox); err != nil {
			return 0, err
		}
	}
	return cancelled, nil
}

func (s *AvailabilityService) afterWrite(ctx context.Context, actor models.Identity, outbox *Outbox, cancelled int, audit map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, outbox)
	}
	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, actor.UserID)
	}
	s.metrics.RecordCascade("availability", cancelled)
	audit["cancelled"] = cancelled
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionAvailability, "availability", actor.UserID, audit)
}

func requireApprovedTeacher(actor models.Identity) error {
	if !actor.IsTeacher() {
		return appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}
	if !actor.Approved {
		return appErrors.Clone(appErrors.ErrAccountPending, "Not approved")
	}
	return nil
}
