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

type policyRepository interface {
	Get(ctx context.Context) (*models.OrganizationPolicy, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, policy *models.OrganizationPolicy) error
}

type cascadeAppointmentRepository interface {
	ListActiveAfter(ctx context.Context, exec sqlx.ExtContext, teacherID string, after time.Time) ([]models.Appointment, error)
	CancelBatch(ctx context.Context, exec sqlx.ExtContext, plan []models.AppointmentCancellation, decidedBy *string, at time.Time) (int, error)
}

// PolicyService owns the organization working window and holiday calendar.
type PolicyService struct {
	repo      policyRepository
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

// NewPolicyService constructs the policy store.
func NewPolicyService(repo policyRepository, appts cascadeAppointmentRepository, tx txProvider, notifier outboxWriter, cache calendarInvalidator, audit auditWriter, metrics *MetricsService, opts SchedulingOptions, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		repo:      repo,
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

// GetPolicy returns the stored policy or the default 09:00-17:00 window.
func (s *PolicyService) GetPolicy(ctx context.Context) (*models.OrganizationPolicy, error) {
	policy, err := s.repo.Get(ctx)
	if err != nil {
		if isNoRows(err) {
			def := models.DefaultPolicy()
			return &def, nil
		}
		return nil, internalError(err, "failed to load organization policy")
	}
	if policy.Holidays == nil {
		policy.Holidays = []models.Holiday{}
	}
	return policy, nil
}

// SanitizeHolidays drops incomplete, malformed and past entries, keeps the
// first entry per date and sorts ascending. It returns how many were dropped.
func SanitizeHolidays(input []models.Holiday, today string) ([]models.Holiday, int) {
	seen := make(map[string]struct{}, len(input))
	out := make([]models.Holiday, 0, len(input))
	for _, raw := range input {
		date := strings.TrimSpace(raw.Date)
		name := strings.TrimSpace(raw.Name)
		if date == "" || name == "" || !timeutil.IsDate(date) || date < today {
			continue
		}
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		out = append(out, models.Holiday{Date: date, Name: name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, len(input) - len(out)
}

// SetPolicy replaces the policy and cancels future appointments that no longer
// fit, all in one transaction. Notifications go out after commit.
func (s *PolicyService) SetPolicy(ctx context.Context, actor models.Identity, req models.SetPolicyRequest) (*models.PolicyUpdateResult, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}
	req.WorkdayStart = strings.TrimSpace(req.WorkdayStart)
	req.WorkdayEnd = strings.TrimSpace(req.WorkdayEnd)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Invalid time format for workday start/end")
	}
	start, errStart := timeutil.Minutes(req.WorkdayStart)
	end, errEnd := timeutil.Minutes(req.WorkdayEnd)
	if errStart != nil || errEnd != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid time format for workday start/end")
	}
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Workday start must be before workday end")
	}

	now := s.opts.Now()
	holidays, dropped := SanitizeHolidays(req.Holidays, s.opts.today())
	updatedAt := now.UTC()
	policy := &models.OrganizationPolicy{
		WorkdayStart: req.WorkdayStart,
		WorkdayEnd:   req.WorkdayEnd,
		Holidays:     holidays,
		UpdatedBy:    stringPtr(actor.UserID),
		UpdatedAt:    &updatedAt,
	}

	outbox := &Outbox{}
	cancelled := 0
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Upsert(ctx, tx, policy); err != nil {
			return internalError(err, "failed to save organization policy")
		}
		candidates, err := s.appts.ListActiveAfter(ctx, tx, "", now)
		if err != nil {
			return internalError(err, "failed to load future appointments")
		}
		plan := PlanPolicyCascade(*policy, candidates, s.opts.Location)
		if cancelled, err = s.appts.CancelBatch(ctx, tx, plan, stringPtr(actor.UserID), now); err != nil {
			return internalError(err, "failed to cancel appointments")
		}
		for _, item := range plan {
			outbox.Add(cascadeNotices(item, SubjectPolicyCascade, "organization settings change", s.opts.Location)...)
			outbox.Emit(EventAppointmentCancelled, item.Appointment.ID, item)
		}
		outbox.Emit(EventPolicyUpdated, "organization", policy)
		if s.notifier != nil {
			return s.notifier.Record(ctx, tx, outbox)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, outbox)
	}
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
	s.metrics.RecordCascade("policy", cancelled)
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionPolicyUpdate, "policy", "organization", map[string]interface{}{
		"workday_start": policy.WorkdayStart,
		"workday_end":   policy.WorkdayEnd,
		"holidays":      len(policy.Holidays),
		"cancelled":     cancelled,
	})
	s.logger.Info("organization policy updated", zap.String("actor", actor.UserID), zap.Int("cancelled", cancelled), zap.Int("dropped_holidays", dropped))

	return &models.PolicyUpdateResult{Policy: *policy, Cancelled: cancelled, DroppedHolidays: dropped}, nil
}
