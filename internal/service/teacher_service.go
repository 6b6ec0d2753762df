package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, teacher *models.Teacher) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type teacherAccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	GrantRole(ctx context.Context, exec sqlx.ExtContext, id string, role models.UserRole) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	DeleteUserRefreshTokens(ctx context.Context, exec sqlx.ExtContext, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type teacherAvailabilityCleaner interface {
	DeleteBusyByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) error
	DeleteWeekly(ctx context.Context, exec sqlx.ExtContext, teacherID string) error
}

type resetLinkIssuer interface {
	ResetLink(user *models.User) (string, error)
}

// TeacherService onboards, lists and removes teachers.
type TeacherService struct {
	teachers     teacherRepository
	users        teacherAccountRepository
	availability teacherAvailabilityCleaner
	appts        cascadeAppointmentRepository
	resets       resetLinkIssuer
	tx           txProvider
	notifier     outboxWriter
	cache        calendarInvalidator
	metrics      *MetricsService
	opts         SchedulingOptions
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(teachers teacherRepository, users teacherAccountRepository, availability teacherAvailabilityCleaner, appts cascadeAppointmentRepository, resets resetLinkIssuer, tx txProvider, notifier outboxWriter, cache calendarInvalidator, metrics *MetricsService, opts SchedulingOptions, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TeacherService{
		teachers:     teachers,
		users:        users,
		availability: availability,
		appts:        appts,
		resets:       resets,
		tx:           tx,
		notifier:     notifier,
		cache:        cache,
		metrics:      metrics,
		opts:         opts.normalize(),
		validator:    validate,
		logger:       logger,
	}
}

// List returns active teachers with pagination metadata.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	teachers, total, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list teachers")
	}
	if teachers == nil {
		teachers = []models.Teacher{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return teachers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a teacher profile.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, internalError(err, "failed to load teacher")
	}
	return teacher, nil
}

// Invite creates or promotes the account for email to a teacher and mails a
// link for setting the password. Re-inviting refreshes the profile.
func (s *TeacherService) Invite(ctx context.Context, actor models.Identity, req models.InviteTeacherRequest) (*models.InviteTeacherResult, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invite payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	created := false
	if err != nil {
		if !isNoRows(err) {
			return nil, internalError(err, "failed to look up account")
		}
		hash, err := placeholderPasswordHash()
		if err != nil {
			return nil, internalError(err, "failed to prepare account")
		}
		user = &models.User{
			Email:        req.Email,
			PasswordHash: hash,
			FullName:     req.FullName,
			Roles:        pq.StringArray{string(models.RoleTeacher)},
			Approved:     true,
			Active:       true,
		}
		created = true
	}

	teacher := &models.Teacher{
		Email:      req.Email,
		FullName:   req.FullName,
		Department: strings.TrimSpace(req.Department),
		Subject:    strings.TrimSpace(req.Subject),
	}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if created {
			if err := s.users.Create(ctx, tx, user); err != nil {
				return internalError(err, "failed to create teacher account")
			}
		} else if err := s.users.GrantRole(ctx, tx, user.ID, models.RoleTeacher); err != nil {
			return internalError(err, "failed to grant teacher role")
		}
		teacher.ID = user.ID
		if err := s.teachers.Upsert(ctx, tx, teacher); err != nil {
			return internalError(err, "failed to save teacher profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outbox := &Outbox{}
	if s.resets != nil {
		link, err := s.resets.ResetLink(user)
		if err != nil {
			s.logger.Warn("failed to issue invite link", zap.String("teacher_id", user.ID), zap.Error(err))
		} else {
			outbox.Add(inviteNotice(*user, link))
		}
	}
	outbox.Emit(EventTeacherInvited, teacher.ID, teacher)
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, outbox)
	}
	recordAudit(ctx, s.users, s.logger, actor.UserID, models.AuditActionTeacherInvite, "teachers", teacher.ID, map[string]interface{}{
		"email":        teacher.Email,
		"user_created": created,
	})
	return &models.InviteTeacherResult{Teacher: *teacher, UserCreated: created}, nil
}

// Remove deletes a teacher account. Every future pending or approved
// appointment is cancelled in the same transaction that deletes the teacher's
// availability, profile, sessions and user row.
func (s *TeacherService) Remove(ctx context.Context, actor models.Identity, teacherID string) (*models.TeacherRemovalResult, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing id")
	}
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, internalError(err, "failed to load teacher")
	}
	if !user.HasRole(models.RoleTeacher) {
		if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
			if isNoRows(err) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return nil, internalError(err, "failed to load teacher")
		}
	}

	now := s.opts.Now()
	outbox := &Outbox{}
	cancelled := 0
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		candidates, err := s.appts.ListActiveAfter(ctx, tx, teacherID, now)
		if err != nil {
			return internalError(err, "failed to load future appointments")
		}
		plan := PlanTeacherRemoval(teacherID, candidates)
		if cancelled, err = s.appts.CancelBatch(ctx, tx, plan, stringPtr(actor.UserID), now); err != nil {
			return internalError(err, "failed to cancel appointments")
		}
		for _, item := range plan {
			outbox.Add(teacherRemovedNotice(item, s.opts.Location))
			outbox.Emit(EventAppointmentCancelled, item.Appointment.ID, item)
		}
		if s.notifier != nil {
			if err := s.notifier.Record(ctx, tx, outbox); err != nil {
				return err
			}
		}

		if err := s.availability.DeleteBusyByTeacher(ctx, tx, teacherID); err != nil {
			return internalError(err, "failed to delete busy blocks")
		}
		if err := s.availability.DeleteWeekly(ctx, tx, teacherID); err != nil {
			return internalError(err, "failed to delete weekly availability")
		}
		if err := s.teachers.Delete(ctx, tx, teacherID); err != nil {
			return internalError(err, "failed to delete teacher profile")
		}
		if err := s.users.DeleteUserRefreshTokens(ctx, tx, teacherID); err != nil {
			return internalError(err, "failed to delete sessions")
		}
		if err := s.users.Delete(ctx, tx, teacherID); err != nil && !isNoRows(err) {
			return internalError(err, "failed to delete teacher account")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outbox.Add(teacherAccountRemovedNotice(*user, cancelled))
	outbox.Emit(EventTeacherRemoved, teacherID, map[string]interface{}{"teacher_id": teacherID, "cancelled": cancelled})
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, outbox)
	}
	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, teacherID)
	}
	s.metrics.RecordCascade("teacher_removal", cancelled)
	recordAudit(ctx, s.users, s.logger, actor.UserID, models.AuditActionTeacherRemove, "teachers", teacherID, map[string]interface{}{
		"email":     user.Email,
		"cancelled": cancelled,
	})
	s.logger.Info("teacher removed", zap.String("teacher_id", teacherID), zap.Int("cancelled", cancelled))
	return &models.TeacherRemovalResult{TeacherID: teacherID, Cancelled: cancelled}, nil
}

// placeholderPasswordHash hashes random bytes so an invited account cannot
// log in until the password is set through the reset link.
func placeholderPasswordHash() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
