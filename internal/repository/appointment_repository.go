package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

const appointmentColumns = `id, teacher_id, student_id, start_at, end_at, status, note, cancel_reason, decided_by, created_at, updated_at`

// AppointmentRepository persists appointments. Status only changes through
// conditional updates guarded by the expected source states.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new appointment row.
func (r *AppointmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentPending
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
	const query = `INSERT INTO appointments (` + appointmentColumns + `)
VALUES (:id, :teacher_id, :student_id, :start_at, :end_at, :status, :note, :cancel_reason, :decided_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, appt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// FindByID fetches an appointment by identifier.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	return r.find(ctx, r.db, id, false)
}

// LockByID fetches an appointment and locks its row for the transaction.
func (r *AppointmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Appointment, error) {
	return r.find(ctx, r.exec(exec), id, true)
}

func (r *AppointmentRepository) find(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var appt models.Appointment
	if err := sqlx.GetContext(ctx, exec, &appt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return &appt, nil
}

// ListTeacherWindow returns every appointment of the teacher starting in
// [from, to). With lock set the rows are locked so concurrent bookings and
// approvals for the same day serialize.
func (r *AppointmentRepository) ListTeacherWindow(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time, lock bool) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
WHERE teacher_id = $1 AND start_at >= $2 AND start_at < $3
ORDER BY start_at ASC, created_at ASC`
	if lock {
		query += ` FOR UPDATE`
	}
	appts := make([]models.Appointment, 0)
	if err := sqlx.SelectContext(ctx, r.exec(exec), &appts, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list teacher appointments: %w", err)
	}
	return appts, nil
}

// ListApprovedInRange returns approved appointments of the teacher starting in [from, to).
func (r *AppointmentRepository) ListApprovedInRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
WHERE teacher_id = $1 AND status = $2 AND start_at >= $3 AND start_at < $4
ORDER BY start_at ASC`
	appts := make([]models.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appts, query, teacherID, models.AppointmentApproved, from, to); err != nil {
		return nil, fmt.Errorf("list approved appointments: %w", err)
	}
	return appts, nil
}

// ListActiveAfter returns pending or approved appointments starting after
// `after`, optionally for one teacher, locking them for the transaction.
func (r *AppointmentRepository) ListActiveAfter(ctx context.Context, exec sqlx.ExtContext, teacherID string, after time.Time) ([]models.Appointment, error) {
	args := []interface{}{models.AppointmentPending, models.AppointmentApproved, after}
	query := `SELECT ` + appointmentColumns + ` FROM appointments
WHERE status IN ($1, $2) AND start_at > $3`
	if teacherID != "" {
		args = append(args, teacherID)
		query += ` AND teacher_id = $4`
	}
	query += ` ORDER BY start_at ASC FOR UPDATE`
	appts := make([]models.Appointment, 0)
	if err := sqlx.SelectContext(ctx, r.exec(exec), &appts, query, args...); err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return appts, nil
}

// List returns appointments matching the filter (latest start first) with total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("start_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("start_at < $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM appointments%s ORDER BY start_at DESC LIMIT %d OFFSET %d", appointmentColumns, where, limit, offset)

	appts := make([]models.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM appointments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appts, total, nil
}

// TransitionParams describes a guarded status change.
type TransitionParams struct {
	ID           string
	From         []models.AppointmentStatus
	To           models.AppointmentStatus
	CancelReason *string
	Note         *string
	DecidedBy    *string
	At           time.Time
}

// Transition applies a status change only when the row is still in one of the
// expected source states. sql.ErrNoRows means the guard did not hold.
func (r *AppointmentRepository) Transition(ctx context.Context, exec sqlx.ExtContext, params TransitionParams) error {
	if len(params.From) == 0 {
		return fmt.Errorf("transition requires source states")
	}
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	args := []interface{}{params.ID, params.To, params.CancelReason, params.DecidedBy, params.At, params.Note}
	placeholders := make([]string, len(params.From))
	for i, status := range params.From {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE appointments
SET status = $2, cancel_reason = COALESCE($3, cancel_reason), decided_by = COALESCE($4, decided_by), updated_at = $5, note = COALESCE($6, note)
WHERE id = $1 AND status IN (%s)`, strings.Join(placeholders, ","))
	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition appointment: %w", err)
	}
	return requireAffected(result, "transition appointment")
}

// CancelBatch cancels every planned appointment that is still pending or
// approved and returns how many rows changed.
func (r *AppointmentRepository) CancelBatch(ctx context.Context, exec sqlx.ExtContext, plan []models.AppointmentCancellation, decidedBy *string, at time.Time) (int, error) {
	cancelled := 0
	for _, item := range plan {
		reason := item.Reason
		err := r.Transition(ctx, exec, TransitionParams{
			ID:           item.Appointment.ID,
			From:         []models.AppointmentStatus{models.AppointmentPending, models.AppointmentApproved},
			To:           models.AppointmentCancelled,
			CancelReason: &reason,
			DecidedBy:    decidedBy,
			At:           at,
		})
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}
