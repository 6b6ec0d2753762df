package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

const busyColumns = `id, teacher_id, busy_date, start_time, end_time, note, created_at`

type weeklyRow struct {
	TeacherID string         `db:"teacher_id"`
	Weekly    types.JSONText `db:"weekly"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// AvailabilityRepository persists weekly class hours and ad-hoc busy blocks.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetWeekly returns the weekly document, or sql.ErrNoRows when none was saved.
func (r *AvailabilityRepository) GetWeekly(ctx context.Context, teacherID string) (models.WeeklyAvailability, *time.Time, error) {
	const query = `SELECT teacher_id, weekly, updated_at FROM teacher_availability WHERE teacher_id = $1`
	var row weeklyRow
	if err := r.db.GetContext(ctx, &row, query, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("get weekly availability: %w", err)
	}
	weekly := models.WeeklyAvailability{}
	if len(row.Weekly) > 0 {
		if err := json.Unmarshal(row.Weekly, &weekly); err != nil {
			return nil, nil, fmt.Errorf("decode weekly availability: %w", err)
		}
	}
	updated := row.UpdatedAt
	return weekly, &updated, nil
}

// UpsertWeekly replaces the weekly document.
func (r *AvailabilityRepository) UpsertWeekly(ctx context.Context, exec sqlx.ExtContext, teacherID string, weekly models.WeeklyAvailability) error {
	if weekly == nil {
		weekly = models.WeeklyAvailability{}
	}
	payload, err := json.Marshal(weekly)
	if err != nil {
		return fmt.Errorf("encode weekly availability: %w", err)
	}
	row := weeklyRow{TeacherID: teacherID, Weekly: types.JSONText(payload), UpdatedAt: time.Now().UTC()}
	const query = `INSERT INTO teacher_availability (teacher_id, weekly, updated_at)
VALUES (:teacher_id, :weekly, :updated_at)
ON CONFLICT (teacher_id) DO UPDATE
SET weekly = EXCLUDED.weekly,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("upsert weekly availability: %w", err)
	}
	return nil
}

// DeleteWeekly removes the weekly document of a teacher.
func (r *AvailabilityRepository) DeleteWeekly(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM teacher_availability WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("delete weekly availability: %w", err)
	}
	return nil
}

// ListBusy returns busy blocks of a teacher, optionally bounded by an inclusive
// date range. Empty bounds are open.
func (r *AvailabilityRepository) ListBusy(ctx context.Context, teacherID, from, to string) ([]models.BusyBlock, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + busyColumns + ` FROM teacher_busy_blocks WHERE teacher_id = $1`)
	args := []interface{}{teacherID}
	if from != "" {
		args = append(args, from)
		builder.WriteString(fmt.Sprintf(" AND busy_date >= $%d", len(args)))
	}
	if to != "" {
		args = append(args, to)
		builder.WriteString(fmt.Sprintf(" AND busy_date <= $%d", len(args)))
	}
	builder.WriteString(" ORDER BY busy_date ASC, start_time ASC")

	blocks := make([]models.BusyBlock, 0)
	if err := r.db.SelectContext(ctx, &blocks, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list busy blocks: %w", err)
	}
	return blocks, nil
}

// CreateBusy inserts a single busy block.
func (r *AvailabilityRepository) CreateBusy(ctx context.Context, exec sqlx.ExtContext, block *models.BusyBlock) error {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_busy_blocks (id, teacher_id, busy_date, start_time, end_time, note, created_at)
VALUES (:id, :teacher_id, :busy_date, :start_time, :end_time, :note, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, block); err != nil {
		return fmt.Errorf("create busy block: %w", err)
	}
	return nil
}

// ReplaceBusy deletes every busy block of the teacher and inserts blocks.
func (r *AvailabilityRepository) ReplaceBusy(ctx context.Context, exec sqlx.ExtContext, teacherID string, blocks []models.BusyBlock) error {
	target := r.exec(exec)
	if err := r.DeleteBusyByTeacher(ctx, target, teacherID); err != nil {
		return err
	}
	for i := range blocks {
		blocks[i].TeacherID = teacherID
		if err := r.CreateBusy(ctx, target, &blocks[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBusy removes one block. A non-empty teacherID scopes the delete to
// that owner; sql.ErrNoRows is returned when nothing matched.
func (r *AvailabilityRepository) DeleteBusy(ctx context.Context, id, teacherID string) error {
	query := `DELETE FROM teacher_busy_blocks WHERE id = $1`
	args := []interface{}{id}
	if teacherID != "" {
		query += ` AND teacher_id = $2`
		args = append(args, teacherID)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete busy block: %w", err)
	}
	return requireAffected(result, "delete busy block")
}

// DeleteBusyByTeacher removes every busy block of a teacher.
func (r *AvailabilityRepository) DeleteBusyByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM teacher_busy_blocks WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("delete teacher busy blocks: %w", err)
	}
	return nil
}
