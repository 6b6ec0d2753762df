package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

type policyRow struct {
	ID           int            `db:"id"`
	WorkdayStart string         `db:"workday_start"`
	WorkdayEnd   string         `db:"workday_end"`
	Holidays     types.JSONText `db:"holidays"`
	UpdatedBy    *string        `db:"updated_by"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// PolicyRepository persists the organization policy singleton.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Get returns the stored policy or sql.ErrNoRows when none was saved yet.
func (r *PolicyRepository) Get(ctx context.Context) (*models.OrganizationPolicy, error) {
	const query = `SELECT id, workday_start, workday_end, holidays, updated_by, updated_at FROM organization_policy WHERE id = 1`
	var row policyRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get organization policy: %w", err)
	}
	holidays := make([]models.Holiday, 0)
	if len(row.Holidays) > 0 {
		if err := json.Unmarshal(row.Holidays, &holidays); err != nil {
			return nil, fmt.Errorf("decode holidays: %w", err)
		}
	}
	updatedAt := row.UpdatedAt
	return &models.OrganizationPolicy{
		WorkdayStart: row.WorkdayStart,
		WorkdayEnd:   row.WorkdayEnd,
		Holidays:     holidays,
		UpdatedBy:    row.UpdatedBy,
		UpdatedAt:    &updatedAt,
	}, nil
}

// Upsert replaces the singleton policy.
func (r *PolicyRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, policy *models.OrganizationPolicy) error {
	if exec == nil {
		exec = r.db
	}
	holidays := policy.Holidays
	if holidays == nil {
		holidays = []models.Holiday{}
	}
	payload, err := json.Marshal(holidays)
	if err != nil {
		return fmt.Errorf("encode holidays: %w", err)
	}
	now := time.Now().UTC()
	row := policyRow{
		ID:           1,
		WorkdayStart: policy.WorkdayStart,
		WorkdayEnd:   policy.WorkdayEnd,
		Holidays:     types.JSONText(payload),
		UpdatedBy:    policy.UpdatedBy,
		UpdatedAt:    now,
	}
	const query = `INSERT INTO organization_policy (id, workday_start, workday_end, holidays, updated_by, updated_at)
VALUES (:id, :workday_start, :workday_end, :holidays, :updated_by, :updated_at)
ON CONFLICT (id) DO UPDATE
SET workday_start = EXCLUDED.workday_start,
    workday_end = EXCLUDED.workday_end,
    holidays = EXCLUDED.holidays,
    updated_by = EXCLUDED.updated_by,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, row); err != nil {
		return fmt.Errorf("upsert organization policy: %w", err)
	}
	policy.UpdatedAt = &now
	return nil
}
