package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Clock returns the current instant. Tests inject fixed clocks.
type Clock func() time.Time

// SchedulingOptions carries the organization-wide scheduling knobs shared by
// the policy, availability, calendar and booking services.
type SchedulingOptions struct {
	Location     *time.Location
	SlotStep     int
	MaxRangeDays int
	Now          Clock
}

func (o SchedulingOptions) normalize() SchedulingOptions {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.SlotStep <= 0 {
		o.SlotStep = timeutil.DefaultSlotStep
	}
	if o.MaxRangeDays <= 0 {
		o.MaxRangeDays = 62
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// today returns the organization-local calendar date.
func (o SchedulingOptions) today() string {
	return timeutil.Today(o.Now(), o.Location)
}

// dayBounds returns the UTC instants covering the local date [date 00:00, date+1 00:00).
func (o SchedulingOptions) dayBounds(date string) (time.Time, time.Time, error) {
	start, err := timeutil.ParseDate(date, o.Location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func stringPtr(v string) *string {
	return &v
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
