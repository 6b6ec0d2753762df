package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
)

// transientCodes are Postgres conditions that clear up on retry: object not in
// prerequisite state (e.g. index still building), lock not available, cannot
// connect now, serialization failure and deadlock.
var transientCodes = map[pq.ErrorCode]struct{}{
	"55000": {},
	"55P03": {},
	"57P03": {},
	"40001": {},
	"40P01": {},
}

// IsTransient reports whether err is a temporary backend condition the caller
// may retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := transientCodes[pqErr.Code]
		return ok
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
