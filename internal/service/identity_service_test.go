package service

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

func TestIdentityServiceResolve(t *testing.T) {
	accounts := newMemoryAccounts(
		models.User{ID: "u-admin", Email: "a@example.com", Roles: pq.StringArray{"teacher"}, Active: true, Approved: true},
		models.User{ID: "u-student", Email: "s@example.com", Active: true},
		models.User{ID: "u-gone", Email: "g@example.com", Active: false},
	)
	svc := NewIdentityService(accounts, zap.NewNop())
	ctx := context.Background()

	admin, err := svc.Resolve(ctx, &models.JWTClaims{UserID: "u-admin", Roles: []models.UserRole{models.RoleAdmin, models.RoleStudent}})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.Equal(t, []models.UserRole{models.RoleAdmin, models.RoleTeacher}, admin.Roles)
	assert.True(t, admin.IsTeacher())

	student, err := svc.Resolve(ctx, &models.JWTClaims{UserID: "u-student"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, student.Role)
	assert.Empty(t, student.Roles)
	assert.False(t, student.Approved)

	_, err = svc.Resolve(ctx, &models.JWTClaims{UserID: "u-gone"})
	assertReason(t, err, "UNAUTHORIZED", "account is inactive")

	_, err = svc.Resolve(ctx, &models.JWTClaims{UserID: "missing"})
	assertReason(t, err, "UNAUTHORIZED", "account no longer exists")

	_, err = svc.Resolve(ctx, nil)
	assertReason(t, err, "UNAUTHORIZED", "missing identity")
}

func TestResolveRolePrecedence(t *testing.T) {
	assert.Equal(t, models.RoleAdmin, models.ResolveRole([]models.UserRole{models.RoleTeacher, models.RoleAdmin}))
	assert.Equal(t, models.RoleTeacher, models.ResolveRole([]models.UserRole{models.RoleTeacher}))
	assert.Equal(t, models.RoleStudent, models.ResolveRole(nil))
}
