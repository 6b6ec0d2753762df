package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
)

type identityUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// IdentityService resolves token claims into a single-role identity.
type IdentityService struct {
	users  identityUserReader
	logger *zap.Logger
}

// NewIdentityService constructs the resolver.
func NewIdentityService(users identityUserReader, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{users: users, logger: logger}
}

// Resolve merges the token's role tags with the stored account and collapses
// them into one role. Approval always comes from the stored account.
func (s *IdentityService) Resolve(ctx context.Context, claims *models.JWTClaims) (*models.Identity, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing identity")
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, internalError(err, "failed to load account")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account is inactive")
	}

	tags := mergeRoles(claims.Roles, user.Roles)
	return &models.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Roles:    tags,
		Role:     models.ResolveRole(tags),
		Approved: user.Approved,
	}, nil
}

func mergeRoles(claimed []models.UserRole, stored []string) []models.UserRole {
	seen := make(map[models.UserRole]struct{}, len(claimed)+len(stored))
	out := make([]models.UserRole, 0, len(claimed)+len(stored))
	add := func(role models.UserRole) {
		if role != models.RoleAdmin && role != models.RoleTeacher {
			return
		}
		if _, ok := seen[role]; ok {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	for _, r := range claimed {
		add(r)
	}
	for _, r := range stored {
		add(models.UserRole(r))
	}
	return out
}

func userRoles(user *models.User) []models.UserRole {
	return mergeRoles(nil, user.Roles)
}

func userInfo(user *models.User) models.UserInfo {
	roles := userRoles(user)
	return models.UserInfo{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Roles:    roles,
		Role:     models.ResolveRole(roles),
		Approved: user.Approved,
	}
}
