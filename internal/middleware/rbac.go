package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/response"
)

// RequireRoles lets the request through when the caller holds any of roles.
// The student role matches callers with neither the admin nor teacher tag.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, role := range roles {
			if identity.HasRole(role) {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireApproved blocks callers whose account has not been approved yet.
func RequireApproved() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !identity.Approved && !identity.IsAdmin() {
			response.Error(c, appErrors.Clone(appErrors.ErrAccountPending, "Account pending approval"))
			c.Abort()
			return
		}
		c.Next()
	}
}
