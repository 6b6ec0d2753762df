package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/internal/service"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
)

type stubTokens struct {
	claims *models.JWTClaims
	err    error
}

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, s.err
}

type stubResolver struct {
	identity *models.Identity
	err      error
}

func (s stubResolver) Resolve(ctx context.Context, claims *models.JWTClaims) (*models.Identity, error) {
	return s.identity, s.err
}

type recordingWriter struct {
	entries []*models.AuditLog
}

func (r *recordingWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func protectedRouter(resolver stubResolver, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append([]gin.HandlerFunc{JWT(stubTokens{claims: &models.JWTClaims{UserID: "u1"}}, resolver)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, string(identity.Role))
	})
	router.GET("/items/:id", chain...)
	return router
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	router := protectedRouter(stubResolver{identity: &models.Identity{UserID: "u1", Role: models.RoleStudent, Approved: true}})

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer bad").Code)

	ok := serve(router, "Bearer good")
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "student", ok.Body.String())
}

func TestJWTMiddlewareRejectsRemovedAccounts(t *testing.T) {
	router := protectedRouter(stubResolver{err: appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")})

	w := serve(router, "Bearer good")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "account no longer exists")
}

func TestRequireRoles(t *testing.T) {
	admin := stubResolver{identity: &models.Identity{UserID: "u1", Roles: []models.UserRole{models.RoleAdmin}, Role: models.RoleAdmin}}
	teacher := stubResolver{identity: &models.Identity{UserID: "u1", Roles: []models.UserRole{models.RoleTeacher}, Role: models.RoleTeacher}}
	student := stubResolver{identity: &models.Identity{UserID: "u1", Role: models.RoleStudent}}

	assert.Equal(t, http.StatusOK, serve(protectedRouter(admin, RequireRoles(models.RoleAdmin)), "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(protectedRouter(teacher, RequireRoles(models.RoleAdmin)), "Bearer good").Code)
	assert.Equal(t, http.StatusOK, serve(protectedRouter(student, RequireRoles(models.RoleStudent)), "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(protectedRouter(admin, RequireRoles(models.RoleStudent)), "Bearer good").Code)
}

func TestRequireApproved(t *testing.T) {
	pending := stubResolver{identity: &models.Identity{UserID: "u1", Role: models.RoleStudent}}
	approved := stubResolver{identity: &models.Identity{UserID: "u1", Role: models.RoleStudent, Approved: true}}

	w := serve(protectedRouter(pending, RequireApproved()), "Bearer good")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_PENDING")
	assert.Equal(t, http.StatusOK, serve(protectedRouter(approved, RequireApproved()), "Bearer good").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	writer := &recordingWriter{}
	teacher := stubResolver{identity: &models.Identity{UserID: "t1", Roles: []models.UserRole{models.RoleTeacher}, Role: models.RoleTeacher}}

	w := serve(protectedRouter(teacher, Audit(writer, models.AuditActionAvailability, "busy_block")), "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, "t1", *entry.UserID)
	assert.Equal(t, "42", *entry.ResourceID)
	assert.Equal(t, "busy_block", entry.Resource)

	serve(protectedRouter(teacher, Audit(writer, models.AuditActionAvailability, "busy_block")), "Bearer bad")
	assert.Len(t, writer.entries, 1)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WithResponseMeta())
	var captured map[string]interface{}
	router.GET("/", func(c *gin.Context) {
		SetMeta(c, "cached", true)
		captured = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, true, captured["cached"])
	assert.Contains(t, captured, "processing_time_ms")
}

func TestMetricsSkipsScrapesAndCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/teachers/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/metrics", "/teachers/t-1", "/teachers/t-2", "/nowhere"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.EqualValues(t, 3, metrics.Snapshot().RequestsTotal)
}
