package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/internal/service"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
)

type stubAuth struct {
	login    models.LoginRequest
	register models.RegisterRequest
	logout   string
	forgot   models.ForgotPasswordRequest
	err      error
}

func (s *stubAuth) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.login = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}, nil
}

func (s *stubAuth) Register(_ context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	s.register = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.UserInfo{ID: "user-new", Email: req.Email, Role: models.RoleStudent}, nil
}

func (s *stubAuth) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2"}, s.err
}

func (s *stubAuth) Logout(_ context.Context, refreshToken, _ string, _ models.LoginRequest) error {
	s.logout = refreshToken
	return s.err
}

func (s *stubAuth) ChangePassword(context.Context, string, models.ChangePasswordRequest) error {
	return s.err
}

func (s *stubAuth) ForgotPassword(_ context.Context, req models.ForgotPasswordRequest) error {
	s.forgot = req
	return s.err
}

func (s *stubAuth) ResetPassword(context.Context, models.ConfirmResetPasswordRequest) error {
	return s.err
}

func TestAuthHandlerLoginRecordsClientMeta(t *testing.T) {
	auth := &stubAuth{}
	h := NewAuthHandler(auth)

	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"sam@example.com","password":"secret"}`)
	c.Request.Header.Set("User-Agent", "booking-test")
	h.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sam@example.com", auth.login.Email)
	assert.Equal(t, "booking-test", auth.login.UserAgent)
	assert.Contains(t, string(decode(t, rec).Data), `"access_token":"access"`)
}

func TestAuthHandlerLoginPendingAccount(t *testing.T) {
	h := NewAuthHandler(&stubAuth{err: appErrors.ErrAccountPending})

	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"sam@example.com","password":"secret"}`)
	h.Login(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_PENDING", decode(t, rec).Error.Code)
}

func TestAuthHandlerRegisterCreates(t *testing.T) {
	auth := &stubAuth{}
	h := NewAuthHandler(auth)

	c, rec := newTestContext(http.MethodPost, "/auth/register", `{"email":"new@example.com","password":"Secret123!","full_name":"New Student"}`)
	h.Register(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "New Student", auth.register.FullName)
}

func TestAuthHandlerLogoutRequiresToken(t *testing.T) {
	auth := &stubAuth{}
	h := NewAuthHandler(auth)

	c, rec := newTestContext(http.MethodPost, "/auth/logout", `{}`)
	withIdentity(c, studentActor())
	h.Logout(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, auth.logout)
}

func TestAuthHandlerForgotPasswordAccepts(t *testing.T) {
	auth := &stubAuth{}
	h := NewAuthHandler(auth)

	c, rec := newTestContext(http.MethodPost, "/auth/forgot-password", `{"email":"nobody@example.com"}`)
	c.Request.Header.Set("User-Agent", "booking-test")
	h.ForgotPassword(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "nobody@example.com", auth.forgot.Email)
	assert.Equal(t, "booking-test", auth.forgot.UserAgent)
	assert.Contains(t, string(decode(t, rec).Data), "reset link")
}

func TestAuthHandlerMeReturnsIdentity(t *testing.T) {
	h := NewAuthHandler(&stubAuth{})

	c, rec := newTestContext(http.MethodGet, "/auth/me", "")
	withIdentity(c, teacherActor())
	h.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	body := string(decode(t, rec).Data)
	assert.Contains(t, body, `"id":"teacher-1"`)
	assert.Contains(t, body, `"role":"teacher"`)
}

type stubPolicy struct {
	req models.SetPolicyRequest
	err error
}

func (s *stubPolicy) GetPolicy(context.Context) (*models.OrganizationPolicy, error) {
	return &models.OrganizationPolicy{WorkdayStart: "08:00", WorkdayEnd: "17:00"}, nil
}

func (s *stubPolicy) SetPolicy(_ context.Context, _ models.Identity, req models.SetPolicyRequest) (*models.PolicyUpdateResult, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.PolicyUpdateResult{Policy: models.OrganizationPolicy{WorkdayStart: req.WorkdayStart, WorkdayEnd: req.WorkdayEnd}, Cancelled: 2}, nil
}

func TestPolicyHandlerGet(t *testing.T) {
	h := NewPolicyHandler(&stubPolicy{})

	c, rec := newTestContext(http.MethodGet, "/policy", "")
	h.Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"workday_start":"08:00"`)
}

func TestPolicyHandlerSet(t *testing.T) {
	svc := &stubPolicy{}
	h := NewPolicyHandler(svc)

	c, rec := newTestContext(http.MethodPut, "/admin/policy", `{"workday_start":"09:00","workday_end":"16:00","holidays":[{"date":"2026-12-25","name":"Christmas"}]}`)
	withIdentity(c, adminActor())
	h.Set(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.req.Holidays, 1)
	assert.Equal(t, "2026-12-25", svc.req.Holidays[0].Date)
	assert.Contains(t, string(decode(t, rec).Data), `"cancelled":2`)
}

func TestPolicyHandlerSetInvalidRange(t *testing.T) {
	h := NewPolicyHandler(&stubPolicy{err: appErrors.Clone(appErrors.ErrValidation, "Start must be before end")})

	c, rec := newTestContext(http.MethodPut, "/admin/policy", `{"workday_start":"17:00","workday_end":"08:00"}`)
	withIdentity(c, adminActor())
	h.Set(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubUsers struct {
	filter   models.UserFilter
	approval models.UserApprovalRequest
}

func (s *stubUsers) List(_ context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	s.filter = filter
	return []models.User{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (s *stubUsers) Get(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (s *stubUsers) SetApproval(_ context.Context, _ models.Identity, id string, req models.UserApprovalRequest) (*models.User, error) {
	s.approval = req
	return &models.User{ID: id, Approved: *req.Approved}, nil
}

func TestUserHandlerListFilters(t *testing.T) {
	users := &stubUsers{}
	h := NewUserHandler(users)

	c, rec := newTestContext(http.MethodGet, "/admin/users?role=student&approved=false", "")
	withIdentity(c, adminActor())
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, users.filter.Role)
	assert.Equal(t, models.RoleStudent, *users.filter.Role)
	require.NotNil(t, users.filter.Approved)
	assert.False(t, *users.filter.Approved)
}

func TestUserHandlerSetApproval(t *testing.T) {
	users := &stubUsers{}
	h := NewUserHandler(users)

	c, rec := newTestContext(http.MethodPatch, "/admin/users/student-1/approval", `{"approved":true}`)
	withIdentity(c, adminActor())
	withParam(c, "id", "student-1")
	h.SetApproval(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, users.approval.Approved)
	assert.True(t, *users.approval.Approved)
}

type stubNotifications struct {
	userID string
	unread bool
	limit  int
	err    error
}

func (s *stubNotifications) List(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.userID, s.unread, s.limit = userID, unreadOnly, limit
	return []models.Notification{{ID: "n-1", UserID: userID, Kind: models.NotificationApproved}}, nil
}

func (s *stubNotifications) MarkRead(_ context.Context, _, userID string) error {
	s.userID = userID
	return s.err
}

func TestNotificationHandlerListScopesToCaller(t *testing.T) {
	svc := &stubNotifications{}
	h := NewNotificationHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/notifications?unread=true&limit=10", "")
	withIdentity(c, studentActor())
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", svc.userID)
	assert.True(t, svc.unread)
	assert.Equal(t, 10, svc.limit)
}

func TestNotificationHandlerMarkReadNotFound(t *testing.T) {
	h := NewNotificationHandler(&stubNotifications{err: appErrors.Clone(appErrors.ErrNotFound, "notification not found")})

	c, rec := newTestContext(http.MethodPost, "/notifications/n-9/read", "")
	withIdentity(c, studentActor())
	withParam(c, "id", "n-9")
	h.MarkRead(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), stubPinger{})
	c, rec := newTestContext(http.MethodGet, "/readyz", "")
	h.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewMetricsHandler(nil, stubPinger{err: errors.New("connection refused")})
	c, rec = newTestContext(http.MethodGet, "/readyz", "")
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordBooking("created")
	h := NewMetricsHandler(metrics, nil)

	c, rec := newTestContext(http.MethodGet, "/admin/metrics", "")
	h.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"created":1`)
}
