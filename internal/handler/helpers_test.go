package handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/appointment-booking-api/internal/middleware"
	"github.com/noah-isme/appointment-booking-api/internal/models"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, rec
}

func withIdentity(c *gin.Context, identity models.Identity) {
	c.Set(middleware.ContextIdentityKey, &identity)
}

func withParam(c *gin.Context, key, value string) {
	c.Params = append(c.Params, gin.Param{Key: key, Value: value})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func studentActor() models.Identity {
	return models.Identity{UserID: "student-1", Email: "sam@example.com", FullName: "Sam Student", Roles: []models.UserRole{models.RoleStudent}, Role: models.RoleStudent, Approved: true}
}

func teacherActor() models.Identity {
	return models.Identity{UserID: "teacher-1", Email: "tia@example.com", FullName: "Tia Teacher", Roles: []models.UserRole{models.RoleTeacher}, Role: models.RoleTeacher, Approved: true}
}

func adminActor() models.Identity {
	return models.Identity{UserID: "admin-1", Email: "ada@example.com", FullName: "Ada Admin", Roles: []models.UserRole{models.RoleAdmin}, Role: models.RoleAdmin, Approved: true}
}
