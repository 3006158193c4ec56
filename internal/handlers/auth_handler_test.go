package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/kartikrastogi18/FitConnect/internal/models"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/kartikrastogi18/FitConnect/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthService struct {
	user         *models.User
	err          error
	lastEmail    string
	lastPassword string
	lastRole     string
}

func (s *stubAuthService) Register(_ context.Context, email, password, role string) (*models.User, error) {
	s.lastEmail, s.lastPassword, s.lastRole = email, password, role
	return s.user, s.err
}

func (s *stubAuthService) Login(_ context.Context, email, password string) (*models.User, error) {
	s.lastEmail, s.lastPassword = email, password
	return s.user, s.err
}

func (s *stubAuthService) Me(_ context.Context, _ services.Actor) (*models.User, error) {
	return s.user, s.err
}

func TestRegisterIssuesToken(t *testing.T) {
	service := &stubAuthService{user: &models.User{ID: 42, Email: "asha@example.com", Role: models.RoleTrainee, PasswordHash: "hash"}}
	handler := NewAuthHandler(service, "secret", quietLogger())
	app := newTestApp("", "")
	app.Post("/api/auth/register", handler.Register)

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/register",
		`{"email":"asha@example.com","password":"longenough","role":"trainee"}`)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "trainee", service.lastRole)

	claims, err := utils.ValidateToken(body["token"].(string), "secret")
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "trainee", claims.Role)

	user := body["user"].(map[string]any)
	assert.Equal(t, "asha@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")
}

func TestRegisterRejectsInvalidBody(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{}, "secret", quietLogger())
	app := newTestApp("", "")
	app.Post("/api/auth/register", handler.Register)

	cases := map[string]string{
		`{"email":"nope","password":"longenough","role":"trainee"}`: "email must be a valid email",
		`{"email":"a@b.co","password":"short","role":"trainee"}`:    "password must be at least 8 characters",
		`{"email":"a@b.co","password":"longenough","role":"admin"}`: "role must be one of: trainee, trainer",
		`{"email":"a@b.co","password":"longenough"}`:                "role is required",
	}
	for payload, message := range cases {
		resp, body := doJSON(t, app, http.MethodPost, "/api/auth/register", payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
		assert.Equal(t, message, body["error"], payload)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{err: services.ErrConflict}, "secret", quietLogger())
	app := newTestApp("", "")
	app.Post("/api/auth/register", handler.Register)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/register",
		`{"email":"asha@example.com","password":"longenough","role":"trainer"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginBadCredentials(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{err: services.ErrUnauthorized}, "secret", quietLogger())
	app := newTestApp("", "")
	app.Post("/api/auth/login", handler.Login)

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/login", `{"email":"asha@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["kind"])
}

func TestMeReturnsUser(t *testing.T) {
	service := &stubAuthService{user: &models.User{ID: 7, Email: "coach@example.com", Role: models.RoleTrainer}}
	handler := NewAuthHandler(service, "secret", quietLogger())
	app := newTestApp("7", "trainer")
	app.Get("/api/auth/me", handler.Me)

	resp, body := doJSON(t, app, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trainer", body["user"].(map[string]any)["role"])
}
