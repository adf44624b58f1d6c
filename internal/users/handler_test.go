package users_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/internal/users"
	"github.com/odyssey-erp/odyssey-admin/internal/view"
	_ "github.com/odyssey-erp/odyssey-admin/testing"
)

type harness struct {
	router   http.Handler
	store    *users.Store
	sessions *shared.SessionManager
}

func newHarness(t *testing.T, cfg users.HandlerConfig, opts ...users.Option) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []users.Option{
		users.WithLogger(logger),
		users.WithPasswordDelay(0),
		users.WithHashCost(bcrypt.MinCost),
	}
	store := users.NewStore(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Drain(ctx)
	})

	templates, err := view.NewEngine()
	require.NoError(t, err)

	handler := users.NewHandler(logger, store, templates, shared.NewCSRFManager("csrfsecret"), shared.NewIdempotencyStore(client, time.Hour), cfg)
	r := chi.NewRouter()
	r.Route("/admin", handler.MountRoutes)
	r.Route("/api/users", handler.MountAPI)

	return &harness{
		router:   r,
		store:    store,
		sessions: shared.NewSessionManager(client, "test_session", time.Hour, false),
	}
}

// do serves one request inside a fresh session and returns the session so
// tests can inspect flashes.
func (h *harness) do(t *testing.T, method, target string, form url.Values) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res, sess
}

func flashMessages(sess *shared.Session) []string {
	var out []string
	for _, f := range sess.Flashes() {
		out = append(out, f.Kind+": "+f.Message)
	}
	return out
}

func TestListUsers(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/users", nil)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"))
	body := res.Body.String()
	assert.Contains(t, body, "Admin User")
	assert.Contains(t, body, "John Doe")
	assert.Contains(t, body, "Jane Smith")
	assert.Contains(t, body, `name="csrf_token"`)
}

func TestListUsersSearch(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/users?q=jane", nil)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Jane Smith")
	assert.NotContains(t, res.Body.String(), "John Doe")

	res, _ = h.do(t, http.MethodGet, "/admin/users?q=nobody", nil)
	assert.Contains(t, res.Body.String(), "No users found")
}

func TestListUsersPagination(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{PerPage: 2})

	res, _ := h.do(t, http.MethodGet, "/admin/users?page=2", nil)

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Jane Smith")
	assert.NotContains(t, body, "John Doe")
	assert.Contains(t, body, "Page 2 of 2")
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})
	form := url.Values{
		"name":            {"Bob"},
		"email":           {"bob@x.com"},
		"password":        {"secret1"},
		"confirmPassword": {"secret1"},
		"idempotency_key": {"key-1"},
	}

	res, sess := h.do(t, http.MethodPost, "/admin/users", form)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/users", res.Header().Get("Location"))
	list := h.store.Users()
	require.Len(t, list, 4)
	assert.Equal(t, "Bob", list[3].Name)
	assert.False(t, list[3].IsAdmin)
	assert.Equal(t, []string{"success: User created successfully"}, flashMessages(sess))
}

func TestCreateUserDuplicateSubmission(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})
	form := url.Values{
		"name":            {"Bob"},
		"email":           {"bob@x.com"},
		"password":        {"secret1"},
		"confirmPassword": {"secret1"},
		"isAdmin":         {"on"},
		"idempotency_key": {"same-key"},
	}

	h.do(t, http.MethodPost, "/admin/users", form)
	res, sess := h.do(t, http.MethodPost, "/admin/users", form)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Len(t, h.store.Users(), 4)
	assert.True(t, h.store.Users()[3].IsAdmin)
	assert.Equal(t, []string{"info: This user has already been submitted"}, flashMessages(sess))
}

func TestCreateUserValidation(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})
	form := url.Values{
		"name":            {"Bob"},
		"email":           {"bob@x.com"},
		"password":        {"secret1"},
		"confirmPassword": {"secret2"},
	}

	res, _ := h.do(t, http.MethodPost, "/admin/users", form)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Passwords do not match")
	assert.Contains(t, res.Body.String(), `value="Bob"`)
	assert.Len(t, h.store.Users(), 3)
}

func TestShowCreateUserForm(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/users/new", nil)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `name="idempotency_key"`)
}

func TestEditUser(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/users/2/edit", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "john@example.com")

	res, sess := h.do(t, http.MethodPost, "/admin/users/2", url.Values{
		"name":  {"Johnny"},
		"email": {"johnny@example.com"},
		"q":     {"john"},
	})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/users?q=john", res.Header().Get("Location"))
	user, ok := h.store.User("2")
	require.True(t, ok)
	assert.Equal(t, "Johnny", user.Name)
	assert.Equal(t, "johnny@example.com", user.Email)
	assert.Equal(t, []string{"success: User updated successfully"}, flashMessages(sess))
}

func TestEditUserValidation(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodPost, "/admin/users/2", url.Values{"name": {""}, "email": {"nope"}})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Name is required")
	user, _ := h.store.User("2")
	assert.Equal(t, "John Doe", user.Name)
}

func TestEditUnknownUserRedirects(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, sess := h.do(t, http.MethodGet, "/admin/users/999/edit", nil)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, []string{"error: User not found"}, flashMessages(sess))
}

func TestInvalidEditOfUnknownUserRedirects(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, sess := h.do(t, http.MethodPost, "/admin/users/999", url.Values{"name": {""}, "email": {"nope"}})

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/users", res.Header().Get("Location"))
	assert.Equal(t, []string{"error: User not found"}, flashMessages(sess))
	assert.Len(t, h.store.Users(), 3)
}

func TestPromoteAndDemote(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodPost, "/admin/users/3/promote", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.Code)
	user, _ := h.store.User("3")
	assert.True(t, user.IsAdmin)

	h.do(t, http.MethodPost, "/admin/users/3/demote", url.Values{})
	user, _ = h.store.User("3")
	assert.False(t, user.IsAdmin)
}

func TestDeleteUser(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/users/1/delete", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Admin User")

	res, sess := h.do(t, http.MethodPost, "/admin/users/1/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Len(t, h.store.Users(), 2)
	_, ok := h.store.CurrentUser()
	assert.False(t, ok)
	assert.Equal(t, []string{"success: User deleted successfully"}, flashMessages(sess))
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/password", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Admin User (admin@example.com)")
	assert.NotContains(t, res.Body.String(), "john@example.com")

	res, sess := h.do(t, http.MethodPost, "/admin/password", url.Values{
		"userId":          {"1"},
		"password":        {"Str0ng!pass"},
		"confirmPassword": {"Str0ng!pass"},
	})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/password", res.Header().Get("Location"))
	assert.True(t, h.store.CheckPassword("1", "Str0ng!pass"))
	assert.Equal(t, []string{"success: Password changed successfully"}, flashMessages(sess))
}

func TestChangePasswordRejectsWeakPassword(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodPost, "/admin/password", url.Values{
		"userId":          {"1"},
		"password":        {"password"},
		"confirmPassword": {"password"},
	})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Please fix the password issues before submitting")
	assert.False(t, h.store.CheckPassword("1", "password"))
}

func TestChangePasswordRejectsMultiBytePasswordOverBcryptLimit(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})
	password := "Aa1!" + strings.Repeat("é", 40)

	res, sess := h.do(t, http.MethodPost, "/admin/password", url.Values{
		"userId":          {"1"},
		"password":        {password},
		"confirmPassword": {password},
	})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Password must be at most 72 bytes")
	assert.Empty(t, flashMessages(sess))
	assert.False(t, h.store.CheckPassword("1", password))
	assert.False(t, h.store.Busy())
}

func TestChangePasswordRequiresAdministrator(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodPost, "/admin/password", url.Values{
		"userId":          {"2"},
		"password":        {"Str0ng!pass"},
		"confirmPassword": {"Str0ng!pass"},
	})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Select an administrator account")
	assert.False(t, h.store.CheckPassword("2", "Str0ng!pass"))
}

func TestChangePasswordStillPending(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{PasswordWait: 10 * time.Millisecond}, users.WithPasswordDelay(200*time.Millisecond))

	res, sess := h.do(t, http.MethodPost, "/admin/password", url.Values{
		"userId":          {"1"},
		"password":        {"Str0ng!pass"},
		"confirmPassword": {"Str0ng!pass"},
	})

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, []string{"info: Password change is still being processed"}, flashMessages(sess))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.store.Drain(ctx))
	assert.True(t, h.store.CheckPassword("1", "Str0ng!pass"))
}

func TestSettings(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/admin/settings", nil)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Settings")

	res, _ = h.do(t, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/settings", res.Header().Get("Location"))
}

func TestAPIListUsers(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/api/users?q=doe", nil)

	require.Equal(t, http.StatusOK, res.Code)
	var payload struct {
		Users  []users.User `json:"users"`
		Total  int          `json:"total"`
		Admins int          `json:"admins"`
		Busy   bool         `json:"busy"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Len(t, payload.Users, 1)
	assert.Equal(t, "2", payload.Users[0].ID)
	assert.Equal(t, 3, payload.Total)
	assert.Equal(t, 1, payload.Admins)
	assert.False(t, payload.Busy)
}

func TestAPIGetUser(t *testing.T) {
	h := newHarness(t, users.HandlerConfig{})

	res, _ := h.do(t, http.MethodGet, "/api/users/3", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"email":"jane@example.com"`)

	res, _ = h.do(t, http.MethodGet, "/api/users/404", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}
