package httpserver_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stox_auth/internal/auth"
	"stox_auth/internal/auth/authtest"
	"stox_auth/internal/config"
	httpserver "stox_auth/internal/http_server"
)

func testConfig() *config.Config {
	return &config.Config{
		FrontendBaseURL: "http://localhost:5173",
		JWT: config.JWT{
			Secret:         "test-secret",
			Issuer:         "stox-auth",
			Audience:       "stox-frontend",
			AccessTokenTTL: time.Hour,
		},
		Tokens: config.Tokens{
			RefreshTokenTTL: 168 * time.Hour,
			ResetTokenTTL:   time.Hour,
		},
	}
}

type testServer struct {
	*httptest.Server
	store    *authtest.FakeStore
	denylist *authtest.FakeDenylist
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := testConfig()

	store := authtest.NewFakeStore()
	publisher := authtest.NewFakePublisher()
	denylist := authtest.NewFakeDenylist()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := auth.New(log, store, publisher, denylist, cfg)
	router := httpserver.NewRouter(log, svc, cfg.JWT, denylist)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store, denylist: denylist}
}

func (s *testServer) postJSON(t *testing.T, path, bearer string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(http.MethodPost, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	return res.StatusCode, decodeBody(t, res)
}

func (s *testServer) get(t *testing.T, path, bearer string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	return res.StatusCode, decodeBody(t, res)
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	if len(raw) == 0 {
		return nil
	}

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))

	return body
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"businessName": "Acme Hardware",
		"email":        email,
		"password":     "s3cret-pass",
	}
}

func (s *testServer) register(t *testing.T, email string) map[string]any {
	t.Helper()

	code, body := s.postJSON(t, "/auth/register", "", registerBody(email))
	require.Equal(t, http.StatusOK, code)

	return body
}

func TestRegisterLoginRefreshLogoutFlow(t *testing.T) {
	srv := newTestServer(t)

	body := srv.register(t, "owner@acme.test")
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.Equal(t, "User", body["role"])

	code, body := srv.postJSON(t, "/auth/login", "", map[string]any{
		"email":    "owner@acme.test",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, code)

	accessToken := body["token"].(string)
	refreshToken := body["refreshToken"].(string)

	code, body = srv.postJSON(t, "/auth/refresh-token", "", map[string]any{
		"refreshToken": refreshToken,
	})
	require.Equal(t, http.StatusOK, code)
	rotated := body["refreshToken"].(string)
	assert.NotEqual(t, refreshToken, rotated)

	// The consumed token is gone for good.
	code, _ = srv.postJSON(t, "/auth/refresh-token", "", map[string]any{
		"refreshToken": refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = srv.postJSON(t, "/auth/logout", accessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Logout logged and tokens revoked.", body["message"])

	// Logout revoked the rotated token too.
	code, _ = srv.postJSON(t, "/auth/refresh-token", "", map[string]any{
		"refreshToken": rotated,
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	// And the access token now hits the denylist.
	code, _ = srv.postJSON(t, "/auth/logout", accessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	srv := newTestServer(t)

	srv.register(t, "owner@acme.test")

	code, body := srv.postJSON(t, "/auth/register", "", registerBody("owner@acme.test"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "User already exists.", body["error"])
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	code, body := srv.postJSON(t, "/auth/register", "", map[string]any{
		"businessName": "Acme Hardware",
		"email":        "not-an-email",
		"password":     "s3cret-pass",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Error", body["status"])
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)

	srv.register(t, "owner@acme.test")

	code, body := srv.postJSON(t, "/auth/login", "", map[string]any{
		"email":    "owner@acme.test",
		"password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password.", body["error"])
}

func TestLogoutWithoutToken(t *testing.T) {
	srv := newTestServer(t)

	code, _ := srv.postJSON(t, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCheckEmail(t *testing.T) {
	srv := newTestServer(t)

	code, body := srv.postJSON(t, "/auth/check-email", "", map[string]any{
		"email": "owner@acme.test",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["exists"])

	srv.register(t, "owner@acme.test")

	code, body = srv.postJSON(t, "/auth/check-email", "", map[string]any{
		"email": "owner@acme.test",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["exists"])
}

func TestForgotPasswordIsEnumerationSafe(t *testing.T) {
	srv := newTestServer(t)

	srv.register(t, "owner@acme.test")

	const want = "If this email exists, a reset link has been sent."

	code, body := srv.postJSON(t, "/auth/forgot-password", "", map[string]any{
		"email": "owner@acme.test",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, want, body["message"])

	code, body = srv.postJSON(t, "/auth/forgot-password", "", map[string]any{
		"email": "nobody@acme.test",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, want, body["message"])
}

func TestResetPasswordInvalidToken(t *testing.T) {
	srv := newTestServer(t)

	code, body := srv.postJSON(t, "/auth/reset-password", "", map[string]any{
		"token":       "made-up-token",
		"newPassword": "new-pass-123",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid or expired token.", body["error"])
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := newTestServer(t)

	body := srv.register(t, "owner@acme.test")
	userToken := body["token"].(string)

	// No token at all.
	code, _ := srv.get(t, "/admin/users", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	// Regular user.
	code, _ = srv.get(t, "/admin/users", userToken)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminUserListAndDelete(t *testing.T) {
	srv := newTestServer(t)

	srv.register(t, "admin@acme.test")
	srv.register(t, "owner@acme.test")

	// Promote and log in again so the access token carries the Admin role.
	srv.store.GrantRole(1, auth.RoleAdmin)

	code, body := srv.postJSON(t, "/auth/login", "", map[string]any{
		"email":    "admin@acme.test",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Admin", body["role"])
	adminToken := body["token"].(string)

	code, body = srv.get(t, "/admin/users", adminToken)
	require.Equal(t, http.StatusOK, code)

	users := body["users"].([]any)
	require.Len(t, users, 2)

	first := users[0].(map[string]any)
	assert.Equal(t, "admin@acme.test", first["email"])
	assert.NotContains(t, first, "passwordHash")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/admin/users/2", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	code, body = srv.get(t, "/admin/users", adminToken)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["users"].([]any), 1)

	// Deleting again is a 404.
	res, err = srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAdminUserActivity(t *testing.T) {
	srv := newTestServer(t)

	srv.register(t, "admin@acme.test")
	srv.store.GrantRole(1, auth.RoleAdmin)

	code, body := srv.postJSON(t, "/auth/login", "", map[string]any{
		"email":    "admin@acme.test",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, code)
	adminToken := body["token"].(string)

	code, body = srv.get(t, "/admin/user-activity", adminToken)
	require.Equal(t, http.StatusOK, code)

	today := body["usersLoggedInToday"].([]any)
	require.Len(t, today, 1)
	assert.Equal(t, float64(1), today[0].(map[string]any)["userId"])

	latest := body["latestLogs"].([]any)
	require.NotEmpty(t, latest)
	assert.Equal(t, "Logged in", latest[0].(map[string]any)["action"])
}
