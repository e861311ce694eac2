package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaker3001/lyfehub/internal/health"
	"github.com/jaker3001/lyfehub/internal/store"
)

// testServer creates a Fiber app backed by a fresh SQLite store.
func testServer(t *testing.T, authCfg AuthConfig) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()

	st, err := store.New(filepath.Join(t.TempDir(), "api-test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	checker := health.NewChecker(logger)
	checker.Register("db", health.DBCheck(st.DB()))

	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		AuthConfig: authCfg,
		RateLimit:  RateLimitConfig{RPS: 100, Burst: 200},
	}, st, checker, nil, logger)

	return srv.App()
}

func openApp(t *testing.T) *fiber.App {
	return testServer(t, AuthConfig{Mode: "none"})
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestServer_Healthz(t *testing.T) {
	app := openApp(t)

	resp := doJSON(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Readyz(t *testing.T) {
	app := openApp(t)

	resp := doJSON(t, app, "GET", "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ready", body["status"])
}

func TestServer_HealthDetail(t *testing.T) {
	app := openApp(t)

	// populate the check cache with a live run
	resp := doJSON(t, app, "GET", "/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["db"])
}

func TestServer_RequestIDEchoed(t *testing.T) {
	app := openApp(t)

	req, _ := http.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "caller-supplied-id", resp.Header.Get("X-Request-ID"))
}

func TestAuth_MissingHeader(t *testing.T) {
	app := testServer(t, AuthConfig{
		Mode: "api-key",
		Keys: map[string]Identity{"k1": {UserID: "jake", Role: RoleMember}},
	})

	resp := doJSON(t, app, "GET", "/api/v1/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var pd ProblemDetail
	decode(t, resp, &pd)
	assert.Equal(t, "missing_auth", pd.Type)
}

func TestAuth_InvalidKey(t *testing.T) {
	app := testServer(t, AuthConfig{
		Mode: "api-key",
		Keys: map[string]Identity{"k1": {UserID: "jake", Role: RoleMember}},
	})

	req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ValidKey(t *testing.T) {
	app := testServer(t, AuthConfig{
		Mode: "api-key",
		Keys: map[string]Identity{"k1": {UserID: "jake", Role: RoleMember}},
	})

	req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer k1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_ProbesSkipAuth(t *testing.T) {
	app := testServer(t, AuthConfig{
		Mode: "api-key",
		Keys: map[string]Identity{"k1": {UserID: "jake", Role: RoleMember}},
	})

	resp := doJSON(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_ReadOnlyCannotWrite(t *testing.T) {
	app := testServer(t, AuthConfig{
		Mode: "api-key",
		Keys: map[string]Identity{"ro": {UserID: "viewer", Role: RoleReadOnly}},
	})

	req, _ := http.NewRequest("POST", "/api/v1/tasks", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer ro")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// reads still work
	req, _ = http.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer ro")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_SessionToken(t *testing.T) {
	cfg := AuthConfig{
		Mode:          "api-key",
		Keys:          map[string]Identity{"k1": {UserID: "jake", Role: RoleMember}},
		SessionSecret: "test-secret",
	}
	app := testServer(t, cfg)

	// mint a session token with the API key
	req, _ := http.NewRequest("POST", "/api/v1/auth/token", nil)
	req.Header.Set("Authorization", "Bearer k1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tok TokenResponse
	decode(t, resp, &tok)
	require.NotEmpty(t, tok.Token)
	assert.Equal(t, "jake", tok.UserID)
	assert.Equal(t, "member", tok.Role)

	// the session token authenticates subsequent requests
	req, _ = http.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_SessionsDisabled(t *testing.T) {
	app := testServer(t, AuthConfig{
		Mode: "api-key",
		Keys: map[string]Identity{"k1": {UserID: "jake", Role: RoleMember}},
	})

	req, _ := http.NewRequest("POST", "/api/v1/auth/token", nil)
	req.Header.Set("Authorization", "Bearer k1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestVerifySessionToken_BadSignature(t *testing.T) {
	token, _, err := mintSessionToken(Identity{UserID: "jake", Role: RoleMember}, "secret-a", time.Hour)
	require.NoError(t, err)

	_, err = verifySessionToken(token, "secret-b")
	assert.Error(t, err)

	id, err := verifySessionToken(token, "secret-a")
	require.NoError(t, err)
	assert.Equal(t, "jake", id.UserID)
	assert.Equal(t, RoleMember, id.Role)
}

func TestVerifySessionToken_Expired(t *testing.T) {
	token, _, err := mintSessionToken(Identity{UserID: "jake", Role: RoleMember}, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = verifySessionToken(token, "secret")
	assert.Error(t, err)
}
