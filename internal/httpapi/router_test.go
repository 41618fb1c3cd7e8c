// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchkey/latchkey/internal/auth"
	"github.com/latchkey/latchkey/internal/auth/authtest"
	"github.com/latchkey/latchkey/internal/auth/memory"
	"github.com/latchkey/latchkey/internal/httpapi"
	"github.com/latchkey/latchkey/internal/observability"
	"github.com/latchkey/latchkey/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse"
)

type testEnv struct {
	router   *gin.Engine
	clock    *authtest.FakeClock
	notifier *authtest.RecordingNotifier
	metrics  *observability.Metrics
	logs     *bytes.Buffer
}

type envOption func(*httpapi.Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	clock := authtest.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	notifier := &authtest.RecordingNotifier{}
	users := memory.NewUserRepository()
	hasher := authtest.FastHasher()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	sessions, err := auth.NewSessionIssuer(authtest.TestSessionSecret, time.Hour, clock)
	require.NoError(t, err)
	authSvc, err := auth.NewAuthService(users, hasher, sessions, auth.WithClock(clock), auth.WithLogger(logger))
	require.NoError(t, err)
	resets, err := auth.NewPasswordResetService(users, hasher, notifier, auth.WithClock(clock), auth.WithLogger(logger))
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	deps := httpapi.Deps{
		Auth:    authSvc,
		Resets:  resets,
		Metrics: metrics,
		Logger:  logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	router, err := httpapi.NewRouter(deps)
	require.NoError(t, err)

	return &testEnv{router: router, clock: clock, notifier: notifier, metrics: metrics, logs: &logs}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.body, &out), "body: %s", r.body)
	return out
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return response{status: rec.Code, header: rec.Header(), body: rec.Body.Bytes()}
}

func (e *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	res := e.do(t, http.MethodPost, "/register", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, res.status, "register: %s", res.body)
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, res.status, "login: %s", res.body)
	token, _ := res.json(t)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (e *testEnv) requestReset(t *testing.T, email string) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, res.status)
	return e.notifier.LastToken()
}

func TestHealthAndIndex(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"status":"ok"}`, string(res.body))

	for _, path := range []string{"/", "/api/auth"} {
		res = env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, res.status, path)
		assert.Contains(t, string(res.body), "/api/auth/forgot-password")
	}

	res = env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/register", map[string]string{"email": " Alice@Example.com ", "password": testPassword})
	require.Equal(t, http.StatusCreated, res.status)
	body := res.json(t)
	user, _ := body["user"].(map[string]any)
	require.NotNil(t, user)
	assert.Equal(t, testEmail, user["email"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, string(res.body), "argon2id", "hash must never be serialized")
	assert.NotContains(t, string(res.body), testPassword)

	tests := []struct {
		name string
		body any
	}{
		{"duplicate email", map[string]string{"email": testEmail, "password": testPassword}},
		{"missing password", map[string]string{"email": "bob@example.com"}},
		{"malformed json", `{"email":`},
		{"invalid email", map[string]string{"email": "not-an-email", "password": testPassword}},
		{"weak password", map[string]string{"email": "bob@example.com", "password": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.do(t, http.MethodPost, "/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, res.status)
			assert.NotEmpty(t, res.json(t)["error"])
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)

	res := env.do(t, http.MethodPost, "/login", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, res.status)
	body := res.json(t)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["userId"])
	assert.NotEmpty(t, body["expiresAt"])

	wrongPassword := env.do(t, http.MethodPost, "/login", map[string]string{"email": testEmail, "password": "wrong-password"})
	unknownEmail := env.do(t, http.MethodPost, "/login", map[string]string{"email": "nobody@example.com", "password": testPassword})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.status)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.status)
	assert.Equal(t, wrongPassword.body, unknownEmail.body, "failure causes must be indistinguishable")
	assert.JSONEq(t, `{"error":"invalid email or password"}`, string(wrongPassword.body))
}

func TestForgotPassword_IdenticalResponses(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)

	known := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": testEmail})
	unknown := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "nobody@example.com"})
	malformed := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "not-an-email"})

	assert.Equal(t, http.StatusOK, known.status)
	assert.Equal(t, known.status, unknown.status)
	assert.Equal(t, known.body, unknown.body)
	assert.Equal(t, known.body, malformed.body)
	assert.Equal(t, known.header.Get("Content-Type"), unknown.header.Get("Content-Type"))

	deliveries := env.notifier.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, testEmail, deliveries[0].Email)

	missing := env.do(t, http.MethodPost, "/forgot-password", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, missing.status)
}

func TestForgotPassword_DeliveryFailureIsInvisible(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	env.notifier.Err = errors.New("smtp down")

	known := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": testEmail})
	unknown := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "nobody@example.com"})

	assert.Equal(t, http.StatusOK, known.status)
	assert.Equal(t, unknown.body, known.body)
}

func TestResetPassword_Flow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	token := env.requestReset(t, testEmail)
	require.Len(t, token, 64)

	res := env.do(t, http.MethodGet, "/verify-token/"+token, nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"message":"token is valid"}`, string(res.body))

	res = env.do(t, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "brand-new-pass"})
	require.Equal(t, http.StatusOK, res.status, "reset: %s", res.body)

	env.login(t, testEmail, "brand-new-pass")
	failed := env.do(t, http.MethodPost, "/login", map[string]string{"email": testEmail, "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, failed.status)

	reused := env.do(t, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "another-pass"})
	assert.Equal(t, http.StatusBadRequest, reused.status)
	assert.JSONEq(t, `{"error":"invalid or expired reset token"}`, string(reused.body))

	res = env.do(t, http.MethodGet, "/verify-token/"+token, nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
}

func TestResetPassword_ExpiredAndUnknownLookAlike(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	token := env.requestReset(t, testEmail)

	env.clock.Advance(time.Hour + time.Second)
	expired := env.do(t, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "brand-new-pass"})
	unknown := env.do(t, http.MethodPost, "/reset-password/"+strings.Repeat("ab", 32), map[string]string{"newPassword": "brand-new-pass"})
	malformed := env.do(t, http.MethodPost, "/reset-password/short", map[string]string{"newPassword": "brand-new-pass"})

	assert.Equal(t, http.StatusBadRequest, expired.status)
	assert.Equal(t, expired.body, unknown.body)
	assert.Equal(t, expired.body, malformed.body)

	env.login(t, testEmail, testPassword)
}

func TestResetPassword_WeakPasswordKeepsToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	token := env.requestReset(t, testEmail)

	res := env.do(t, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "abc"})
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, res.json(t)["error"], "at least 6")

	res = env.do(t, http.MethodGet, "/verify-token/"+token, nil)
	assert.Equal(t, http.StatusOK, res.status)
}

func TestAPIPrefixMirrorsRoutes(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusCreated, res.status)

	res = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	assert.Equal(t, http.StatusOK, res.status)
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	token := env.login(t, testEmail, testPassword)

	res := env.do(t, http.MethodGet, "/current-user", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, testEmail, res.json(t)["email"])

	missing := env.do(t, http.MethodGet, "/current-user", nil)
	forged := env.do(t, http.MethodGet, "/current-user", nil, "Authorization", "Bearer "+token+"x")
	basic := env.do(t, http.MethodGet, "/current-user", nil, "Authorization", "Basic Zm9vOmJhcg==")
	assert.Equal(t, http.StatusUnauthorized, missing.status)
	assert.Equal(t, http.StatusUnauthorized, forged.status)
	assert.Equal(t, http.StatusUnauthorized, basic.status)
	assert.Equal(t, missing.body, forged.body)

	env.clock.Advance(2 * time.Hour)
	expired := env.do(t, http.MethodGet, "/current-user", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, expired.status)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	resetToken := env.requestReset(t, testEmail)
	session := env.login(t, testEmail, testPassword)
	bearer := []string{"Authorization", "Bearer " + session}

	res := env.do(t, http.MethodPost, "/change-password",
		map[string]string{"currentPassword": "wrong-password", "newPassword": "brand-new-pass"}, bearer...)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = env.do(t, http.MethodPost, "/change-password",
		map[string]string{"currentPassword": testPassword, "newPassword": "brand-new-pass"}, bearer...)
	require.Equal(t, http.StatusOK, res.status, "change: %s", res.body)

	env.login(t, testEmail, "brand-new-pass")

	res = env.do(t, http.MethodGet, "/verify-token/"+resetToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.status, "changing the password invalidates outstanding reset tokens")
}

func TestForgotPassword_RateLimited(t *testing.T) {
	limiter, err := ratelimit.NewLocalLimiter(ratelimit.Rule{Name: httpapi.RuleForgotPassword, Limit: 2, Window: time.Hour})
	require.NoError(t, err)
	env := newTestEnv(t, func(d *httpapi.Deps) { d.ForgotLimiter = limiter })

	for range 2 {
		res := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": testEmail})
		require.Equal(t, http.StatusOK, res.status)
	}

	res := env.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": testEmail})
	assert.Equal(t, http.StatusTooManyRequests, res.status)
	assert.NotEmpty(t, res.header.Get("Retry-After"))
	assert.Equal(t, "0", res.header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RateLimitRejections.WithLabelValues(httpapi.RuleForgotPassword)))

	res = env.do(t, http.MethodPost, "/login", map[string]string{"email": testEmail, "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, res.status, "other routes are not limited by this rule")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis unavailable")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	env := newTestEnv(t, func(d *httpapi.Deps) { d.LoginLimiter = failingLimiter{} })
	env.register(t, testEmail, testPassword)

	env.login(t, testEmail, testPassword)
	assert.Contains(t, env.logs.String(), "rate limiter unavailable")
}

func TestRequestLogRedactsTokens(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	token := env.requestReset(t, testEmail)

	env.do(t, http.MethodGet, "/verify-token/"+token, nil)
	env.do(t, http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "brand-new-pass"})

	logs := env.logs.String()
	assert.Contains(t, logs, "/reset-password/***")
	assert.Contains(t, logs, "/verify-token/***")
	assert.NotContains(t, logs, token)
	assert.NotContains(t, logs, "brand-new-pass")
}

func TestMetricsRecordAuthEvents(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail, testPassword)
	env.do(t, http.MethodPost, "/login", map[string]string{"email": testEmail, "password": "wrong-password"})

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.AuthEventsTotal.WithLabelValues(observability.EventRegister, "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.AuthEventsTotal.WithLabelValues(observability.EventLogin, auth.CodeInvalidCredentials)))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("/login", http.MethodPost, "401")))
}

func TestNewRouter_RequiresServices(t *testing.T) {
	_, err := httpapi.NewRouter(httpapi.Deps{})
	assert.Error(t, err)
}
