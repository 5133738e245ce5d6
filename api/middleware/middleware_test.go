package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/auth"
	"github.com/vendorhub/leadrouter-backend/pkg/config"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "leadrouter-test", ExpirationMinutes: 10}
}

func mintToken(t *testing.T, cfg config.JWTConfig, role enums.AdminRole) (string, uuid.UUID) {
	t.Helper()
	adminID := uuid.New()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		AdminID: adminID,
		Role:    role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, adminID
}

func TestAuthSeedsIdentityIntoContext(t *testing.T) {
	t.Parallel()

	cfg := testJWT()
	token, adminID := mintToken(t, cfg, enums.AdminRoleOperator)

	var gotAdmin, gotRole string
	handler := Auth(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAdmin = AdminIDFrom(r.Context())
		gotRole = RoleFrom(r.Context())
	}))

	r := httptest.NewRequest("GET", "/api/v1/leads", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if gotAdmin != adminID.String() {
		t.Fatalf("admin id not seeded, got %q", gotAdmin)
	}
	if gotRole != string(enums.AdminRoleOperator) {
		t.Fatalf("role not seeded, got %q", gotRole)
	}
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	t.Parallel()

	cfg := testJWT()
	handler := Auth(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	r := httptest.NewRequest("GET", "/api/v1/leads", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token should be 401, got %d", w.Code)
	}

	r = httptest.NewRequest("GET", "/api/v1/leads", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token should be 401, got %d", w.Code)
	}
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRole(string(enums.AdminRoleAdmin), testLogger())(next)

	ctx := context.WithValue(context.Background(), ctxRole, string(enums.AdminRoleOperator))
	r := httptest.NewRequest("DELETE", "/api/v1/groups/x", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("operator should be blocked, got %d", w.Code)
	}

	ctx = context.WithValue(context.Background(), ctxRole, string(enums.AdminRoleAdmin))
	r = httptest.NewRequest("DELETE", "/api/v1/groups/x", nil).WithContext(ctx)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("admin should pass, got %d", w.Code)
	}
}

type fakeLimiter struct {
	counts map[string]int64
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestIntakeRateLimitBlocksPerIP(t *testing.T) {
	t.Parallel()

	policy := NewIntakeRateLimitPolicy("intake", time.Minute, 2)
	limiter := &fakeLimiter{counts: map[string]int64{}}
	handler := IntakeRateLimit(policy, limiter, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(ip string) int {
		r := httptest.NewRequest("POST", "/api/public/leads", nil)
		r.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	if code := send("10.0.0.1"); code != http.StatusCreated {
		t.Fatalf("first request should pass, got %d", code)
	}
	if code := send("10.0.0.1"); code != http.StatusCreated {
		t.Fatalf("second request should pass, got %d", code)
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusCreated {
		t.Fatalf("other ip should have its own window, got %d", code)
	}
}

func TestIntakeRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	t.Parallel()

	policy := NewIntakeRateLimitPolicy("intake", 0, 0)
	handler := IntakeRateLimit(policy, &fakeLimiter{counts: map[string]int64{}}, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 5; i++ {
		r := httptest.NewRequest("POST", "/api/public/leads", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusCreated {
			t.Fatalf("disabled policy must not limit, got %d", w.Code)
		}
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "192.168.1.5:4431"
	if ip := clientIP(r); ip != "192.168.1.5" {
		t.Fatalf("remote addr host expected, got %q", ip)
	}

	r.Header.Set("X-Real-IP", "203.0.113.9")
	if ip := clientIP(r); ip != "203.0.113.9" {
		t.Fatalf("x-real-ip expected, got %q", ip)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	if ip := clientIP(r); ip != "198.51.100.7" {
		t.Fatalf("first forwarded hop expected, got %q", ip)
	}
}
