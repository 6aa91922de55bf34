package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/token"
)

func testTokenManager(t *testing.T) *token.Manager {
	t.Helper()
	tm, err := token.NewManager(token.Config{
		SigningKey: []byte("test-signing-key-at-least-32-bytes!!"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "wafipix",
	})
	if err != nil {
		t.Fatalf("token.NewManager: %v", err)
	}
	return tm
}

func signAccess(t *testing.T, tm *token.Manager, role model.Role) string {
	t.Helper()
	signed, err := tm.SignAccess(&model.Principal{
		ID:    "u-1",
		Email: "admin@wafipix.com",
		Role:  role,
	})
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	return signed
}

// echoIdentity reports whether an identity was attached and which one.
func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFrom(r.Context()); ok {
			_ = json.NewEncoder(w).Encode(id)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
}

func TestGateAttachesIdentityFromBearer(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/admin/me", nil)
	req.Header.Set("Authorization", "Bearer "+signAccess(t, tm, model.RoleAdmin))
	rec := httptest.NewRecorder()

	gate.Middleware(echoIdentity()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var id Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &id); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id.UserID != "u-1" || id.Role != model.RoleAdmin {
		t.Errorf("identity = %+v", id)
	}
}

func TestGateAttachesIdentityFromCookie(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/admin/me", nil)
	req.AddCookie(&http.Cookie{Name: "at", Value: signAccess(t, tm, model.RoleSupport)})
	rec := httptest.NewRecorder()

	gate.Middleware(echoIdentity()).ServeHTTP(rec, req)

	var id Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &id); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id.Role != model.RoleSupport {
		t.Errorf("role = %q, want support", id.Role)
	}
}

func TestGateHeaderWinsOverCookie(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, nil)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signAccess(t, tm, model.RoleAdmin))
	req.AddCookie(&http.Cookie{Name: "at", Value: "stale-garbage"})
	rec := httptest.NewRecorder()

	gate.Middleware(echoIdentity()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (header credential should be used)", rec.Code)
	}
}

func TestGateRejectsInvalidCredential(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/admin/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	reached := false
	gate.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	})).ServeHTTP(rec, req)

	if reached {
		t.Error("handler must not run behind an invalid credential")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if body.Success {
		t.Error("envelope success must be false")
	}
	if body.StatusCode != http.StatusUnauthorized {
		t.Errorf("envelope statusCode = %d", body.StatusCode)
	}
	if body.Path != "/api/v1/auth/admin/me" {
		t.Errorf("envelope path = %q", body.Path)
	}
	if body.Timestamp.IsZero() {
		t.Error("envelope timestamp missing")
	}
}

func TestGateRejectsRefreshTokenAsCredential(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, nil)

	refresh, err := tm.SignRefresh(&model.Principal{ID: "u-1", Email: "admin@wafipix.com", Role: model.RoleAdmin}, "device-1")
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()

	gate.Middleware(echoIdentity()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (refresh token is not an access credential)", rec.Code)
	}
}

func TestGateBypassPrefixSkipsVerification(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, []string{"/api/v1/auth", "/health"})

	// Garbage credential on a bypassed path still reaches the handler.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/admin/send-otp", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	gate.Middleware(echoIdentity()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on bypassed path", rec.Code)
	}
}

func TestGateAllowsAnonymousThrough(t *testing.T) {
	tm := testTokenManager(t)
	gate := NewAuthGate(tm, nil)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	gate.Middleware(echoIdentity()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (anonymous proceeds, guards decide)", rec.Code)
	}
	var id Identity
	_ = json.Unmarshal(rec.Body.Bytes(), &id)
	if id.UserID != "" {
		t.Error("anonymous request must not carry an identity")
	}
}

func TestRequireAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	RequireAuth(echoIdentity()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	guarded := RequireRole(model.RoleAdmin)(echoIdentity())

	// Support role is denied.
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(withIdentity(req.Context(), &Identity{UserID: "u-2", Role: model.RoleSupport}))
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("support role: status = %d, want 403", rec.Code)
	}

	// Admin passes.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(withIdentity(req.Context(), &Identity{UserID: "u-1", Role: model.RoleAdmin}))
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin role: status = %d, want 200", rec.Code)
	}

	// No identity at all.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", rec.Code)
	}
}
