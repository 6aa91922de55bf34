package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alam-gir/wafipix-backend/internal/audit"
	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/hashing"
	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/notify"
	"github.com/alam-gir/wafipix-backend/internal/otp"
	"github.com/alam-gir/wafipix-backend/internal/service"
	"github.com/alam-gir/wafipix-backend/internal/session"
)

// ---- in-memory stores for the HTTP round trip ----

type stubPrincipals struct {
	byID map[string]*model.Principal
}

func (r *stubPrincipals) GetByEmail(_ context.Context, email string) (*model.Principal, error) {
	for _, p := range r.byID {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, model.ErrPrincipalNotFound
}

func (r *stubPrincipals) GetByID(_ context.Context, userID string) (*model.Principal, error) {
	p, ok := r.byID[userID]
	if !ok {
		return nil, model.ErrPrincipalNotFound
	}
	return p, nil
}

func (r *stubPrincipals) HealthCheck(context.Context) error { return nil }

type stubChallenges struct {
	mu   sync.Mutex
	rows map[string][]*model.OTPChallenge
}

func (r *stubChallenges) CreateChallenge(_ context.Context, ch *model.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *ch
	r.rows[ch.Email] = append([]*model.OTPChallenge{&stored}, r.rows[ch.Email]...)
	return nil
}

func (r *stubChallenges) NewestValidChallenge(_ context.Context, email string) (*model.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, ch := range r.rows[email] {
		if ch.Valid(now) {
			return ch, nil
		}
	}
	return nil, model.ErrChallengeNotFound
}

func (r *stubChallenges) IncrementAttempts(_ context.Context, ch *model.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch.AttemptCount++
	return nil
}

func (r *stubChallenges) MarkUsed(_ context.Context, ch *model.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch.IsUsed = true
	return nil
}

func (r *stubChallenges) DeleteForEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, email)
	return nil
}

func (r *stubChallenges) DeleteExpired(context.Context) (int, error) { return 0, nil }

type stubSessions struct {
	mu   sync.Mutex
	rows map[string]*model.RefreshSession
}

func (r *stubSessions) UpsertSession(_ context.Context, s *model.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *s
	r.rows[s.UserID+"/"+s.DeviceID] = &stored
	return nil
}

func (r *stubSessions) GetSession(_ context.Context, userID, deviceID string) (*model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[userID+"/"+deviceID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *stubSessions) DeleteSession(_ context.Context, userID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, userID+"/"+deviceID)
	return nil
}

func (r *stubSessions) ListSessions(_ context.Context, userID string) ([]*model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RefreshSession
	for _, s := range r.rows {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

type stubLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *stubLimiter) IncrementSendCount(_ context.Context, email string, _ time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[email]++
	return l.counts[email], nil
}

func (l *stubLimiter) SendCount(_ context.Context, email string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[email], nil
}

func (l *stubLimiter) ResetSendCount(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, email)
	return nil
}

type stubSender struct {
	codes chan string
}

func (s *stubSender) SendOTP(_ context.Context, _, code string, _ int) error {
	s.codes <- code
	return nil
}

// ---- harness ----

type httpHarness struct {
	router chi.Router
	sender *stubSender
}

func newHTTPHarness(t *testing.T) *httpHarness {
	t.Helper()
	return newHTTPHarnessWithPrefixes(t,
		[]string{"/api/v1/auth/admin/send-otp", "/api/v1/auth/admin/verify-otp", "/api/v1/auth/refresh-token"})
}

func newHTTPHarnessWithPrefixes(t *testing.T, bypassPrefixes []string) *httpHarness {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.OTPExpiry = 10 * time.Minute
	cfg.Auth.OTPHourlyLimit = 5
	cfg.Auth.OTPMaxAttempts = 3
	cfg.Auth.PrivilegedRoles = []string{"admin", "support", "designer"}
	cfg.Hashing.ArgonMemory = 8 * 1024
	cfg.Hashing.ArgonIterations = 1
	cfg.Hashing.ArgonParallelism = 1
	cfg.Hashing.SaltLength = 16
	cfg.Hashing.KeyLength = 32
	cfg.Hashing.PepperRotationDays = 90

	principals := &stubPrincipals{byID: map[string]*model.Principal{
		"u-admin": {ID: "u-admin", Email: "admin@wafipix.com", Role: model.RoleAdmin, IsActive: true},
	}}

	sender := &stubSender{codes: make(chan string, 16)}
	pool := notify.NewPool(sender, 1, 16)
	t.Cleanup(pool.Close)

	otpEngine := otp.NewEngine(cfg,
		&stubChallenges{rows: make(map[string][]*model.OTPChallenge)},
		&stubLimiter{counts: make(map[string]int)},
		hashing.NewHasher(cfg), pool, audit.NopRecorder{})

	tm := testTokenManager(t)
	sessionEngine := session.NewEngine(&stubSessions{rows: make(map[string]*model.RefreshSession)},
		principals, tm, audit.NopRecorder{})

	authService := service.NewAuthService(cfg, principals, otpEngine, sessionEngine, audit.NopRecorder{})
	authHandler := NewAuthHandler(authService, "", 15*time.Minute, 7*24*time.Hour, false)
	gate := NewAuthGate(tm, bypassPrefixes)

	router := chi.NewRouter()
	router.Use(gate.Middleware)
	router.Route("/api/v1", authHandler.RegisterRoutes)

	return &httpHarness{router: router, sender: sender}
}

func (h *httpHarness) do(t *testing.T, method, path string, body interface{}, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:51334"
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *httpHarness) deliveredCode(t *testing.T) string {
	t.Helper()
	select {
	case code := <-h.sender.codes:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for code delivery")
		return ""
	}
}

// login performs the full OTP dance and returns the token pair.
func (h *httpHarness) login(t *testing.T) (accessToken, refreshToken string) {
	t.Helper()

	rec := h.do(t, http.MethodPost, "/api/v1/auth/admin/send-otp",
		map[string]string{"email": "admin@wafipix.com", "deviceId": "device-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send-otp status = %d: %s", rec.Code, rec.Body.String())
	}
	code := h.deliveredCode(t)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/admin/verify-otp",
		map[string]string{"email": "admin@wafipix.com", "otpCode": code, "deviceId": "device-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-otp status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return body.Data.AccessToken, body.Data.RefreshToken
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---- tests ----

func TestSendOtpRequiresDeviceID(t *testing.T) {
	h := newHTTPHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/admin/send-otp",
		map[string]string{"email": "admin@wafipix.com"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Fields["deviceId"] == "" {
		t.Error("expected field detail for deviceId")
	}
}

func TestSendOtpRejectsMalformedBody(t *testing.T) {
	h := newHTTPHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/admin/send-otp", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestVerifyOtpSetsCredentialCookies(t *testing.T) {
	h := newHTTPHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/admin/send-otp",
		map[string]string{"email": "admin@wafipix.com", "deviceId": "device-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send-otp status = %d", rec.Code)
	}
	code := h.deliveredCode(t)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/admin/verify-otp",
		map[string]string{"email": "admin@wafipix.com", "otpCode": code, "deviceId": "device-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-otp status = %d: %s", rec.Code, rec.Body.String())
	}

	for _, name := range []string{"at", "rt"} {
		c := cookieByName(rec, name)
		if c == nil {
			t.Fatalf("cookie %q not set", name)
		}
		if !c.HttpOnly {
			t.Errorf("cookie %q must be HttpOnly", name)
		}
		if c.Path != "/" {
			t.Errorf("cookie %q path = %q", name, c.Path)
		}
		if c.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %q samesite = %v", name, c.SameSite)
		}
		if c.MaxAge <= 0 {
			t.Errorf("cookie %q maxage = %d", name, c.MaxAge)
		}
	}
}

func TestWrongCodeReturnsGeneric401(t *testing.T) {
	h := newHTTPHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/admin/send-otp",
		map[string]string{"email": "admin@wafipix.com", "deviceId": "device-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send-otp status = %d", rec.Code)
	}
	code := h.deliveredCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	rec = h.do(t, http.MethodPost, "/api/v1/auth/admin/verify-otp",
		map[string]string{"email": "admin@wafipix.com", "otpCode": wrong, "deviceId": "device-1"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "invalid or expired verification code" {
		t.Errorf("message = %q, want the generic code failure", body.Message)
	}
	if cookieByName(rec, "at") != nil {
		t.Error("failed login must not set credential cookies")
	}
}

func TestRefreshFromBody(t *testing.T) {
	h := newHTTPHarness(t)
	_, refreshToken := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/refresh-token",
		map[string]string{"refresh_token": refreshToken, "device_id": "device-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if cookieByName(rec, "at") == nil || cookieByName(rec, "rt") == nil {
		t.Error("refresh must reset both credential cookies")
	}
}

func TestRefreshFallsBackToCookie(t *testing.T) {
	h := newHTTPHarness(t)
	_, refreshToken := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/refresh-token",
		map[string]string{"device_id": "device-1"},
		func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "rt", Value: refreshToken})
		})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesNeedAuth(t *testing.T) {
	h := newHTTPHarness(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/admin/me"},
		{http.MethodGet, "/api/v1/auth/admin/sessions"},
		{http.MethodPost, "/api/v1/auth/logout"},
	} {
		rec := h.do(t, route.method, route.path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", route.method, route.path, rec.Code)
		}
	}
}

// The shipped prefix defaults must leave the guarded /auth routes
// guarded: a broad /api/v1/auth bypass would keep the gate from ever
// attaching an identity there, locking authenticated callers out.
func TestDefaultPublicPrefixesKeepGuardedRoutesReachable(t *testing.T) {
	h := newHTTPHarnessWithPrefixes(t, config.LoadConfig().Auth.PublicPrefixes)

	// The login endpoints are still open.
	accessToken, _ := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/v1/auth/admin/me", nil,
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+accessToken) })
	if rec.Code != http.StatusOK {
		t.Fatalf("me with bearer: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/v1/auth/admin/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without credential: status = %d, want 401", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/auth/logout",
		map[string]string{"device_id": "device-1"},
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+accessToken) })
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout with bearer: status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
}

func TestMeWithBearerToken(t *testing.T) {
	h := newHTTPHarness(t)
	accessToken, _ := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/v1/auth/admin/me", nil,
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+accessToken) })

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data service.Profile `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Email != "admin@wafipix.com" {
		t.Errorf("email = %q", body.Data.Email)
	}
}

func TestSessionsHideTokenValues(t *testing.T) {
	h := newHTTPHarness(t)
	accessToken, refreshToken := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/v1/auth/admin/sessions", nil,
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+accessToken) })

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(refreshToken)) {
		t.Error("session listing must not contain the stored refresh token")
	}
}

func TestLogoutClearsCookiesAndSession(t *testing.T) {
	h := newHTTPHarness(t)
	accessToken, refreshToken := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/logout",
		map[string]string{"device_id": "device-1"},
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+accessToken) })

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	for _, name := range []string{"at", "rt"} {
		c := cookieByName(rec, name)
		if c == nil {
			t.Fatalf("cookie %q should be rewritten on logout", name)
		}
		if c.MaxAge >= 0 {
			t.Errorf("cookie %q maxage = %d, want negative", name, c.MaxAge)
		}
	}

	// The device's refresh token is dead.
	rec = h.do(t, http.MethodPost, "/api/v1/auth/refresh-token",
		map[string]string{"refresh_token": refreshToken, "device_id": "device-1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status = %d, want 401", rec.Code)
	}
}
