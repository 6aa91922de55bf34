package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetCredentialsAttributes(t *testing.T) {
	cw := CookieWriter{
		Domain:     "wafipix.com",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 168 * time.Hour,
		Secure:     true,
	}

	rec := httptest.NewRecorder()
	cw.SetCredentials(rec, "access-value", "refresh-value")

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}

	at := byName[AccessCookieName]
	if at == nil || at.Value != "access-value" {
		t.Fatalf("access cookie = %+v", at)
	}
	if at.MaxAge != int((15 * time.Minute).Seconds()) {
		t.Errorf("access maxage = %d", at.MaxAge)
	}

	rt := byName[RefreshCookieName]
	if rt == nil || rt.Value != "refresh-value" {
		t.Fatalf("refresh cookie = %+v", rt)
	}
	if rt.MaxAge != int((168 * time.Hour).Seconds()) {
		t.Errorf("refresh maxage = %d", rt.MaxAge)
	}

	for _, c := range cookies {
		if !c.HttpOnly || !c.Secure || c.Path != "/" || c.Domain != "wafipix.com" {
			t.Errorf("cookie %q attributes = %+v", c.Name, c)
		}
		if c.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %q samesite = %v", c.Name, c.SameSite)
		}
	}
}

func TestClearCredentialsExpiresBoth(t *testing.T) {
	cw := CookieWriter{Domain: "wafipix.com"}

	rec := httptest.NewRecorder()
	cw.ClearCredentials(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if c.Value != "" || c.MaxAge >= 0 {
			t.Errorf("cookie %q not cleared: value=%q maxage=%d", c.Name, c.Value, c.MaxAge)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:51334"
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q", got)
	}

	r.RemoteAddr = "203.0.113.9"
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP without port = %q", got)
	}
}
