package web

import (
	"net"
	"net/http"
	"time"
)

// Credential cookie names shared by every login surface.
const (
	AccessCookieName  = "at"
	RefreshCookieName = "rt"
)

// CookieWriter stamps the credential cookie pair with one consistent
// set of attributes. Both the OTP and the OAuth login paths issue
// through it, so the attributes cannot drift between the two.
type CookieWriter struct {
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
}

func (cw CookieWriter) SetCredentials(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		Domain:   cw.Domain,
		MaxAge:   int(cw.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   cw.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		Domain:   cw.Domain,
		MaxAge:   int(cw.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cw.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (cw CookieWriter) ClearCredentials(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   cw.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cw.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// ClientIP strips the port from RemoteAddr. The RealIP middleware has
// already folded forwarding headers into RemoteAddr upstream.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
