package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/session"
	"github.com/alam-gir/wafipix-backend/internal/util"
	"github.com/alam-gir/wafipix-backend/internal/web"
)

const (
	stateCookieName = "oauth_state"
	nonceCookieName = "oauth_nonce"
	loginCtxCookie  = "oauth_login_ctx"
)

// loginContext carries the caller's return address and device through
// the provider round-trip.
type loginContext struct {
	RedirectURI string `json:"redirect_uri"`
	DeviceID    string `json:"device_id"`
}

// GoogleHandler bridges Google OIDC sign-in onto the same session
// issuance path as OTP login.
type GoogleHandler struct {
	oauthConfig     *oauth2.Config
	idTokenVerifier *oidc.IDTokenVerifier
	principals      model.PrincipalRepository
	sessions        *session.Engine
	privilegedRoles map[model.Role]bool
	cookies         web.CookieWriter
	secure          bool
}

func NewGoogleHandler(ctx context.Context, cfg *config.Config, principals model.PrincipalRepository, sessions *session.Engine) (*GoogleHandler, error) {
	if cfg.Auth.OAuthClientID == "" || cfg.Auth.OAuthClientSecret == "" {
		return nil, errors.New("google oauth credentials not configured")
	}

	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Auth.OAuthClientID,
		ClientSecret: cfg.Auth.OAuthClientSecret,
		RedirectURL:  cfg.Auth.OAuthRedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			oidc.ScopeOpenID,
			"profile",
			"email",
		},
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.Auth.OAuthClientID,
	})

	privileged := make(map[model.Role]bool, len(cfg.Auth.PrivilegedRoles))
	for _, r := range cfg.Auth.PrivilegedRoles {
		privileged[model.ParseRole(r)] = true
	}

	return &GoogleHandler{
		oauthConfig:     oauthCfg,
		idTokenVerifier: verifier,
		principals:      principals,
		sessions:        sessions,
		privilegedRoles: privileged,
		cookies: web.CookieWriter{
			Domain:     cfg.Server.CookieDomain,
			AccessTTL:  cfg.Auth.AccessTTL,
			RefreshTTL: cfg.Auth.RefreshTTL,
			Secure:     cfg.IsProduction(),
		},
		secure: cfg.IsProduction(),
	}, nil
}

// authorizePrincipal applies the same privileged-login preconditions
// as the OTP path. A verified Google identity on its own grants
// nothing; the resolved principal must hold a privileged role and be
// active.
func (h *GoogleHandler) authorizePrincipal(p *model.Principal) error {
	if !h.privilegedRoles[p.Role] {
		return errors.New("this account is not permitted to sign in here")
	}
	if !p.IsActive {
		return errors.New("account is deactivated")
	}
	return nil
}

// RegisterRoutes registers the oauth routes
func (h *GoogleHandler) RegisterRoutes(router chi.Router) {
	router.Get("/google", h.Begin)
	router.Get("/google/callback", h.Callback)
}

// Begin stashes the login context and redirects into Google.
func (h *GoogleHandler) Begin(w http.ResponseWriter, r *http.Request) {
	redirectURI := r.URL.Query().Get("redirect_uri")
	deviceID := util.SanitizeInput(r.URL.Query().Get("device_id"))

	if redirectURI == "" || deviceID == "" {
		http.Error(w, "redirect_uri and device_id are required", http.StatusBadRequest)
		return
	}
	if _, err := url.ParseRequestURI(redirectURI); err != nil {
		http.Error(w, "redirect_uri is not a valid URI", http.StatusBadRequest)
		return
	}

	state, err := randomString(32)
	if err != nil {
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}
	nonce, err := randomString(32)
	if err != nil {
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}

	ctxPayload, err := json.Marshal(loginContext{RedirectURI: redirectURI, DeviceID: deviceID})
	if err != nil {
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}

	h.setFlowCookie(w, stateCookieName, state)
	h.setFlowCookie(w, nonceCookieName, nonce)
	h.setFlowCookie(w, loginCtxCookie, base64.RawURLEncoding.EncodeToString(ctxPayload))

	authURL := h.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback verifies the provider response and mints a token pair the
// same way OTP login does.
func (h *GoogleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	nonceCookie, err := r.Cookie(nonceCookieName)
	if err != nil || nonceCookie.Value == "" {
		http.Error(w, "missing nonce", http.StatusBadRequest)
		return
	}
	expectedNonce := nonceCookie.Value

	login, err := h.readLoginContext(r)
	if err != nil {
		http.Error(w, "missing login context", http.StatusBadRequest)
		return
	}

	h.clearFlowCookies(w)

	oauthToken, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		http.Error(w, "failed to exchange code", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		http.Error(w, "no id_token in response", http.StatusInternalServerError)
		return
	}

	idToken, err := h.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		http.Error(w, "failed to verify id_token", http.StatusInternalServerError)
		return
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Nonce         string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Error(w, "failed to parse id_token claims", http.StatusInternalServerError)
		return
	}

	if claims.Sub == "" || claims.Email == "" || !claims.EmailVerified {
		http.Error(w, "invalid google account", http.StatusForbidden)
		return
	}
	if claims.Nonce == "" || claims.Nonce != expectedNonce {
		http.Error(w, "invalid nonce", http.StatusForbidden)
		return
	}

	p, err := h.principals.GetByEmail(ctx, util.NormalizeEmail(claims.Email))
	if err != nil {
		if errors.Is(err, model.ErrPrincipalNotFound) {
			http.Error(w, "no account exists for this google identity", http.StatusForbidden)
			return
		}
		util.Error("oauth principal lookup failed", zap.Error(err))
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if err := h.authorizePrincipal(p); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	pair, err := h.sessions.IssueTokenPair(ctx, p, login.DeviceID, web.ClientIP(r))
	if err != nil {
		util.Error("oauth token issuance failed", zap.Error(err))
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	h.cookies.SetCredentials(w, pair.AccessToken, pair.RefreshToken)

	util.Info("principal logged in via google",
		zap.String("user_id", p.ID),
		zap.String("device_id", login.DeviceID))

	http.Redirect(w, r, login.RedirectURI, http.StatusFound)
}

func (h *GoogleHandler) readLoginContext(r *http.Request) (*loginContext, error) {
	c, err := r.Cookie(loginCtxCookie)
	if err != nil || c.Value == "" {
		return nil, errors.New("login context cookie missing")
	}

	payload, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, err
	}

	var login loginContext
	if err := json.Unmarshal(payload, &login); err != nil {
		return nil, err
	}
	if login.RedirectURI == "" || login.DeviceID == "" {
		return nil, errors.New("login context incomplete")
	}

	return &login, nil
}

func (h *GoogleHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
}

func (h *GoogleHandler) clearFlowCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookieName, nonceCookieName, loginCtxCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
