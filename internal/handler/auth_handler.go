package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alam-gir/wafipix-backend/internal/apperr"
	"github.com/alam-gir/wafipix-backend/internal/service"
	"github.com/alam-gir/wafipix-backend/internal/util"
	"github.com/alam-gir/wafipix-backend/internal/web"
)

// AuthHandler exposes the login, refresh and logout flows over HTTP.
type AuthHandler struct {
	auth    *service.AuthService
	cookies web.CookieWriter
}

func NewAuthHandler(auth *service.AuthService, cookieDomain string, accessTTL, refreshTTL time.Duration, secure bool) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		cookies: web.CookieWriter{
			Domain:     cookieDomain,
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
			Secure:     secure,
		},
	}
}

// RegisterRoutes registers the auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/admin/send-otp", h.SendOtp)
		r.Post("/admin/verify-otp", h.VerifyOtp)
		r.Post("/refresh-token", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Get("/admin/me", h.Me)
			r.Get("/admin/sessions", h.Sessions)
			r.Post("/logout", h.Logout)
		})
	})
}

type sendOtpRequest struct {
	Email    string `json:"email"`
	DeviceID string `json:"deviceId"`
}

type verifyOtpRequest struct {
	Email    string `json:"email"`
	OTPCode  string `json:"otpCode"`
	DeviceID string `json:"deviceId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
}

type logoutRequest struct {
	DeviceID string `json:"device_id"`
}

func (h *AuthHandler) SendOtp(w http.ResponseWriter, r *http.Request) {
	var req sendOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Invalid("invalid request body"))
		return
	}
	if req.DeviceID == "" {
		respondError(w, r, apperr.Invalid("device id is required").WithField("deviceId", "must be present"))
		return
	}

	if err := h.auth.SendOtp(r.Context(), req.Email, util.SanitizeInput(req.DeviceID), web.ClientIP(r)); err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, nil, "verification code sent")
}

func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req verifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Invalid("invalid request body"))
		return
	}
	if req.DeviceID == "" {
		respondError(w, r, apperr.Invalid("device id is required").WithField("deviceId", "must be present"))
		return
	}

	pair, profile, err := h.auth.VerifyOtpAndLogin(r.Context(), req.Email, req.OTPCode, util.SanitizeInput(req.DeviceID), web.ClientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.cookies.SetCredentials(w, pair.AccessToken, pair.RefreshToken)

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"profile":      profile,
	}, "login successful")
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	// Body is optional in the cookie-based flow
	_ = json.NewDecoder(r.Body).Decode(&req)

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		if c, err := r.Cookie(web.RefreshCookieName); err == nil {
			refreshToken = c.Value
		}
	}

	pair, profile, err := h.auth.Refresh(r.Context(), refreshToken, util.SanitizeInput(req.DeviceID), web.ClientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.cookies.SetCredentials(w, pair.AccessToken, pair.RefreshToken)

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"profile":      profile,
	}, "tokens refreshed")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.auth.Logout(r.Context(), id.UserID, util.SanitizeInput(req.DeviceID), web.ClientIP(r)); err != nil {
		respondError(w, r, err)
		return
	}

	// Cookies are cleared whether or not a session row existed
	h.cookies.ClearCredentials(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	profile, err := h.auth.Me(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, profile, "")
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	sessions, err := h.auth.Sessions(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, sessions, "")
}

