package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/apperr"
	"github.com/alam-gir/wafipix-backend/internal/audit"
	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/otp"
	"github.com/alam-gir/wafipix-backend/internal/session"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

const otpFailureMessage = "invalid or expired verification code"

// Profile is the minimal principal view returned with token responses.
type Profile struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// AuthService composes the OTP and session engines into the public
// login, refresh and logout flows.
type AuthService struct {
	principals model.PrincipalRepository
	otp        *otp.Engine
	sessions   *session.Engine
	recorder   audit.Recorder

	privilegedRoles map[model.Role]bool
}

func NewAuthService(cfg *config.Config, principals model.PrincipalRepository,
	otpEngine *otp.Engine, sessionEngine *session.Engine, recorder audit.Recorder) *AuthService {
	privileged := make(map[model.Role]bool, len(cfg.Auth.PrivilegedRoles))
	for _, r := range cfg.Auth.PrivilegedRoles {
		privileged[model.ParseRole(r)] = true
	}

	return &AuthService{
		principals:      principals,
		otp:             otpEngine,
		sessions:        sessionEngine,
		recorder:        recorder,
		privilegedRoles: privileged,
	}
}

// requirePrivileged resolves the principal for the address and checks
// the privileged-login preconditions. Distinct from the anti-oracle
// stance of code verification: operators must be able to tell "no such
// admin" from "inactive" from "rate limited".
func (s *AuthService) requirePrivileged(ctx context.Context, email string) (*model.Principal, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrPrincipalNotFound) {
			return nil, apperr.Unauthenticated("no account exists for this email")
		}
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	if !s.privilegedRoles[p.Role] {
		return nil, apperr.Forbidden("this account is not permitted to sign in here")
	}
	if !p.IsActive {
		return nil, apperr.Forbidden("this account is deactivated")
	}

	return p, nil
}

// SendOtp validates the principal and delegates to the challenge
// engine.
func (s *AuthService) SendOtp(ctx context.Context, email, deviceID, sourceIP string) error {
	email = util.NormalizeEmail(email)
	if !util.IsValidEmail(email) {
		return apperr.Invalid("email is not well-formed").WithField("email", "must be a valid email address")
	}

	p, err := s.requirePrivileged(ctx, email)
	if err != nil {
		s.recorder.Record(ctx, audit.NewEvent(audit.EventLoginBlocked, email, "", deviceID, sourceIP, apperr.MessageOf(err)))
		return err
	}

	if err := s.otp.RequestChallenge(ctx, p.Email, deviceID, sourceIP); err != nil {
		return err
	}

	util.Info("otp challenge dispatched",
		zap.String("user_id", p.ID),
		zap.String("device_id", deviceID))

	return nil
}

// VerifyOtpAndLogin consumes the challenge and, on success, issues a
// token pair. All code-side failures surface as one generic 401.
func (s *AuthService) VerifyOtpAndLogin(ctx context.Context, email, code, deviceID, sourceIP string) (*model.TokenPair, *Profile, error) {
	email = util.NormalizeEmail(email)
	if !util.IsValidEmail(email) {
		return nil, nil, apperr.Invalid("email is not well-formed").WithField("email", "must be a valid email address")
	}
	if len(code) != 6 {
		return nil, nil, apperr.Invalid("verification code must be 6 digits").WithField("otpCode", "must be exactly 6 digits")
	}

	p, err := s.requirePrivileged(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.otp.VerifyChallenge(ctx, email, code, deviceID, sourceIP)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperr.Unauthenticated(otpFailureMessage)
	}

	pair, err := s.sessions.IssueTokenPair(ctx, p, deviceID, sourceIP)
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, audit.NewEvent(audit.EventLoginSucceeded, p.Email, p.ID, deviceID, sourceIP, ""))
	util.Info("principal logged in",
		zap.String("user_id", p.ID),
		zap.String("device_id", deviceID))

	return pair, &Profile{ID: p.ID, Email: p.Email, Role: p.Role}, nil
}

// Refresh rotates the pair for the presented refresh token and returns
// the refreshed profile.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID, sourceIP string) (*model.TokenPair, *Profile, error) {
	if refreshToken == "" {
		return nil, nil, apperr.Invalid("refresh token is required").WithField("refresh_token", "must be present")
	}
	if deviceID == "" {
		return nil, nil, apperr.Invalid("device id is required").WithField("device_id", "must be present")
	}

	pair, err := s.sessions.Refresh(ctx, refreshToken, sourceIP)
	if err != nil {
		return nil, nil, err
	}

	// Re-resolve for the response body; the rotation already validated
	// the principal.
	claims, parseErr := s.sessions.Claims(pair.AccessToken)
	if parseErr != nil {
		return nil, nil, apperr.Wrap(parseErr, apperr.KindUnexpected, "could not process request")
	}

	p, err := s.principals.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	return pair, &Profile{ID: p.ID, Email: p.Email, Role: p.Role}, nil
}

// Logout is device-scoped and deliberately succeeds whether or not a
// session row existed.
func (s *AuthService) Logout(ctx context.Context, userID, deviceID, sourceIP string) error {
	if deviceID == "" {
		return apperr.Invalid("device id is required").WithField("device_id", "must be present")
	}
	return s.sessions.Logout(ctx, userID, deviceID, sourceIP)
}

// Me returns the profile for an authenticated principal.
func (s *AuthService) Me(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.principals.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrPrincipalNotFound) {
			return nil, apperr.Unauthenticated("account no longer exists")
		}
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}
	return &Profile{ID: p.ID, Email: p.Email, Role: p.Role}, nil
}

// Sessions lists the principal's live device sessions.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]*model.RefreshSession, error) {
	return s.sessions.ListSessions(ctx, userID)
}
