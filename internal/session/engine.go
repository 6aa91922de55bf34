package session

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/alam-gir/wafipix-backend/internal/apperr"
	"github.com/alam-gir/wafipix-backend/internal/audit"
	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/token"
)

const refreshFailureMessage = "invalid or expired refresh token"

// Engine issues and rotates token pairs against the session store.
// Every issuance is a rotation point: the stored refresh value is
// overwritten, so exactly one refresh token per (principal, device) is
// ever live.
type Engine struct {
	sessions   model.RefreshSessionRepository
	principals model.PrincipalRepository
	tokens     *token.Manager
	recorder   audit.Recorder
}

func NewEngine(sessions model.RefreshSessionRepository, principals model.PrincipalRepository,
	tokens *token.Manager, recorder audit.Recorder) *Engine {
	return &Engine{
		sessions:   sessions,
		principals: principals,
		tokens:     tokens,
		recorder:   recorder,
	}
}

// IssueTokenPair mints a fresh pair for the principal on the device and
// stores the refresh value, superseding whatever was there.
func (e *Engine) IssueTokenPair(ctx context.Context, p *model.Principal, deviceID, sourceIP string) (*model.TokenPair, error) {
	accessToken, err := e.tokens.SignAccess(p)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not issue tokens")
	}

	refreshToken, err := e.tokens.SignRefresh(p, deviceID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not issue tokens")
	}

	if err := e.sessions.UpsertSession(ctx, &model.RefreshSession{
		UserID:       p.ID,
		DeviceID:     deviceID,
		RefreshToken: refreshToken,
		SourceIP:     sourceIP,
	}); err != nil {
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not issue tokens")
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh validates a presented refresh token, requires it to be the
// exact stored value for its (principal, device), and rotates the pair.
// All failure modes return one generic authentication error so a caller
// cannot probe which check failed.
func (e *Engine) Refresh(ctx context.Context, refreshToken, sourceIP string) (*model.TokenPair, error) {
	claims, err := e.tokens.ParseOfType(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, apperr.Unauthenticated(refreshFailureMessage)
	}

	stored, err := e.sessions.GetSession(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			e.recorder.Record(ctx, audit.NewEvent(audit.EventRefreshRejected, claims.Subject, claims.UserID, claims.DeviceID, sourceIP, "no session"))
			return nil, apperr.Unauthenticated(refreshFailureMessage)
		}
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	// A well-signed but superseded token fails here; rotation has
	// already replaced the stored value.
	if subtle.ConstantTimeCompare([]byte(stored.RefreshToken), []byte(refreshToken)) != 1 {
		e.recorder.Record(ctx, audit.NewEvent(audit.EventRefreshRejected, claims.Subject, claims.UserID, claims.DeviceID, sourceIP, "superseded token"))
		return nil, apperr.Unauthenticated(refreshFailureMessage)
	}

	p, err := e.principals.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrPrincipalNotFound) {
			return nil, apperr.Unauthenticated(refreshFailureMessage)
		}
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}
	if !p.IsActive {
		e.recorder.Record(ctx, audit.NewEvent(audit.EventRefreshRejected, p.Email, p.ID, claims.DeviceID, sourceIP, "inactive principal"))
		return nil, apperr.Unauthenticated(refreshFailureMessage)
	}

	pair, err := e.IssueTokenPair(ctx, p, claims.DeviceID, sourceIP)
	if err != nil {
		return nil, err
	}

	e.recorder.Record(ctx, audit.NewEvent(audit.EventTokenRefreshed, p.Email, p.ID, claims.DeviceID, sourceIP, ""))
	return pair, nil
}

// Logout ends the session for one device only; the principal's other
// devices keep their sessions.
func (e *Engine) Logout(ctx context.Context, userID, deviceID, sourceIP string) error {
	if err := e.sessions.DeleteSession(ctx, userID, deviceID); err != nil {
		return apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	e.recorder.Record(ctx, audit.NewEvent(audit.EventLogout, "", userID, deviceID, sourceIP, ""))
	return nil
}

// Claims parses an access token minted by this engine.
func (e *Engine) Claims(accessToken string) (*token.Claims, error) {
	return e.tokens.ParseOfType(accessToken, token.TypeAccess)
}

// ListSessions returns the principal's live device sessions with token
// values blanked.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*model.RefreshSession, error) {
	sessions, err := e.sessions.ListSessions(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}
	for _, s := range sessions {
		s.RefreshToken = ""
	}
	return sessions, nil
}
