package model

import (
	"context"
	"time"
)

// Role is the coarse authorization level carried by a principal and
// stamped into issued tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSupport  Role = "support"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a stored role string onto a known Role. Unknown values
// fall back to customer, the least privileged level.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSupport, RoleDesigner, RoleAdmin:
		return Role(s)
	default:
		return RoleCustomer
	}
}

// -------------------- PRINCIPAL MODEL --------------------
type Principal struct {
	ID        string    `json:"id" db:"user_id"`
	Email     string    `json:"email" db:"email"` // stored lower-cased, unique
	Role      Role      `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// -------------------- OTP CHALLENGE MODEL --------------------
type OTPChallenge struct {
	ChallengeID   string    `json:"challenge_id" db:"challenge_id"`
	Email         string    `json:"email" db:"email"`
	CodeHash      string    `json:"-" db:"code_hash"` // argon2id, never the raw code
	CodeSalt      string    `json:"-" db:"code_salt"`
	HashAlgorithm string    `json:"-" db:"hash_algorithm"`
	PepperVersion int       `json:"-" db:"pepper_version"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	AttemptCount  int       `json:"attempt_count" db:"attempt_count"`
	MaxAttempts   int       `json:"max_attempts" db:"max_attempts"`
	IsUsed        bool      `json:"is_used" db:"is_used"`
	DeviceID      string    `json:"device_id" db:"device_id"`
	SourceIP      string    `json:"source_ip" db:"source_ip"`
}

// Valid reports whether the challenge is still actionable at the given
// instant: not consumed, not expired, attempts remaining.
func (c *OTPChallenge) Valid(now time.Time) bool {
	return !c.IsUsed && now.Before(c.ExpiresAt) && c.AttemptCount < c.MaxAttempts
}

// -------------------- REFRESH SESSION MODEL --------------------
//
// Exactly one row exists per (principal, device); a re-login or refresh
// for the same device overwrites the token value instead of inserting.
type RefreshSession struct {
	UserID        string    `json:"user_id" db:"user_id"`
	DeviceID      string    `json:"device_id" db:"device_id"`
	SessionID     string    `json:"session_id" db:"session_id"`
	RefreshToken  string    `json:"-" db:"refresh_token"`
	IssuedAt      time.Time `json:"issued_at" db:"issued_at"`
	LastRotatedAt time.Time `json:"last_rotated_at" db:"last_rotated_at"`
	SourceIP      string    `json:"source_ip" db:"source_ip"`
}

// TokenPair is transient: only the refresh value is ever persisted, and
// only inside a RefreshSession row.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// -------------------- REPOSITORY INTERFACES --------------------

// PrincipalRepository defines lookups against the principal store. This
// subsystem never creates or deletes principals; provisioning and admin
// tooling own those paths.
type PrincipalRepository interface {
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	GetByID(ctx context.Context, userID string) (*Principal, error)
	HealthCheck(ctx context.Context) error
}

// OTPChallengeRepository defines persistence for OTP challenge rows.
type OTPChallengeRepository interface {
	CreateChallenge(ctx context.Context, ch *OTPChallenge) error
	// NewestValidChallenge returns the most recent actionable challenge
	// for the email, or ErrChallengeNotFound when none exists.
	NewestValidChallenge(ctx context.Context, email string) (*OTPChallenge, error)
	IncrementAttempts(ctx context.Context, ch *OTPChallenge) error
	MarkUsed(ctx context.Context, ch *OTPChallenge) error
	DeleteForEmail(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context) (int, error)
}

// RefreshSessionRepository defines persistence for refresh sessions.
// Upsert semantics carry the one-session-per-(principal,device)
// invariant.
type RefreshSessionRepository interface {
	UpsertSession(ctx context.Context, s *RefreshSession) error
	// GetSession returns ErrSessionNotFound when no row exists for the pair.
	GetSession(ctx context.Context, userID, deviceID string) (*RefreshSession, error)
	DeleteSession(ctx context.Context, userID, deviceID string) error
	ListSessions(ctx context.Context, userID string) ([]*RefreshSession, error)
}

// -------------------- CACHE INTERFACES --------------------

// OTPRateLimiter counts challenge requests per email inside a rolling
// window. Backed by Redis INCR+EXPIRE; the count-then-create sequence is
// deliberately not atomic (worst case one extra OTP email goes out).
type OTPRateLimiter interface {
	IncrementSendCount(ctx context.Context, email string, window time.Duration) (int, error)
	SendCount(ctx context.Context, email string) (int, error)
	ResetSendCount(ctx context.Context, email string) error
}
