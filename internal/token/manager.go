package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alam-gir/wafipix-backend/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongTokenUse = errors.New("token used for wrong purpose")
)

// Config holds signing parameters. Instances are immutable after
// NewManager.
type Config struct {
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Claims is the single claim shape for both token types; TokenType
// tells them apart so an access token can never pass as a refresh
// credential or vice versa.
type Claims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	TokenType string `json:"use"`
	DeviceID  string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// SignAccess mints a short-lived access token for the principal.
func (m *Manager) SignAccess(p *model.Principal) (string, error) {
	return m.sign(p, TypeAccess, "", m.config.AccessTTL)
}

// SignRefresh mints a refresh token bound to a device. The random jti
// makes every issued value distinct, which is what lets the session
// store detect a superseded token by exact comparison.
func (m *Manager) SignRefresh(p *model.Principal, deviceID string) (string, error) {
	return m.sign(p, TypeRefresh, deviceID, m.config.RefreshTTL)
}

func (m *Manager) sign(p *model.Principal, tokenType, deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:    p.ID,
		Role:      string(p.Role),
		TokenType: tokenType,
		DeviceID:  deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.config.SigningKey)
}

// Parse validates signature and expiry and returns the claims. Callers
// still check TokenType against the operation they are serving.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.SigningKey, nil
	}, options...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseOfType parses and additionally enforces the expected use.
func (m *Manager) ParseOfType(tokenStr, tokenType string) (*Claims, error) {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}

// AccessTTL exposes the configured access lifetime for cookie Max-Age.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL exposes the configured refresh lifetime for cookie Max-Age.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }
