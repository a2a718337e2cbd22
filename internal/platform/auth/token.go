package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the validity window of an issued token.
const DefaultTokenTTL = 8 * time.Hour

// ErrInvalidToken is the only verification failure. Signature, issuer,
// expiry and shape defects are deliberately indistinguishable.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified content of a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
	Username string `json:"username"`
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     Role
	Username string
}

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
}

// TokenIssuer signs and verifies HS256 tokens with a shared key.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(cfg.SigningKey))
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{key: cfg.SigningKey, issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for sub and its expiry time.
func (t *TokenIssuer) Issue(sub Subject) (string, time.Time, error) {
	if sub.UserID == uuid.Nil || sub.TenantID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("issue token: user and tenant ids are required")
	}
	if !sub.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("issue token: invalid role %q", sub.Role)
	}

	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   sub.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   sub.UserID.String(),
		TenantID: sub.TenantID.String(),
		Role:     sub.Role,
		Username: sub.Username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, issuer and expiry, then the shape of
// the custom claims. Any defect yields ErrInvalidToken.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
