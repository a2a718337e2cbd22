package admin

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
)

// TokenIssuer signs identity tokens. *auth.TokenIssuer satisfies it.
type TokenIssuer interface {
	Issue(sub auth.Subject) (string, time.Time, error)
}

// errBadCredentials is the single answer for every failed login so callers
// cannot tell unknown usernames from wrong passwords.
var errBadCredentials = apperr.Unauthenticated("invalid username or password")

// Authenticator exchanges a username and password for an identity token.
type Authenticator struct {
	users    LoginStore
	hasher   auth.PasswordHasher
	issuer   TokenIssuer
	throttle auth.LoginThrottle
	logger   zerolog.Logger

	// dummyHash is compared against when no user matches, so a miss costs
	// as much as a wrong password.
	dummyHash string
}

func NewAuthenticator(users LoginStore, hasher auth.PasswordHasher, issuer TokenIssuer, throttle auth.LoginThrottle, logger zerolog.Logger) (*Authenticator, error) {
	if throttle == nil {
		throttle = auth.NoopThrottle{}
	}
	dummy, err := hasher.Hash("clinicpos-login-timing-equalizer")
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		users:     users,
		hasher:    hasher,
		issuer:    issuer,
		throttle:  throttle,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Login verifies the password against every user with this username. The
// same username may exist in several tenants; login succeeds only when
// exactly one of them has the given password.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, errBadCredentials
	}
	key := auth.LoginKey(req.Username, req.ClientIP)
	if err := a.throttle.Check(ctx, key); err != nil {
		return nil, err
	}

	candidates, err := a.users.FindLoginCandidates(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		a.hasher.Compare(a.dummyHash, req.Password)
		a.throttle.Fail(ctx, key)
		return nil, errBadCredentials
	}

	var matched []*User
	for _, u := range candidates {
		if a.hasher.Compare(u.PasswordHash, req.Password) {
			matched = append(matched, u)
		}
	}
	switch len(matched) {
	case 0:
		a.throttle.Fail(ctx, key)
		return nil, errBadCredentials
	case 1:
	default:
		a.logger.Warn().
			Str("username", req.Username).
			Int("matches", len(matched)).
			Msg("login matched users in several tenants, refusing")
		a.throttle.Fail(ctx, key)
		return nil, errBadCredentials
	}

	u := matched[0]
	token, exp, err := a.issuer.Issue(auth.Subject{
		UserID:   u.ID,
		TenantID: u.TenantID,
		Role:     u.Role,
		Username: u.Username,
	})
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	a.throttle.Reset(ctx, key)

	a.logger.Info().
		Str("user_id", u.ID.String()).
		Str("tenant_id", u.TenantID.String()).
		Str("role", string(u.Role)).
		Msg("login succeeded")
	return &LoginResponse{Token: token, ExpiresAt: exp, User: u}, nil
}
