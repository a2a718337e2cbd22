package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
)

type contextKey string

const scopeKey contextKey = "tenant_scope"

// ErrNoScope is returned by repositories handed a zero Scope.
var ErrNoScope = errors.New("operation requires a tenant scope")

// Scope is the verified (tenant, user, role) a request runs as. Its fields
// are unexported so the only way to obtain a non-zero Scope is ResolveScope
// on verified claims. Repositories filter reads and stamp writes with
// TenantID; it is never taken from request input.
type Scope struct {
	tenantID uuid.UUID
	userID   uuid.UUID
	role     auth.Role
}

// ResolveScope derives a Scope from verified token claims.
func ResolveScope(claims *auth.Claims) (Scope, error) {
	if claims == nil {
		return Scope{}, ErrNoScope
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return Scope{}, ErrNoScope
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil || userID == uuid.Nil {
		return Scope{}, ErrNoScope
	}
	if !claims.Role.Valid() {
		return Scope{}, ErrNoScope
	}
	return Scope{tenantID: tenantID, userID: userID, role: claims.Role}, nil
}

func (s Scope) TenantID() uuid.UUID { return s.tenantID }
func (s Scope) UserID() uuid.UUID   { return s.userID }
func (s Scope) Role() auth.Role     { return s.role }

func (s Scope) IsZero() bool {
	return s.tenantID == uuid.Nil
}

// Check returns ErrNoScope for a zero Scope.
func (s Scope) Check() error {
	if s.IsZero() {
		return ErrNoScope
	}
	return nil
}

// TenantMiddleware resolves the Scope from the claims placed on the request
// by auth.JWTMiddleware. Requests matched by skipper pass through unscoped.
func TenantMiddleware(skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			claims, ok := auth.ClaimsFromContext(c.Request().Context())
			if !ok {
				return apperr.Unauthenticated("missing credentials")
			}
			scope, err := ResolveScope(claims)
			if err != nil {
				return apperr.Unauthenticated("invalid token")
			}

			ctx := WithScope(c.Request().Context(), scope)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", scope.tenantID.String())

			return next(c)
		}
	}
}

// ScopeMiddleware verifies the bearer token and resolves the tenant scope in
// one step: auth.JWTMiddleware followed by TenantMiddleware.
func ScopeMiddleware(verifier auth.TokenVerifier, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	jwtMW := auth.JWTMiddleware(verifier, skipper)
	tenantMW := TenantMiddleware(skipper)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMW(tenantMW(next))
	}
}

func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext retrieves the request's Scope. The zero Scope is returned
// when none was resolved.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(Scope)
	return scope, ok && !scope.IsZero()
}

// RequestScope returns the Scope resolved for c, or an Unauthenticated error
// when the route was not behind TenantMiddleware.
func RequestScope(c echo.Context) (Scope, error) {
	scope, ok := ScopeFromContext(c.Request().Context())
	if !ok {
		return Scope{}, apperr.Unauthenticated("missing credentials")
	}
	return scope, nil
}
