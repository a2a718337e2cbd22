package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// ClaimsContextKey is the echo context key holding the verified *Claims.
const ClaimsContextKey = "jwt_claims"

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// JWTMiddleware verifies the bearer token on every request not matched by
// skipper and stores the verified claims on both the echo and request
// contexts. Requests without a valid token never reach the handler.
func JWTMiddleware(verifier TokenVerifier, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperr.Unauthenticated("missing authorization header")
			}
			tok, ok := BearerToken(authHeader)
			if !ok {
				return apperr.Unauthenticated("invalid authorization format")
			}

			claims, err := verifier.Verify(tok)
			if err != nil {
				return apperr.Unauthenticated("invalid token")
			}

			c.Set(ClaimsContextKey, claims)
			ctx := WithClaims(c.Request().Context(), claims)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
