package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication and tenant
// resolution. Login is the only business endpoint among them.
var publicPaths = map[string]bool{
	"/api/auth/login": true,
	"/api/health":     true,
	"/health/db":      true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. It matches on the registered route path, not the raw URL.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

