package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes that bypass authentication even when an auth
// middleware is mounted above them.
var publicPaths = map[string]bool{
	"/health":           true,
	"/health/db":        true,
	"/auth/send-otp":    true,
	"/auth/verify-otp":  true,
	"/auth/admin-login": true,
	"/payment/webhook":  true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is one of the unauthenticated routes.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
