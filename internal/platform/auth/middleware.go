package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CookieName is the cookie consulted when no Authorization header is sent.
const CookieName = "auth_token"

type contextKey string

const (
	claimsKey contextKey = "auth_claims"

	// ClaimsContextKey is the echo context key holding *Claims.
	ClaimsContextKey = "auth_claims"
)

// RequireUser admits only tokens of type "user".
func RequireUser(codec *TokenCodec) echo.MiddlewareFunc {
	return requireType(codec, TypeUser)
}

// RequireAdmin admits only tokens of type "admin".
func RequireAdmin(codec *TokenCodec) echo.MiddlewareFunc {
	return requireType(codec, TypeAdmin)
}

func requireType(codec *TokenCodec, want TokenType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, ok := codec.Verify(tokenStr)
			if !ok || claims.Type != want {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(ClaimsContextKey, claims)
			ctx := context.WithValue(c.Request().Context(), claimsKey, claims)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	if header := c.Request().Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
}

// ClaimsFromEcho returns the claims set by RequireUser/RequireAdmin.
func ClaimsFromEcho(c echo.Context) *Claims {
	claims, _ := c.Get(ClaimsContextKey).(*Claims)
	return claims
}

func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}
