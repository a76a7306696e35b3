package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Gateway, SMS, SMTP
// and database calls made with that context are cut off when it expires.
//
// The handler runs on the calling goroutine, so the echo.Context and the
// response are never shared with a second writer. A handler that returns
// after the deadline without having written a response gets a 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if c.Response().Committed {
				return err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return echo.NewHTTPError(http.StatusGatewayTimeout, "Request timed out").SetInternal(ctx.Err())
				}
			}
			return err
		}
	}
}
