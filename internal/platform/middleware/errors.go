package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const internalErrorMessage = "Internal server error"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler renders errors as {"success":false,"error":...}. Errors that
// are not *echo.HTTPError are logged and reported as a bare 500; their text
// is only attached as "details" when verbose is set (development).
func ErrorHandler(logger zerolog.Logger, verbose bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		resp := ErrorResponse{Error: internalErrorMessage}
		rid, _ := c.Get("request_id").(string)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			resp.Error = httpErrorMessage(he)
			if he.Internal != nil {
				logger.Error().Err(he.Internal).
					Str("request_id", rid).
					Int("status", code).
					Msg("request failed")
				if verbose {
					resp.Details = he.Internal.Error()
				}
			}
		} else {
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
			if verbose {
				resp.Details = err.Error()
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, resp)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Str("request_id", rid).Msg("write error response")
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}
