package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/platform/auth"
)

// AuditEntry describes one back-office request.
type AuditEntry struct {
	AdminID      string
	Username     string
	Action       string
	TargetUserID string
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records every successful read under /admin/ made with an admin token.
// Writes (login, slip upload) are logged by the admin service itself with
// richer detail, so only GET requests reach the recorder. A nil recorder
// leaves only the structured log line.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/admin/") {
				return next(c)
			}

			err := next(c)

			claims := auth.ClaimsFromEcho(c)
			if claims == nil || claims.Type != auth.TypeAdmin {
				return err
			}

			entry := AuditEntry{
				AdminID:    claims.ID,
				Username:   claims.Username,
				Timestamp:  time.Now().UTC(),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.Action, entry.TargetUserID = auditAction(req.Method, c.Path(), c.Param("id"))

			logger.Info().
				Str("type", "admin_audit").
				Str("request_id", entry.RequestID).
				Str("admin_id", entry.AdminID).
				Str("action", entry.Action).
				Str("target_user_id", entry.TargetUserID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("admin_access")

			if recorder != nil && req.Method == http.MethodGet && err == nil && entry.StatusCode < 400 {
				if recErr := recorder.RecordAccess(req.Context(), entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			return err
		}
	}
}

// auditAction names the action for a matched admin route.
func auditAction(method, route, id string) (action, target string) {
	switch {
	case route == "/admin/users":
		return "view_users", ""
	case route == "/admin/users/:id":
		return "view_user", id
	case route == "/admin/users/:id/slip":
		return "download_slip", id
	case route == "/admin/activity":
		return "view_activity", ""
	case method == http.MethodGet:
		return "read", ""
	default:
		return strings.ToLower(method), ""
	}
}
