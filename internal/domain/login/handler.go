package login

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medbook/booking/internal/domain/admin"
	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/auth"
	"github.com/medbook/booking/internal/platform/middleware"
)

type Handler struct {
	svc          *Service
	secureCookie bool
}

// NewHandler builds the /auth handler. secureCookie marks the session
// cookie Secure and should be set whenever the API is served over TLS.
func NewHandler(svc *Service, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, requireUser echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/send-otp", h.SendOTP)
	g.POST("/verify-otp", h.VerifyOTP)
	g.POST("/admin-login", h.AdminLogin)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me, requireUser)
}

func (h *Handler) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.svc.SendOTP(c.Request().Context(), req.Phone)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "OTP sent successfully", res)
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sess, err := h.svc.VerifyOTP(c.Request().Context(), req.Phone, req.OTP)
	if err != nil {
		return mapError(err)
	}
	h.setCookie(c, sess.Token, h.svc.TokenTTL())
	return middleware.Respond(c, http.StatusOK, "OTP verified successfully", sess)
}

func (h *Handler) AdminLogin(c echo.Context) error {
	var req AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sess, err := h.svc.AdminLogin(c.Request().Context(), req.Username, req.Password, c.RealIP())
	if err != nil {
		return mapError(err)
	}
	h.setCookie(c, sess.Token, h.svc.TokenTTL())
	return middleware.Respond(c, http.StatusOK, "Login successful", sess)
}

func (h *Handler) Logout(c echo.Context) error {
	h.setCookie(c, "", -1)
	return middleware.Respond(c, http.StatusOK, "Logged out", nil)
}

func (h *Handler) Me(c echo.Context) error {
	id, err := identity.CurrentUserID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.CurrentUser(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "", u.Summary())
}

// setCookie writes the session cookie. A negative ttl clears it.
func (h *Handler) setCookie(c echo.Context, token string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPhone):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid phone number format")
	case errors.Is(err, ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many OTP requests. Please try again later.")
	case errors.Is(err, ErrInvalidOTP):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired OTP")
	case errors.Is(err, ErrSMSFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to send OTP").SetInternal(err)
	case errors.Is(err, admin.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, identity.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	default:
		return err
	}
}
