package identity

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/booking/internal/platform/auth"
	"github.com/medbook/booking/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, requireUser echo.MiddlewareFunc) {
	g := e.Group("/appointments", requireUser)
	g.POST("/create", h.CreateAppointment)
	g.GET("/me", h.GetAppointment)
	g.GET("/slip", h.DownloadSlip)
}

// CurrentUserID reads the authenticated user's id from the request.
func CurrentUserID(c echo.Context) (uuid.UUID, error) {
	claims := auth.ClaimsFromEcho(c)
	if claims == nil || claims.Type != auth.TypeUser {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}
	return id, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	id, err := CurrentUserID(c)
	if err != nil {
		return err
	}

	var req AppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.svc.SaveAppointment(c.Request().Context(), id, req)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "Appointment details saved", u.Appointment())
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := CurrentUserID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "", u.Appointment())
}

func (h *Handler) DownloadSlip(c echo.Context) error {
	id, err := CurrentUserID(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.OpenSlip(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()
	return ServeBlob(c, rc, meta.ContentType, meta.FileName)
}

// ServeBlob streams a stored document as an attachment.
func ServeBlob(c echo.Context, r io.Reader, contentType, fileName string) error {
	if fileName == "" {
		fileName = "appointment-slip"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, contentType, r)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, ErrSlipNotAvailable):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment slip not available yet")
	case errors.Is(err, ErrAppointmentLocked):
		return echo.NewHTTPError(http.StatusConflict, "Appointment details cannot be changed after payment")
	case errors.Is(err, ErrDetailsNotObject),
		errors.Is(err, ErrMissingAppointmentType),
		errors.Is(err, ErrUnknownAppointmentType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}
