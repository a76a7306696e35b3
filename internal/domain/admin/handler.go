package admin

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/auth"
	"github.com/medbook/booking/internal/platform/blobstore"
	"github.com/medbook/booking/internal/platform/middleware"
	"github.com/medbook/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, requireAdmin echo.MiddlewareFunc) {
	g := e.Group("/admin", requireAdmin)
	g.GET("/users", h.ListUsers)
	g.GET("/users/:id", h.GetUser)
	g.GET("/users/:id/slip", h.DownloadSlip)
	g.POST("/upload-slip", h.UploadSlip)
	g.GET("/activity", h.ListActivity)
}

func currentAdminID(c echo.Context) (uuid.UUID, error) {
	claims := auth.ClaimsFromEcho(c)
	if claims == nil || claims.Type != auth.TypeAdmin {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}
	return id, nil
}

func (h *Handler) ListUsers(c echo.Context) error {
	filter := identity.ListFilter{
		PaymentStatus: identity.PaymentStatus(strings.TrimSpace(c.QueryParam("payment_status"))),
		Search:        strings.TrimSpace(c.QueryParam("search")),
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_status must be one of: pending processing completed failed")
	}
	if len(filter.Search) > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "search must be at most 100 characters")
	}

	list, err := h.svc.ListUsers(c.Request().Context(), filter, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return middleware.Respond(c, http.StatusOK, "", list)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "", userDetail{User: u, HasSlip: u.HasSlip()})
}

type userDetail struct {
	*identity.User
	HasSlip bool `json:"has_slip"`
}

type slipUpload struct {
	userDetail
	File *blobstore.BlobMetadata `json:"file"`
}

func (h *Handler) DownloadSlip(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, meta, err := h.svc.OpenSlip(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()
	return identity.ServeBlob(c, rc, meta.ContentType, meta.FileName)
}

func (h *Handler) UploadSlip(c echo.Context) error {
	adminID, err := currentAdminID(c)
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(strings.TrimSpace(c.FormValue("user_id")))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id must be a valid id")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file could not be read").SetInternal(err)
	}
	defer f.Close()

	name := middleware.SanitizeString(filepath.Base(fh.Filename))
	u, meta, err := h.svc.UploadSlip(c.Request().Context(), adminID, userID, name, f, c.RealIP())
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "Appointment slip uploaded", slipUpload{
		userDetail: userDetail{User: u, HasSlip: true},
		File:       meta,
	})
}

func (h *Handler) ListActivity(c echo.Context) error {
	var adminID *uuid.UUID
	if raw := c.QueryParam("admin_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "admin_id must be a valid id")
		}
		adminID = &id
	}
	page, err := h.svc.ListActivity(c.Request().Context(), adminID, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return middleware.Respond(c, http.StatusOK, "", page)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, identity.ErrSlipNotAvailable):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment slip not uploaded")
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment slip file is missing").SetInternal(err)
	case errors.Is(err, ErrPaymentIncomplete):
		return echo.NewHTTPError(http.StatusBadRequest, "Payment not completed for this user")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusBadRequest, "File exceeds the maximum upload size")
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusBadRequest, "Only PDF, JPEG and PNG files are allowed")
	case errors.Is(err, blobstore.ErrEmptyFile), errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	return err
}
