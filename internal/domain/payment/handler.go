package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/gateway"
	"github.com/medbook/booking/internal/platform/middleware"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Razorpay-Signature"

const maxWebhookBody = 1 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, requireUser echo.MiddlewareFunc) {
	g := e.Group("/payment")
	g.POST("/create-order", h.CreateOrder, requireUser)
	g.POST("/verify", h.Verify, requireUser)
	g.GET("/status", h.Status, requireUser)
	g.POST("/webhook", h.Webhook)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	userID, err := identity.CurrentUserID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.CreateOrder(c.Request().Context(), userID)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "Order created", res)
}

func (h *Handler) Verify(c echo.Context) error {
	userID, err := identity.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.svc.Verify(c.Request().Context(), userID, req)
	if err != nil {
		return mapError(err)
	}
	msg := "Payment verified successfully"
	if res.AlreadyVerified {
		msg = "Payment already verified"
	}
	return middleware.Respond(c, http.StatusOK, msg, res)
}

func (h *Handler) Status(c echo.Context) error {
	userID, err := identity.CurrentUserID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Status(c.Request().Context(), userID)
	if err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "", res)
}

func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := h.svc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(SignatureHeader)); err != nil {
		return mapError(err)
	}
	return middleware.Respond(c, http.StatusOK, "Webhook processed", nil)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrDetailsIncomplete):
		return echo.NewHTTPError(http.StatusBadRequest, "Please complete appointment details first")
	case errors.Is(err, ErrAlreadyPaid):
		return echo.NewHTTPError(http.StatusBadRequest, "Payment already completed")
	case errors.Is(err, ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid payment signature")
	case errors.Is(err, ErrNotTransactionOwner):
		return echo.NewHTTPError(http.StatusForbidden, "You do not have access to this payment")
	case errors.Is(err, ErrTransactionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Payment transaction not found")
	case errors.Is(err, ErrPaymentIDMismatch):
		return echo.NewHTTPError(http.StatusConflict, "Order already paid with a different payment")
	case errors.Is(err, ErrInvalidWebhook):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid webhook signature")
	case errors.Is(err, ErrMalformedWebhookBody):
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed webhook payload")
	case errors.Is(err, identity.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, gateway.ErrGateway):
		return echo.NewHTTPError(http.StatusInternalServerError, "Payment gateway error. Please try again.").SetInternal(err)
	}
	return err
}
