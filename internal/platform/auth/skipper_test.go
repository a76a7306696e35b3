package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper_PublicPaths(t *testing.T) {
	paths := []string{
		"/health",
		"/health/db",
		"/auth/send-otp",
		"/auth/verify-otp",
		"/auth/admin-login",
		"/payment/webhook",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(path)

			if !AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return true for %s", path)
			}
		})
	}
}

func TestAuthSkipper_ProtectedPaths(t *testing.T) {
	paths := []string{
		"/auth/me",
		"/auth/logout",
		"/appointment",
		"/payment/create-order",
		"/payment/verify",
		"/admin/users",
		"/admin/users/:id/slip",
		"/",
		"/health/extra",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(path)

			if AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return false for %s", path)
			}
			if IsPublicPath(path) {
				t.Errorf("IsPublicPath(%q) = true", path)
			}
		})
	}
}

func TestRequireUser_SkipsWebhook(t *testing.T) {
	codec := NewTokenCodec(testSecret, 0)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/payment/webhook")

	var handlerCalled bool
	err := RequireUser(codec)(func(c echo.Context) error {
		handlerCalled = true
		if ClaimsFromEcho(c) != nil {
			t.Error("skipped routes must not carry claims")
		}
		return c.NoContent(http.StatusOK)
	})(c)

	if err != nil {
		t.Fatalf("expected no error for /payment/webhook, got: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called for /payment/webhook")
	}
}

func TestRequireAdmin_StillEnforcedNextToSkippedRoutes(t *testing.T) {
	codec := NewTokenCodec(testSecret, 0)
	tok := issue(t, codec, Claims{ID: "11111111-1111-1111-1111-111111111111", Phone: "+919876543210", Type: TypeUser})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/admin/users")

	err := RequireAdmin(codec)(func(c echo.Context) error {
		t.Error("handler must not run for a user token")
		return nil
	})(c)
	expectStatus(t, err, http.StatusUnauthorized)
}
