package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/ashish6318/skillbarter-sub001/pkg/utils"
)

func newAuthTestApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/protected", AuthRequired(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": c.Locals("user_id"),
			"role":    c.Locals("role"),
		})
	})
	return app
}

func TestAuthRequiredAcceptsIssuedToken(t *testing.T) {
	const secret = "test-secret"
	token, err := utils.GenerateToken("42", "user", secret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := newAuthTestApp(secret)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.UserID != "42" || body.Role != "user" {
		t.Fatalf("unexpected claims: %+v", body)
	}
}

func TestAuthRequiredRejectsMissingHeader(t *testing.T) {
	app := newAuthTestApp("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthRequiredRejectsTokenSignedWithOtherSecret(t *testing.T) {
	token, err := utils.GenerateToken("42", "user", "other-secret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := newAuthTestApp("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
