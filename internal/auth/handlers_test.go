package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestAuthHandlersRegisterLoginVerify(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), svc)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "user@example.com", "user", pgxmock.AnyArg(), "", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp := postJSON(t, app, "/auth/register", RegisterRequest{Email: "user@example.com", Username: "user", Password: "pass"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %d", resp.StatusCode)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, email, username, password_hash`).
		WithArgs("user@example.com").
		WillReturnRows(userRows("user-1", "user@example.com", "user", string(hash)))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), "user-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp = postJSON(t, app, "/auth/login", LoginRequest{Email: "user@example.com", Password: "pass"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}
	var body struct {
		Tokens TokenResponse `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Tokens.AccessToken == "" {
		t.Fatalf("decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/jwt/verify", nil)
	req.Header.Set("Authorization", "Bearer "+body.Tokens.AccessToken)
	verify, err := app.Test(req)
	if err != nil || verify.StatusCode != http.StatusOK {
		t.Fatalf("verify status: %v", err)
	}
}

func TestAuthHandlersBadRequests(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("test-secret", nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad register payload")
	}

	if resp := postJSON(t, app, "/auth/login", LoginRequest{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad login payload")
	}
	if resp := postJSON(t, app, "/auth/refresh", RefreshRequest{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad refresh payload")
	}
	if resp := postJSON(t, app, "/auth/refresh", RefreshRequest{RefreshToken: "junk"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized refresh")
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/jwt/verify", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized verify")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), NewService("test-secret", mock))

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
		WithArgs("tok").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
		WithArgs("tok").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	for i := 0; i < 2; i++ {
		if resp := postJSON(t, app, "/auth/logout", RefreshRequest{RefreshToken: "tok"}); resp.StatusCode != http.StatusNoContent {
			t.Fatalf("logout %d: expected 204, got %d", i, resp.StatusCode)
		}
	}
	if resp := postJSON(t, app, "/auth/logout", RefreshRequest{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", resp.StatusCode)
	}
}
