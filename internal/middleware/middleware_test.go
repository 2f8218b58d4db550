package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/auth"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/me", AuthMiddleware("secret", zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString(GetWallet(c) + "@" + GetNetwork(c))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp()
	tok, err := auth.GenerateJWT("secret", "rAlice", "devnet", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "rAlice@devnet", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	for name, header := range map[string]string{
		"missing":      "",
		"no bearer":    tok,
		"wrong secret": "Bearer " + mustToken(t, "other"),
	} {
		req := httptest.NewRequest("GET", "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode, name)
	}
}

func mustToken(t *testing.T, secret string) string {
	tok, err := auth.GenerateJWT(secret, "rAlice", "devnet", time.Hour)
	require.NoError(t, err)
	return tok
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "abc-123", string(body))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 100))
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Len(t, string(body), 36)
}

func TestRateLimitKey(t *testing.T) {
	app := fiber.New()
	app.Get("/escrows", func(c *fiber.Ctx) error {
		c.Locals(CtxWallet, "rAlice")
		return c.SendString(rateLimitKey(c))
	})
	app.Get("/wallet/options", func(c *fiber.Ctx) error { return c.SendString(rateLimitKey(c)) })

	resp, err := app.Test(httptest.NewRequest("GET", "/escrows", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "rl:/escrows:rAlice", string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/wallet/options", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(body), "rl:/wallet/options:"), string(body))
}
