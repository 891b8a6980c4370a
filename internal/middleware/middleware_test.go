package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixsmvrt/api/internal/auth"
)

func okHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"userId": GetUserID(c), "email": GetUserEmail(c)})
}

func TestWorkerAuth(t *testing.T) {
	app := fiber.New()
	app.Post("/jobs/claim", WorkerAuth("tok"), okHandler)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong token", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic tok", fiber.StatusUnauthorized},
		{"valid", "Bearer tok", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/jobs/claim", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestWorkerAuth_EmptyTokenIsOpen(t *testing.T) {
	app := fiber.New()
	app.Post("/jobs/claim", WorkerAuth(""), okHandler)

	resp, err := app.Test(httptest.NewRequest("POST", "/jobs/claim", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLegacyAuthMiddleware(t *testing.T) {
	m := NewLegacyAuthMiddleware("secret")
	app := fiber.New()
	app.Get("/api/me", m.Authenticate(), okHandler)

	token, err := auth.IssueLegacyToken("user-1", "u@example.com", "secret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_NotConfigured(t *testing.T) {
	m := NewAuthMiddleware(auth.NewAuthenticator(nil, ""))
	app := fiber.New()
	app.Get("/api/me", m.Authenticate(), okHandler)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/api/me", GatewayAuthMiddleware(), okHandler)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set(HeaderUserID, "user-9")
	req.Header.Set(HeaderUserEmail, "nine@example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "user-9", body["userId"])
	assert.Equal(t, "nine@example.com", body["email"])

	resp, err = app.Test(httptest.NewRequest("GET", "/api/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimiter_CreateJobLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRateLimiter(rdb)
	app := fiber.New()
	app.Post("/api/jobs", GatewayAuthMiddleware(), rl.CreateJobLimit(2), okHandler)

	do := func(user string) *http.Response {
		req := httptest.NewRequest("POST", "/api/jobs", nil)
		req.Header.Set("X-User-Id", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := do("alice")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, fiber.StatusOK, do("alice").StatusCode)

	resp = do("alice")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	assert.Equal(t, fiber.StatusOK, do("bob").StatusCode)

	assert.True(t, mr.Exists("ratelimit:create_job:alice"))
	assert.Greater(t, mr.TTL("ratelimit:create_job:alice").Seconds(), float64(0))
}

func TestRateLimiter_NilRedisAllows(t *testing.T) {
	rl := NewRateLimiter(nil)
	app := fiber.New()
	app.Post("/api/upload-url", GatewayAuthMiddleware(), rl.UploadLimit(1), okHandler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/upload-url", nil)
		req.Header.Set("X-User-Id", "alice")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
