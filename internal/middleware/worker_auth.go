package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/pkg/response"
)

// WorkerAuth guards the worker-facing job routes with a static bearer token.
// An empty token leaves the routes open.
func WorkerAuth(token string) fiber.Handler {
	if token == "" {
		slog.Warn("WORKER_AUTH_TOKEN is empty, worker routes are unauthenticated")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	expected := []byte("Bearer " + token)
	return func(c *fiber.Ctx) error {
		got := []byte(c.Get(fiber.HeaderAuthorization))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			return response.Unauthorized(c, "Unauthorized worker")
		}
		return c.Next()
	}
}
