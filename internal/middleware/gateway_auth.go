package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/auth"
	"github.com/mixsmvrt/api/pkg/response"
)

// Identity headers set by Traefik ForwardAuth after /auth/verify succeeds
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// GatewayAuthMiddleware trusts the identity headers of an upstream gateway.
// Only mount it when the service is unreachable except through that gateway.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := &auth.Identity{
			UserID: c.Get(HeaderUserID),
			Email:  c.Get(HeaderUserEmail),
			Name:   c.Get(HeaderUserName),
		}
		if id.UserID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, id)
		return c.Next()
	}
}
