package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/auth"
	"github.com/mixsmvrt/api/internal/middleware"
)

// AuthHandler answers ForwardAuth checks from the API gateway
type AuthHandler struct {
	authn *auth.Authenticator
}

func NewAuthHandler(authn *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authn: authn}
}

// Verify handles GET /auth/verify. A valid token yields 200 with X-User-*
// headers for the gateway to forward; anything else is a bare 401.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	id, err := h.authn.Authenticate(token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set(middleware.HeaderUserID, id.UserID)
	if id.Email != "" {
		c.Set(middleware.HeaderUserEmail, id.Email)
	}
	if id.Name != "" {
		c.Set(middleware.HeaderUserName, id.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
