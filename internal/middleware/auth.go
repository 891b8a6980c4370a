package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/internal/auth"
	"github.com/mixsmvrt/api/pkg/response"
)

const (
	localUserID = "userId"
	localEmail  = "email"
	localName   = "name"
)

// AuthMiddleware authenticates user requests with a bearer token
type AuthMiddleware struct {
	authn *auth.Authenticator
}

func NewAuthMiddleware(authn *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authn: authn}
}

// NewLegacyAuthMiddleware accepts only HMAC tokens signed with jwtSecret (dev and tests)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return NewAuthMiddleware(auth.NewAuthenticator(nil, jwtSecret))
}

// Authenticate validates the Authorization header and stores the identity in locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				return response.Unauthorized(c, "Missing authorization header")
			}
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		id, err := m.authn.Authenticate(token)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, id)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, id *auth.Identity) {
	c.Locals(localUserID, id.UserID)
	c.Locals(localEmail, id.Email)
	c.Locals(localName, id.Name)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	return localString(c, localUserID)
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	return localString(c, localEmail)
}

func localString(c *fiber.Ctx, key string) string {
	if v, ok := c.Locals(key).(string); ok {
		return v
	}
	return ""
}
