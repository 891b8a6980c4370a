package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Identity is the user a request acts for.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator resolves bearer tokens to identities. OIDC tokens are tried
// first; HMAC tokens signed with the legacy secret are accepted as a fallback.
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

// NewAuthenticator accepts a nil verifier or an empty secret, but not both
// if any request is expected to pass.
func NewAuthenticator(verifier TokenVerifier, legacySecret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: legacySecret}
}

// Authenticate validates a raw token.
func (a *Authenticator) Authenticate(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if a.verifier == nil && a.secret == "" {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		if id, err := a.verifier.Validate(token); err == nil {
			return id, nil
		}
	}
	if a.secret != "" {
		if claims, err := ValidateLegacyToken(token, a.secret); err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
		}
	}
	return nil, ErrInvalidToken
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errors.New("invalid authorization header format")
	}
	return token, nil
}
