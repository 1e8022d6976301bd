package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Role distinguishes the two kinds of users
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// IsValid validates the role
func (r Role) IsValid() bool {
	return r == RoleRider || r == RoleDriver
}

// Principal is the verified caller
type Principal struct {
	UserID string
	Role   Role
	Email  string
}

// Verifier checks a bearer credential with the identity provider
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingRole  = errors.New("token carries no usable role")
)

// BearerToken extracts the credential from the Authorization header, falling back
// to the token query parameter that browser socket clients use.
func BearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", ErrInvalidToken
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}

func parseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.IsValid() {
		return "", ErrMissingRole
	}
	return role, nil
}
