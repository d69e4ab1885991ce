package gateway

import (
	"crypto/subtle"

	"agenthub/internal/domain"
)

// Authenticator validates incoming gateway connections and resolves the
// user the connection belongs to.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

type authEntry struct {
	token  []byte
	userID string
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// TokenEntry maps one bearer token to its user.
type TokenEntry struct {
	Token  string
	UserID string
}

// NewStaticTokenAuth builds an authenticator from a set of token entries.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(entries))}
	for i, e := range entries {
		a.entries[i] = authEntry{token: []byte(e.Token), userID: e.UserID}
	}
	return a
}

// Authenticate returns the owning user if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (string, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.userID, nil
		}
	}
	return "", domain.ErrGatewayAuth
}
