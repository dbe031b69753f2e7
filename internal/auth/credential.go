// Package auth keeps a bearer credential valid for the node's API calls.
//
// The Broker negotiates tokens against an OAuth2 token endpoint using the
// password grant and the refresh-token grant. A refresh failure falls back to
// the password grant; a password failure is terminal for the call.
package auth

import (
	"sync"
	"time"
)

// SafetyMargin is subtracted from the token lifetime so a token is renewed
// before the server starts rejecting it.
const SafetyMargin = 20 * time.Second

// Credential is the token set returned by the authorization endpoint.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Provider     string
	UserID       string
	Scope        string
	// ExpiresIn is the token lifetime in seconds as reported by the server.
	ExpiresIn int
	// IssuedAt is stamped locally when the token response was accepted.
	IssuedAt time.Time
}

// Valid reports whether the access token can still be used at now.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" || c.IssuedAt.IsZero() {
		return false
	}
	lifetime := time.Duration(c.ExpiresIn)*time.Second - SafetyMargin
	return now.Sub(c.IssuedAt) < lifetime
}

// Cleared returns c without access and refresh tokens.
func (c Credential) Cleared() Credential {
	c.AccessToken = ""
	c.RefreshToken = ""
	c.IssuedAt = time.Time{}
	return c
}

// AuthorizationHeader formats the value for the authorization header.
func (c Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

// Store holds the current credential. All methods are atomic with respect
// to each other and never block beyond lock contention.
type Store interface {
	Get() Credential
	Set(Credential)
	Clear()
}

// MemoryStore is a Store guarded by its own mutex.
type MemoryStore struct {
	mu   sync.Mutex
	cred Credential
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored credential.
func (s *MemoryStore) Get() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

// Set replaces the stored credential.
func (s *MemoryStore) Set(c Credential) {
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
}

// Clear drops both tokens.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.cred = s.cred.Cleared()
	s.mu.Unlock()
}
