// Package auth holds the bearer access token used to subscribe private
// channels. Market channels are subscribable unauthenticated; the token
// gates only private.* subscribe attempts.
package auth

import (
	"strings"
	"sync"
)

// TokenStore is a thread-safe holder for the current access token.
// The zero value is usable and unauthenticated.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

// Set stores an access token. A leading "Bearer " prefix is stripped so
// callers may pass either the raw JWT or a full Authorization value.
func (s *TokenStore) Set(token string) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear removes the stored token.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Present reports whether a token is set.
func (s *TokenStore) Present() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Bearer returns the token formatted as an Authorization value, or ""
// when unauthenticated.
func (s *TokenStore) Bearer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return ""
	}
	return "Bearer " + s.token
}
