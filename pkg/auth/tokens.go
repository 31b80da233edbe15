// Package auth guards the query boundary with per-scope bearer tokens and
// optional HMAC-signed JWTs carrying a scope claim.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized rejects a request whose token does not match the scope.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier checks a presented token against a scope.
type Verifier interface {
	Verify(ctx context.Context, scopeID, token string) error
}

// ScopeTokens verifies per-scope bearer tokens. Tokens are stored as bcrypt
// hashes; an optional admin token is accepted for any scope.
type ScopeTokens struct {
	mu     sync.RWMutex
	hashes map[string][]byte
	admin  []byte
}

// NewScopeTokens creates an empty token set.
func NewScopeTokens() *ScopeTokens {
	return &ScopeTokens{hashes: make(map[string][]byte)}
}

// SetToken hashes and stores the token for a scope, replacing any previous
// one. An empty token removes the scope's entry.
func (s *ScopeTokens) SetToken(scopeID, token string) error {
	if token == "" {
		s.mu.Lock()
		delete(s.hashes, scopeID)
		s.mu.Unlock()
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing token: %w", err)
	}

	s.mu.Lock()
	s.hashes[scopeID] = hash
	s.mu.Unlock()
	return nil
}

// HashToken produces the bcrypt hash persisted for a token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	return string(hash), nil
}

// SetTokenHash installs a pre-computed bcrypt hash for a scope, replacing
// any previous one.
func (s *ScopeTokens) SetTokenHash(scopeID string, hash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(hash) == 0 {
		delete(s.hashes, scopeID)
		return
	}
	s.hashes[scopeID] = hash
}

// SetAdminToken hashes and stores a token accepted for every scope.
func (s *ScopeTokens) SetAdminToken(token string) error {
	if token == "" {
		s.mu.Lock()
		s.admin = nil
		s.mu.Unlock()
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin token: %w", err)
	}

	s.mu.Lock()
	s.admin = hash
	s.mu.Unlock()
	return nil
}

// Verify checks the token against the scope's hash, then the admin hash.
// bcrypt comparison is constant-time per candidate.
func (s *ScopeTokens) Verify(_ context.Context, scopeID, token string) error {
	if token == "" {
		return ErrUnauthorized
	}

	s.mu.RLock()
	hash := s.hashes[scopeID]
	admin := s.admin
	s.mu.RUnlock()

	if hash != nil && bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil {
		return nil
	}
	if admin != nil && bcrypt.CompareHashAndPassword(admin, []byte(token)) == nil {
		return nil
	}
	return ErrUnauthorized
}

// Verify interface compliance.
var _ Verifier = (*ScopeTokens)(nil)
