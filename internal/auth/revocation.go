package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationRegistry records tokens that must no longer be accepted.
// Revoke is idempotent; once a token is revoked IsRevoked reports true for
// at least as long as the token itself could still verify.
type RevocationRegistry interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryRevocations is a process-local registry. Entries are never removed,
// so a revoked token stays revoked for the life of the process.
type MemoryRevocations struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

var _ RevocationRegistry = (*MemoryRevocations)(nil)

// NewMemoryRevocations creates an empty in-memory registry.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{tokens: make(map[string]struct{})}
}

// Revoke adds token to the set. ttl is ignored.
func (m *MemoryRevocations) Revoke(_ context.Context, token string, _ time.Duration) error {
	m.mu.Lock()
	m.tokens[token] = struct{}{}
	m.mu.Unlock()
	return nil
}

// IsRevoked reports whether token was revoked.
func (m *MemoryRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	_, ok := m.tokens[token]
	m.mu.RUnlock()
	return ok, nil
}

// Len returns the number of revoked tokens.
func (m *MemoryRevocations) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
