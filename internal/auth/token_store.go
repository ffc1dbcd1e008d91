package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const revokedTokenKeyPrefix = "blacklist:token:"

// markerStore is the subset of cache.Client the token store relies on.
type markerStore interface {
	Mark(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// TokenStore is a Redis-backed RevocationRegistry shared by every replica.
// Keys hold a SHA-256 of the token and expire with the token itself.
type TokenStore struct {
	cache markerStore
}

var _ RevocationRegistry = (*TokenStore)(nil)

// NewTokenStore creates a new token store.
func NewTokenStore(cache markerStore) *TokenStore {
	return &TokenStore{cache: cache}
}

// Revoke blacklists token for ttl. A non-positive ttl keeps the entry forever.
func (s *TokenStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.cache.Mark(ctx, revokedKey(token), ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks the blacklist. Lookup failures are returned so callers can fail closed.
func (s *TokenStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := s.cache.Exists(ctx, revokedKey(token))
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedTokenKeyPrefix + hex.EncodeToString(sum[:])
}
