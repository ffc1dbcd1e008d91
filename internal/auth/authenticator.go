package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"fintrack/internal/model"
)

var (
	// ErrUnauthenticated is returned when no token was presented.
	ErrUnauthenticated = errors.New("no token presented")
	// ErrTokenRevoked is returned when the presented token was revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUserNotFound is returned when the token subject no longer resolves to a user.
	ErrUserNotFound = errors.New("token subject not found")
	// ErrUserInactive is returned when the token subject is deactivated.
	ErrUserInactive = errors.New("user inactive")
	// ErrRevocationUnavailable is returned when the registry cannot be consulted.
	ErrRevocationUnavailable = errors.New("revocation registry unavailable")

	errUserLookup = errors.New("user lookup failed")
)

// UserFinder resolves a token subject to a user record.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	ValidateAccessToken(token string) (*Claims, error)
}

// Authenticator turns a presented access token into an authenticated user.
type Authenticator struct {
	registry RevocationRegistry
	verifier AccessVerifier
	users    UserFinder
	logger   *slog.Logger
	onReject func(reason string)
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(registry RevocationRegistry, verifier AccessVerifier, users UserFinder, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		registry: registry,
		verifier: verifier,
		users:    users,
		logger:   logger,
		onReject: func(string) {},
	}
}

// OnReject registers a callback invoked with the reason of every rejected request.
func (a *Authenticator) OnReject(fn func(reason string)) *Authenticator {
	if fn != nil {
		a.onReject = fn
	}
	return a
}

// Authenticate runs the session checks in order: presence, revocation,
// signature and expiry, then subject lookup. The first failing check decides
// the returned error.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*model.User, error) {
	token := NormalizeToken(raw)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	revoked, err := a.registry.IsRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := a.verifier.ValidateAccessToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := a.users.FindByUsername(ctx, claims.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUserLookup, err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// RejectionReason returns a stable label for an authentication failure.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserInactive):
		return "user_inactive"
	case errors.Is(err, ErrRevocationUnavailable):
		return "revocation_unavailable"
	case errors.Is(err, errUserLookup):
		return "user_lookup_failed"
	default:
		return "missing_token"
	}
}
