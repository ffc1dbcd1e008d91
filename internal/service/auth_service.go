package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"fintrack/internal/auth"
	apperrors "fintrack/internal/errors"
	"fintrack/internal/event"
	"fintrack/internal/model"
	"fintrack/internal/obs"
	"fintrack/internal/repository"
)

// Session is the result of a successful login or refresh.
type Session struct {
	User             *model.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthMetrics receives auth lifecycle counters.
type AuthMetrics interface {
	RecordLogin(outcome string)
	RecordRevocation(kind string)
}

type noopAuthMetrics struct{}

func (noopAuthMetrics) RecordLogin(string)      {}
func (noopAuthMetrics) RecordRevocation(string) {}

// AuthService handles authentication operations.
type AuthService interface {
	Signup(ctx context.Context, username, email, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*Session, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

type authService struct {
	users       repository.UserRepository
	hasher      auth.PasswordHasher
	tokens      *auth.JWTService
	revocations auth.RevocationRegistry
	events      event.Publisher
	metrics     AuthMetrics
	logger      *slog.Logger
	dummyHash   string
}

// NewAuthService creates a new authentication service. metrics may be nil.
func NewAuthService(
	users repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.JWTService,
	revocations auth.RevocationRegistry,
	events event.Publisher,
	metrics AuthMetrics,
	logger *slog.Logger,
) AuthService {
	if metrics == nil {
		metrics = noopAuthMetrics{}
	}
	if events == nil {
		events = event.NoopPublisher{}
	}
	// Unknown usernames are verified against this digest so that the response
	// time does not reveal whether the account exists.
	dummyHash, err := hasher.Hash("fintrack-timing-equalizer")
	if err != nil {
		logger.Error("prepare login timing digest; unknown usernames will answer faster", slog.Any("error", err))
	}
	return &authService{
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		dummyHash:   dummyHash,
	}
}

// Signup creates a user with a hashed password.
func (s *authService) Signup(ctx context.Context, username, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, apperrors.ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, s.duplicateUser(ctx, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.publish(ctx, event.TypeUserRegistered, user.ID.String(), user.ID.String(), map[string]string{
		"username": user.Username,
		"email":    user.Email,
	})
	return user, nil
}

// Login verifies credentials and issues an access/refresh token pair.
func (s *authService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		s.metrics.RecordLogin("unknown_user")
		return nil, apperrors.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.metrics.RecordLogin("bad_password")
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.metrics.RecordLogin("inactive")
		return nil, apperrors.ErrInvalidCredentials
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin("success")
	return session, nil
}

// Logout revokes the presented access token and, if given, the refresh token.
// Tokens that fail verification can never open a session and are not recorded.
func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	accessToken = auth.NormalizeToken(accessToken)
	if accessToken == "" {
		return apperrors.ErrNotAuthenticated
	}

	if claims, err := s.tokens.ValidateAccessToken(accessToken); err == nil {
		if err := s.revocations.Revoke(ctx, accessToken, s.tokens.Remaining(claims)); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
		s.metrics.RecordRevocation(string(auth.TokenKindAccess))
	} else {
		obs.WithContext(ctx, s.logger).Debug("logout skipped unverifiable token", slog.String("kind", string(auth.TokenKindAccess)))
	}

	if refreshToken = auth.NormalizeToken(refreshToken); refreshToken != "" {
		if err := s.revokeRefresh(ctx, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

// Refresh exchanges a refresh token for a new token pair. The presented refresh
// token is revoked so it cannot be replayed.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = auth.NormalizeToken(refreshToken)
	if refreshToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	log := obs.WithContext(ctx, s.logger)
	revoked, err := s.revocations.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("check refresh token: %w", err)
	}
	if revoked {
		log.Warn("refresh rejected", slog.String("reason", "token_revoked"))
		return nil, apperrors.ErrNotAuthenticated
	}

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		log.Warn("refresh rejected", slog.String("reason", "invalid_token"))
		return nil, apperrors.ErrNotAuthenticated
	}

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !user.IsActive) {
		log.Warn("refresh rejected", slog.String("reason", "user_not_found"))
		return nil, apperrors.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.revocations.Revoke(ctx, refreshToken, s.tokens.Remaining(claims)); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	s.metrics.RecordRevocation(string(auth.TokenKindRefresh))

	return s.issue(user)
}

func (s *authService) revokeRefresh(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateRefreshToken(token)
	if err != nil {
		obs.WithContext(ctx, s.logger).Debug("logout skipped unverifiable token", slog.String("kind", string(auth.TokenKindRefresh)))
		return nil
	}
	if err := s.revocations.Revoke(ctx, token, s.tokens.Remaining(claims)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.metrics.RecordRevocation(string(auth.TokenKindRefresh))
	return nil
}

// duplicateUser resolves which unique column a concurrent signup collided on.
func (s *authService) duplicateUser(ctx context.Context, email string) error {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return apperrors.ErrEmailTaken
	}
	return apperrors.ErrUsernameTaken
}

func (s *authService) issue(user *model.User) (*Session, error) {
	access, accessExp, err := s.tokens.GenerateAccessToken(user.Username)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.GenerateRefreshToken(user.Username)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *authService) publish(ctx context.Context, eventType, aggregateID, ownerID string, data any) {
	publishEvent(ctx, s.events, s.logger, eventType, aggregateID, ownerID, data)
}
