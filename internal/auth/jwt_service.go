package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails verification: bad
// signature, wrong algorithm, wrong kind, malformed, expired or missing subject.
var ErrInvalidToken = errors.New("invalid token")

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims represents JWT claims. Subject carries the username.
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// JWTService issues and verifies signed tokens. Access and refresh tokens use
// separate secrets so one kind can never be accepted as the other.
type JWTService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// GenerateAccessToken issues an access token for subject.
func (s *JWTService) GenerateAccessToken(subject string) (string, time.Time, error) {
	return s.generate(TokenKindAccess, subject, s.accessSecret, s.accessTTL)
}

// GenerateRefreshToken issues a refresh token for subject.
func (s *JWTService) GenerateRefreshToken(subject string) (string, time.Time, error) {
	return s.generate(TokenKindRefresh, subject, s.refreshSecret, s.refreshTTL)
}

// ValidateAccessToken verifies an access token and returns its claims.
func (s *JWTService) ValidateAccessToken(token string) (*Claims, error) {
	return s.validate(token, TokenKindAccess, s.accessSecret)
}

// ValidateRefreshToken verifies a refresh token and returns its claims.
func (s *JWTService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.validate(token, TokenKindRefresh, s.refreshSecret)
}

// Remaining returns how long claims stay valid, or zero if already expired.
func (s *JWTService) Remaining(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	if d := claims.ExpiresAt.Time.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

func (s *JWTService) generate(kind TokenKind, subject string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("generate %s token: empty subject", kind)
	}

	now := s.now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return token, claims.ExpiresAt.Time, nil
}

func (s *JWTService) validate(tokenString string, kind TokenKind, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	now := s.now()
	if !claims.VerifyExpiresAt(now, true) || !claims.VerifyNotBefore(now, false) {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
