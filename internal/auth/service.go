// Package auth authenticates API callers (API keys and JWTs) and stores
// third-party credentials in an encrypted file store.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cratos-run/cratos/pkg/models"
)

var (
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrInvalidAPIKey = errors.New("auth: invalid api key")
)

// apiKeyEntry holds one configured key. Only the SHA-256 of the secret
// is retained after construction; the plaintext never outlives Config.
type apiKeyEntry struct {
	hash   [sha256.Size]byte
	userID string
	name   string
	scopes []string
}

// Config describes the auth service at construction time.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []APIKeyConfig
}

// APIKeyConfig is one configured API key with its owner and scopes.
type APIKeyConfig struct {
	Key    string
	UserID string
	Name   string
	Scopes []string
}

// Service validates API keys and JWTs. When neither a JWT secret nor any
// API key is configured the service reports itself disabled and callers
// skip authentication entirely.
type Service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	keys        []apiKeyEntry
}

// NewService builds a Service, hashing every configured key up front.
func NewService(cfg Config) *Service {
	s := &Service{
		jwtSecret:   []byte(cfg.JWTSecret),
		tokenExpiry: cfg.TokenExpiry,
	}
	if s.tokenExpiry == 0 {
		s.tokenExpiry = 24 * time.Hour
	}
	for _, k := range cfg.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			continue
		}
		s.keys = append(s.keys, apiKeyEntry{
			hash:   sha256.Sum256([]byte(k.Key)),
			userID: k.UserID,
			name:   k.Name,
			scopes: k.Scopes,
		})
	}
	return s
}

// Enabled reports whether any credential is configured at all.
func (s *Service) Enabled() bool {
	return s != nil && (len(s.jwtSecret) > 0 || len(s.keys) > 0)
}

// ValidateAPIKey resolves a presented secret to its user. Comparison is
// constant-time over the SHA-256 of the candidate.
func (s *Service) ValidateAPIKey(key string) (*models.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidAPIKey
	}
	candidate := sha256.Sum256([]byte(key))
	for _, entry := range s.keys {
		if subtle.ConstantTimeCompare(candidate[:], entry.hash[:]) == 1 {
			return &models.User{ID: entry.userID, Name: entry.name, Scopes: entry.scopes}, nil
		}
	}
	return nil, ErrInvalidAPIKey
}

type claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// IssueJWT mints a signed token for the given user.
func (s *Service) IssueJWT(user *models.User) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("auth: jwt secret not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
		},
	})
	return token.SignedString(s.jwtSecret)
}

// ValidateJWT parses and verifies a token, returning its user.
func (s *Service) ValidateJWT(tokenString string) (*models.User, error) {
	if len(s.jwtSecret) == 0 {
		return nil, ErrInvalidToken
	}
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &models.User{ID: c.Subject, Scopes: c.Scopes}, nil
}

type userContextKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the authenticated user, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*models.User)
	return user, ok
}
