// Package auth signs users in and guards the API with bearer or cookie
// tokens plus double-submit CSRF protection.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
)

var (
	ErrCredentialsRequired = errors.New("email and password are required")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
)

const (
	tokenPrefix     = "auth_token/"
	userTokenPrefix = "auth_user/"
)

type tokenRecord struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues, validates, and revokes user authentication tokens.
type Service struct {
	store          kvstore.Store
	mu             sync.Mutex
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	now            func() time.Time
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(store kvstore.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:          store,
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		now:            time.Now,
	}
}

// Authenticate accepts any non-empty email and password. The display name
// falls back to the local part of the email.
func Authenticate(email, password, name string) (models.User, error) {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return models.User{}, ErrCredentialsRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return models.User{Email: email, Name: name}, nil
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, user models.User) (string, error) {
	if user.Email == "" {
		return "", errors.New("user email required")
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	rec := tokenRecord{Email: user.Email, Name: user.Name, ExpiresAt: s.now().UTC().Add(s.tokenTTL)}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	if err := s.store.Set(ctx, tokenPrefix+token, string(data)); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.userTokens(ctx, user.Email)
	if err != nil {
		return "", err
	}
	if err := s.saveUserTokens(ctx, user.Email, append(tokens, token)); err != nil {
		return "", err
	}
	return token, nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning its user.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (models.User, error) {
	if authToken == "" {
		return models.User{}, errors.New("token required")
	}
	raw, err := s.store.Get(ctx, tokenPrefix+authToken)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.User{}, ErrInvalidToken
		}
		return models.User{}, fmt.Errorf("lookup token: %w", err)
	}
	var rec tokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.User{}, ErrInvalidToken
	}
	if s.now().UTC().After(rec.ExpiresAt) {
		_ = s.store.Delete(ctx, tokenPrefix+authToken)
		return models.User{}, ErrTokenExpired
	}
	return models.User{Email: rec.Email, Name: rec.Name}, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if err := s.store.Delete(ctx, tokenPrefix+authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.userTokens(ctx, email)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if err := s.store.Delete(ctx, tokenPrefix+token); err != nil {
			return fmt.Errorf("revoke user tokens: %w", err)
		}
	}
	if err := s.store.Delete(ctx, userTokenPrefix+email); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *Service) userTokens(ctx context.Context, email string) ([]string, error) {
	raw, err := s.store.Get(ctx, userTokenPrefix+email)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user tokens: %w", err)
	}
	var tokens []string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, nil
	}
	// drop entries whose token record is gone
	live := tokens[:0]
	for _, token := range tokens {
		if _, err := s.store.Get(ctx, tokenPrefix+token); err == nil {
			live = append(live, token)
		}
	}
	return live, nil
}

func (s *Service) saveUserTokens(ctx context.Context, email string, tokens []string) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encode user tokens: %w", err)
	}
	if err := s.store.Set(ctx, userTokenPrefix+email, string(data)); err != nil {
		return fmt.Errorf("store user tokens: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
