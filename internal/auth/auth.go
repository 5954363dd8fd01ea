// Package auth signs administrators in against a configured bcrypt hash and
// tracks their sessions.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials never says which half of the pair was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not signed in")
)

type SessionStore interface {
	SaveSession(ctx context.Context, token, subject string, ttl time.Duration) error
	LoadSession(ctx context.Context, token string) (string, bool, error)
	DeleteSession(ctx context.Context, token string) error
}

type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Authenticator struct {
	email        string
	passwordHash []byte
	sessions     SessionStore
	ttl          time.Duration
	logger       *logrus.Logger
	now          func() time.Time
}

func NewAuthenticator(email, passwordHash string, sessions SessionStore, ttl time.Duration, logger *logrus.Logger) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: []byte(passwordHash),
		sessions:     sessions,
		ttl:          ttl,
		logger:       logger,
		now:          time.Now,
	}
}

// HashPassword produces a hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (a *Authenticator) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	emailOK := a.email != "" && subtle.ConstantTimeCompare([]byte(email), []byte(a.email)) == 1
	// The hash is always checked so a wrong email costs the same as a wrong password.
	passwordErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !emailOK || passwordErr != nil {
		a.logger.WithField("email", email).Warn("Admin sign-in rejected")
		return Session{}, ErrInvalidCredentials
	}

	session := Session{
		Token:     uuid.New().String(),
		Email:     a.email,
		ExpiresAt: a.now().Add(a.ttl),
	}
	if err := a.sessions.SaveSession(ctx, session.Token, session.Email, a.ttl); err != nil {
		return Session{}, fmt.Errorf("failed to save session: %w", err)
	}

	a.logger.WithField("email", session.Email).Info("Admin signed in")
	return session, nil
}

// Current resolves a session token to the signed-in email.
func (a *Authenticator) Current(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	subject, ok, err := a.sessions.LoadSession(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	return subject, nil
}

func (a *Authenticator) SignOut(ctx context.Context, token string) error {
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
