package auth

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jogardn/craft-storefront/internal/storage"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *storage.MemoryAdapter) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	sessions := storage.NewMemoryAdapter()
	return NewAuthenticator("Admin@Example.com", string(hash), sessions, time.Hour, logger), sessions
}

func TestSignIn_Success(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	session, err := a.SignIn(ctx, " admin@example.com ", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "admin@example.com", session.Email)

	email, err := a.Current(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", email)

	require.NoError(t, a.SignOut(ctx, session.Token))
	_, err = a.Current(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSignIn_GenericFailure(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	_, wrongPassword := a.SignIn(ctx, "admin@example.com", "nope")
	_, wrongEmail := a.SignIn(ctx, "someone@example.com", "s3cret")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), wrongEmail.Error())
}

func TestSignIn_UnconfiguredAdminRejectsEveryone(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	a := NewAuthenticator("", "", storage.NewMemoryAdapter(), time.Hour, logger)

	_, err := a.SignIn(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCurrent_ExpiredSession(t *testing.T) {
	a, sessions := newTestAuthenticator(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions.SetClock(func() time.Time { return now })
	ctx := context.Background()

	session, err := a.SignIn(ctx, "admin@example.com", "s3cret")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = a.Current(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.Current(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))
}
