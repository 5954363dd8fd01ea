package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
)

type failingStore struct {
	Store
	err error
}

func (f *failingStore) List(ctx context.Context, collection string, constraints ...Constraint) ([]Document, error) {
	return nil, f.err
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveStoreCall(operation, collection string, duration time.Duration, err error) {
	r.calls = append(r.calls, operation+":"+collection)
}

func newBreaker(maxFailures int) *circuitbreaker.CircuitBreaker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return circuitbreaker.New(circuitbreaker.Config{
		Name:        "docstore",
		MaxFailures: maxFailures,
		Timeout:     time.Minute,
		IsFailure:   CountsAsFailure,
	}, logger)
}

func TestGuarded_OpenBreakerReportsUnavailable(t *testing.T) {
	inner := &failingStore{Store: NewMemoryStore(), err: errors.New("connection refused")}
	observer := &recordingObserver{}
	store := NewGuarded(inner, newBreaker(2), observer)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.List(ctx, Products)
		require.Error(t, err)
	}
	_, err := store.List(ctx, Products)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Len(t, observer.calls, 3)
}

func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	breaker := newBreaker(1)
	store := NewGuarded(NewMemoryStore(), breaker, nil)

	for i := 0; i < 3; i++ {
		_, err := store.Get(context.Background(), Products, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestGuarded_PassesThrough(t *testing.T) {
	store := NewGuarded(NewMemoryStore(), newBreaker(1), nil)
	ctx := context.Background()

	id, err := store.Insert(ctx, HeroImages, Document{"url": "https://cdn.example.com/a.jpg"})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, HeroImages, id, Document{"url": "https://cdn.example.com/b.jpg"}))

	doc, err := store.Get(ctx, HeroImages, id)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/b.jpg", doc["url"])

	require.NoError(t, store.Delete(ctx, HeroImages, id))
	docs, err := store.List(ctx, HeroImages)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
