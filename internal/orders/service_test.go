package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/events"
	"github.com/jogardn/craft-storefront/internal/websocket"
	"github.com/jogardn/craft-storefront/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type recordingPublisher struct {
	events.NoopPublisher
	changed []events.OrderStatusChangedEvent
	err     error
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, e events.OrderStatusChangedEvent) error {
	p.changed = append(p.changed, e)
	return p.err
}

type recordingBroadcaster struct {
	types []string
}

func (b *recordingBroadcaster) Broadcast(messageType string, data interface{}) {
	b.types = append(b.types, messageType)
}

type brokenStore struct {
	docstore.Store
}

func (brokenStore) List(ctx context.Context, collection string, constraints ...docstore.Constraint) ([]docstore.Document, error) {
	return nil, docstore.ErrUnavailable
}

func newOrder(name string, createdAt time.Time) models.Order {
	return models.Order{
		CustomerInfo: models.CustomerInfo{Name: name, Email: "a@b.co", Phone: "123", Address: "1 Road", City: "Gotham"},
		Items:        []models.CartLine{{Product: models.Product{ID: "A", Name: "Vase", Price: 10}, Quantity: 1}},
		Subtotal:     10,
		Total:        10,
		Status:       models.OrderStatusPending,
		CreatedAt:    createdAt,
	}
}

func TestService_ListNewestFirst(t *testing.T) {
	svc := NewService(docstore.NewMemoryStore(), events.NoopPublisher{}, testLogger())
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "third", "second"} {
		offset := map[int]time.Duration{0: 0, 1: 2 * time.Hour, 2: time.Hour}[i]
		_, err := svc.Create(ctx, newOrder(name, base.Add(offset)))
		require.NoError(t, err)
	}

	listed := svc.List(ctx)
	require.Len(t, listed, 3)
	assert.Equal(t, "third", listed[0].CustomerInfo.Name)
	assert.Equal(t, "second", listed[1].CustomerInfo.Name)
	assert.Equal(t, "first", listed[2].CustomerInfo.Name)
	assert.Nil(t, listed[0].UpdatedAt)
	assert.Equal(t, 1, listed[0].Items[0].Quantity)
}

func TestService_UpdateStatus(t *testing.T) {
	docs := docstore.NewMemoryStore()
	stamp := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	docs.SetClock(func() time.Time { return stamp })

	publisher := &recordingPublisher{}
	broadcaster := &recordingBroadcaster{}
	svc := NewService(docs, publisher, testLogger(), WithBroadcaster(broadcaster))
	ctx := context.Background()

	id, err := svc.Create(ctx, newOrder("ada", stamp.Add(-time.Hour)))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, id, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.Equal(stamp))
	assert.True(t, updated.CreatedAt.Equal(stamp.Add(-time.Hour)))

	require.Len(t, publisher.changed, 1)
	assert.Equal(t, models.OrderStatusPending, publisher.changed[0].PreviousStatus)
	assert.Equal(t, models.OrderStatusShipped, publisher.changed[0].Status)
	assert.Equal(t, []string{websocket.MessageOrderStatusChanged}, broadcaster.types)

	// Backwards transitions are allowed.
	_, err = svc.UpdateStatus(ctx, id, models.OrderStatusPending)
	require.NoError(t, err)
}

func TestService_UpdateStatusErrors(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := NewService(docstore.NewMemoryStore(), publisher, testLogger())
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, "missing", models.OrderStatusShipped)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	id, err := svc.Create(ctx, newOrder("ada", time.Now()))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, id, "lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, publisher.changed)
}

func TestService_PublishFailureIsNotFatal(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(docstore.NewMemoryStore(), publisher, testLogger())
	ctx := context.Background()

	id, err := svc.Create(ctx, newOrder("ada", time.Now()))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, id, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updated.Status)
}

func TestService_ListFailureDegrades(t *testing.T) {
	svc := NewService(brokenStore{}, events.NoopPublisher{}, testLogger())
	listed := svc.List(context.Background())
	assert.NotNil(t, listed)
	assert.Empty(t, listed)
}
