package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/internal/cart"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/events"
	"github.com/jogardn/craft-storefront/internal/storage"
	"github.com/jogardn/craft-storefront/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeOrders struct {
	mu      sync.Mutex
	created []models.Order
	err     error
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeOrders) Create(ctx context.Context, order models.Order) (string, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, order)
	return "order-1", nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type staticCharges []models.DeliveryCharge

func (s staticCharges) Charges(context.Context) []models.DeliveryCharge { return s }

type recordingPublisher struct {
	events.NoopPublisher
	placed []events.OrderPlacedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, e events.OrderPlacedEvent) error {
	p.placed = append(p.placed, e)
	return p.err
}

type reasons []string

func (r *reasons) OrderPlaced()                 {}
func (r *reasons) CheckoutFailed(reason string) { *r = append(*r, reason) }

func filledCart(t *testing.T) *cart.Ledger {
	t.Helper()
	ledger := cart.NewManager(cart.NewMemoryStore(), testLogger()).New()
	ledger.Add(models.Product{ID: "A", Name: "Vase", Price: 100}, 1)
	ledger.Add(models.Product{ID: "B", Name: "Bowl", Price: 25}, 2)
	return ledger
}

func newTestService(orders OrderWriter, publisher events.Publisher, rec Recorder) *Service {
	charges := staticCharges{{City: "Metropolis", Charge: 10, EstimatedDays: "1-2"}}
	return NewService(orders, charges, storage.NewMemoryAdapter(), publisher, nil, rec, Config{}, testLogger())
}

func TestPlaceOrder_Success(t *testing.T) {
	orders := &fakeOrders{}
	publisher := &recordingPublisher{}
	svc := newTestService(orders, publisher, nil)
	ledger := filledCart(t)

	form := validForm()
	form.City = "metropolis"
	order, err := svc.PlaceOrder(context.Background(), ledger, form)
	require.NoError(t, err)

	assert.Equal(t, "order-1", order.ID)
	assert.True(t, ledger.IsEmpty())
	require.Equal(t, 1, orders.count())

	stored := orders.created[0]
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Equal(t, 150.0, stored.Subtotal)
	assert.Equal(t, 10.0, stored.DeliveryCharge)
	assert.Equal(t, 160.0, stored.Total)
	assert.Len(t, stored.Items, 2)
	assert.False(t, stored.CreatedAt.IsZero())

	require.Len(t, publisher.placed, 1)
	assert.Equal(t, "order-1", publisher.placed[0].OrderID)
	assert.Equal(t, 3, publisher.placed[0].ItemCount)
}

func TestPlaceOrder_InvalidEmailDoesNotInsert(t *testing.T) {
	orders := &fakeOrders{}
	rec := &reasons{}
	svc := newTestService(orders, events.NoopPublisher{}, rec)
	ledger := filledCart(t)

	form := validForm()
	form.Email = "not-an-email"
	_, err := svc.PlaceOrder(context.Background(), ledger, form)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")
	assert.Zero(t, orders.count())
	assert.Equal(t, 3, ledger.ItemCount())
	assert.Equal(t, []string{"validation"}, []string(*rec))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	orders := &fakeOrders{}
	svc := newTestService(orders, events.NoopPublisher{}, nil)
	ledger := cart.NewManager(cart.NewMemoryStore(), testLogger()).New()

	_, err := svc.PlaceOrder(context.Background(), ledger, validForm())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, orders.count())
}

func TestPlaceOrder_StoreFailureKeepsCart(t *testing.T) {
	orders := &fakeOrders{err: errors.New("connection reset")}
	publisher := &recordingPublisher{}
	svc := newTestService(orders, publisher, nil)
	ledger := filledCart(t)

	_, err := svc.PlaceOrder(context.Background(), ledger, validForm())
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
	assert.Equal(t, 3, ledger.ItemCount())
	assert.Empty(t, publisher.placed)

	// The lock was released, so a retry goes through.
	orders.err = nil
	_, err = svc.PlaceOrder(context.Background(), ledger, validForm())
	require.NoError(t, err)
	assert.True(t, ledger.IsEmpty())
}

func TestPlaceOrder_PublishFailureStillSucceeds(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(&fakeOrders{}, publisher, nil)
	ledger := filledCart(t)

	order, err := svc.PlaceOrder(context.Background(), ledger, validForm())
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.True(t, ledger.IsEmpty())
}

func TestPlaceOrder_RejectsConcurrentSubmission(t *testing.T) {
	orders := &fakeOrders{entered: make(chan struct{}, 1), block: make(chan struct{})}
	svc := newTestService(orders, events.NoopPublisher{}, nil)
	ledger := filledCart(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), ledger, validForm())
		done <- err
	}()

	select {
	case <-orders.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the store")
	}

	_, err := svc.PlaceOrder(context.Background(), ledger, validForm())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(orders.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, orders.count())
}

func TestPlaceOrder_KeepsItemsAddedDuringSubmission(t *testing.T) {
	orders := &fakeOrders{entered: make(chan struct{}, 1), block: make(chan struct{})}
	svc := newTestService(orders, events.NoopPublisher{}, nil)
	ledger := filledCart(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), ledger, validForm())
		done <- err
	}()

	select {
	case <-orders.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never reached the store")
	}

	ledger.Add(models.Product{ID: "C", Name: "Quilt", Price: 60}, 1)
	ledger.Add(models.Product{ID: "A", Name: "Vase", Price: 100}, 1)

	close(orders.block)
	require.NoError(t, <-done)

	require.Equal(t, 1, orders.count())
	for _, item := range orders.created[0].Items {
		assert.NotEqual(t, "C", item.Product.ID)
	}

	lines := ledger.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "A", lines[0].Product.ID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, "C", lines[1].Product.ID)
	assert.Equal(t, 1, lines[1].Quantity)
}
