// Package checkout turns a validated customer form and a cart into a stored order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/cart"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/events"
	"github.com/jogardn/craft-storefront/internal/pricing"
	"github.com/jogardn/craft-storefront/internal/websocket"
	"github.com/jogardn/craft-storefront/pkg/models"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrSubmissionInProgress = errors.New("order submission already in progress")
)

// Guard claims a key for one owner at a time.
type Guard interface {
	SetIdempotency(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseIdempotency(ctx context.Context, key, owner string) error
}

type OrderWriter interface {
	Create(ctx context.Context, order models.Order) (string, error)
}

type ChargeSource interface {
	Charges(ctx context.Context) []models.DeliveryCharge
}

type Broadcaster interface {
	Broadcast(messageType string, data interface{})
}

type Recorder interface {
	OrderPlaced()
	CheckoutFailed(reason string)
}

type Config struct {
	LockTTL time.Duration
}

type Service struct {
	orders      OrderWriter
	charges     ChargeSource
	guard       Guard
	publisher   events.Publisher
	broadcaster Broadcaster
	recorder    Recorder
	logger      *logrus.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

func NewService(orders OrderWriter, charges ChargeSource, guard Guard, publisher events.Publisher, broadcaster Broadcaster, recorder Recorder, config Config, logger *logrus.Logger) *Service {
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	return &Service{
		orders:      orders,
		charges:     charges,
		guard:       guard,
		publisher:   publisher,
		broadcaster: broadcaster,
		recorder:    recorder,
		logger:      logger,
		lockTTL:     config.LockTTL,
		now:         time.Now,
	}
}

func lockKey(cartID string) string {
	return "checkout:" + cartID
}

// PlaceOrder records the cart as a pending order and clears it. When the
// order cannot be stored the cart is left as it was and the error wraps
// docstore.ErrUnavailable so the caller can offer a retry.
func (s *Service) PlaceOrder(ctx context.Context, ledger *cart.Ledger, form models.CustomerInfo) (models.Order, error) {
	info, err := Validate(form)
	if err != nil {
		s.failed("validation")
		return models.Order{}, err
	}
	if ledger.IsEmpty() {
		s.failed("empty_cart")
		return models.Order{}, ErrEmptyCart
	}

	key, owner := lockKey(ledger.ID()), uuid.New().String()
	acquired, err := s.guard.SetIdempotency(ctx, key, owner, s.lockTTL)
	if err != nil {
		s.failed("lock")
		return models.Order{}, fmt.Errorf("%w: checkout lock: %v", docstore.ErrUnavailable, err)
	}
	if !acquired {
		s.failed("duplicate")
		return models.Order{}, ErrSubmissionInProgress
	}
	defer func() {
		// The submission may have been cancelled; release regardless.
		if err := s.guard.ReleaseIdempotency(context.WithoutCancel(ctx), key, owner); err != nil {
			s.logger.WithError(err).WithField("cart_id", ledger.ID()).Warn("Failed to release checkout lock")
		}
	}()

	lines := ledger.Lines()
	if len(lines) == 0 {
		s.failed("empty_cart")
		return models.Order{}, ErrEmptyCart
	}
	quote := pricing.Quote(lines, info.City, s.charges.Charges(ctx))

	order := models.Order{
		CustomerInfo:   info,
		Items:          lines,
		Subtotal:       quote.Subtotal,
		DeliveryCharge: quote.DeliveryCharge,
		Total:          quote.Total,
		Status:         models.OrderStatusPending,
		CreatedAt:      s.now().UTC(),
	}

	id, err := s.orders.Create(ctx, order)
	if err != nil {
		s.failed("store")
		s.logger.WithError(err).WithField("cart_id", ledger.ID()).Error("Failed to place order")
		if !errors.Is(err, docstore.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
		}
		return models.Order{}, err
	}
	order.ID = id
	ledger.RemoveOrdered(lines)

	s.logger.WithFields(logrus.Fields{
		"order_id": id,
		"cart_id":  ledger.ID(),
		"items":    models.ItemCount(lines),
		"total":    pricing.Round2(order.Total),
		"city":     info.City,
	}).Info("Order placed")
	if s.recorder != nil {
		s.recorder.OrderPlaced()
	}

	event := events.NewOrderPlacedEvent(order)
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("Failed to publish order placed event")
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(websocket.MessageOrderPlaced, event)
	}
	return order, nil
}

func (s *Service) failed(reason string) {
	if s.recorder != nil {
		s.recorder.CheckoutFailed(reason)
	}
}
