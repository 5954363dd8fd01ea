// Package orders stores placed orders and drives their status through fulfilment.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/events"
	"github.com/jogardn/craft-storefront/internal/websocket"
	"github.com/jogardn/craft-storefront/pkg/models"
)

var ErrInvalidStatus = errors.New("invalid order status")

type FallbackRecorder interface {
	ReadFallback(source string)
}

// Broadcaster pushes a message to live admin consoles.
type Broadcaster interface {
	Broadcast(messageType string, data interface{})
}

// StatusRecorder counts status transitions.
type StatusRecorder interface {
	OrderStatusChanged(status string)
}

type Service struct {
	docs        docstore.Store
	publisher   events.Publisher
	broadcaster Broadcaster
	logger      *logrus.Logger
	fallbacks   FallbackRecorder
	statuses    StatusRecorder
	now         func() time.Time
}

type Option func(*Service)

func WithFallbackRecorder(f FallbackRecorder) Option { return func(s *Service) { s.fallbacks = f } }

func WithStatusRecorder(r StatusRecorder) Option { return func(s *Service) { s.statuses = r } }

func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.broadcaster = b } }

func NewService(docs docstore.Store, publisher events.Publisher, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		docs:      docs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a fully assembled order and returns its new identifier.
func (s *Service) Create(ctx context.Context, order models.Order) (string, error) {
	fields, err := docstore.Encode(order)
	if err != nil {
		return "", err
	}
	delete(fields, "updatedAt")

	id, err := s.docs.Insert(ctx, docstore.Orders, fields)
	if err != nil {
		return "", fmt.Errorf("failed to save order: %w", err)
	}
	return id, nil
}

// List returns every order, newest first. A failed read yields an empty list.
func (s *Service) List(ctx context.Context) []models.Order {
	docs, err := s.docs.List(ctx, docstore.Orders, docstore.OrderBy("createdAt", docstore.Descending))
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch orders")
		if s.fallbacks != nil {
			s.fallbacks.ReadFallback("orders")
		}
		return []models.Order{}
	}

	orders := make([]models.Order, 0, len(docs))
	for _, doc := range docs {
		var o models.Order
		if err := docstore.Decode(doc, &o); err != nil {
			s.logger.WithError(err).WithField("order_id", doc.ID()).Warn("Skipping malformed order")
			continue
		}
		orders = append(orders, o)
	}
	return orders
}

func (s *Service) Get(ctx context.Context, id string) (models.Order, error) {
	doc, err := s.docs.Get(ctx, docstore.Orders, id)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	var o models.Order
	if err := docstore.Decode(doc, &o); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

// UpdateStatus moves an order to status. Any of the known statuses may
// follow any other.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	if !status.Valid() {
		return models.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	if err := s.docs.Update(ctx, docstore.Orders, id, docstore.Document{"status": string(status)}); err != nil {
		return models.Order{}, fmt.Errorf("failed to update order %s: %w", id, err)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		// The write went through; report what we know.
		s.logger.WithError(err).WithField("order_id", id).Warn("Failed to re-read order after status update")
		updated = current
		updated.Status = status
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": id,
		"from":     current.Status,
		"to":       status,
	}).Info("Order status updated")

	if s.statuses != nil {
		s.statuses.OrderStatusChanged(string(status))
	}

	changedAt := s.now()
	if updated.UpdatedAt != nil {
		changedAt = *updated.UpdatedAt
	}
	event := events.OrderStatusChangedEvent{
		OrderID:        id,
		PreviousStatus: current.Status,
		Status:         status,
		ChangedAt:      changedAt,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("Failed to publish order status event")
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(websocket.MessageOrderStatusChanged, event)
	}
	return updated, nil
}
