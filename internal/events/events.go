// Package events carries order lifecycle events over Kafka.
package events

import (
	"context"
	"time"

	"github.com/jogardn/craft-storefront/pkg/models"
)

const (
	OrderPlacedTopic        = "order.placed"
	OrderStatusChangedTopic = "order.status_changed"
	OrderEventsDLQTopic     = "order.events.dlq"
)

type OrderPlacedEvent struct {
	OrderID        string    `json:"order_id"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	City           string    `json:"city"`
	ItemCount      int       `json:"item_count"`
	Subtotal       float64   `json:"subtotal"`
	DeliveryCharge float64   `json:"delivery_charge"`
	Total          float64   `json:"total"`
	CreatedAt      time.Time `json:"created_at"`
	EventTime      time.Time `json:"event_time"`
}

// NewOrderPlacedEvent summarises an order that has just been stored.
func NewOrderPlacedEvent(order models.Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:        order.ID,
		CustomerName:   order.CustomerInfo.Name,
		CustomerEmail:  order.CustomerInfo.Email,
		City:           order.CustomerInfo.City,
		ItemCount:      models.ItemCount(order.Items),
		Subtotal:       order.Subtotal,
		DeliveryCharge: order.DeliveryCharge,
		Total:          order.Total,
		CreatedAt:      order.CreatedAt,
	}
}

type OrderStatusChangedEvent struct {
	OrderID        string             `json:"order_id"`
	PreviousStatus models.OrderStatus `json:"previous_status"`
	Status         models.OrderStatus `json:"status"`
	ChangedAt      time.Time          `json:"changed_at"`
	EventTime      time.Time          `json:"event_time"`
}

// Publisher announces order events. Callers treat a publish error as
// non-fatal: the order is already stored.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(context.Context, OrderPlacedEvent) error { return nil }

func (NoopPublisher) PublishOrderStatusChanged(context.Context, OrderStatusChangedEvent) error {
	return nil
}

// OrderEventHandler consumes decoded order events.
type OrderEventHandler interface {
	HandleOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
	HandleOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error
}

// Observer is told how each consumed message ended.
type Observer interface {
	ObserveEvent(topic, outcome string)
}

const (
	OutcomeHandled      = "handled"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDropped      = "dropped"
	// OutcomeInterrupted messages were cut short by shutdown and are left
	// uncommitted for redelivery.
	OutcomeInterrupted = "interrupted"
)
