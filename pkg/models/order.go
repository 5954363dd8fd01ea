package models

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type CustomerInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Order is written once at checkout; afterwards only Status and UpdatedAt change.
type Order struct {
	ID             string       `json:"id,omitempty"`
	CustomerInfo   CustomerInfo `json:"customerInfo"`
	Items          []CartLine   `json:"items"`
	Subtotal       float64      `json:"subtotal"`
	DeliveryCharge float64      `json:"deliveryCharge"`
	Total          float64      `json:"total"`
	Status         OrderStatus  `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      *time.Time   `json:"updatedAt,omitempty"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
	Order   *Order `json:"order,omitempty"`
}
