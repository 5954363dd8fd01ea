// Package notify forwards order events to the fulfilment team.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/circuitbreaker"
	"github.com/jogardn/craft-storefront/internal/events"
)

// CountsAsFailure is the breaker predicate for webhook calls. Rejected
// payloads say nothing about the receiver's health.
func CountsAsFailure(err error) bool {
	return !errors.Is(err, events.ErrPermanent)
}

type notification struct {
	Type  string      `json:"type"`
	Event interface{} `json:"event"`
}

// WebhookClient posts each order event as JSON to a fixed URL. Client errors
// (4xx) are permanent; server and transport errors may be retried.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
}

func NewWebhookClient(url string, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) *WebhookClient {
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

func (c *WebhookClient) HandleOrderPlaced(ctx context.Context, event events.OrderPlacedEvent) error {
	return c.send(ctx, event.OrderID, notification{Type: events.OrderPlacedTopic, Event: event})
}

func (c *WebhookClient) HandleOrderStatusChanged(ctx context.Context, event events.OrderStatusChangedEvent) error {
	return c.send(ctx, event.OrderID, notification{Type: events.OrderStatusChangedTopic, Event: event})
}

func (c *WebhookClient) send(ctx context.Context, orderID string, n notification) error {
	jsonData, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal notification: %v", events.ErrPermanent, err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("%w: failed to create request: %v", events.ErrPermanent, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("%w: webhook returned status %d", events.ErrPermanent, resp.StatusCode)
		default:
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}

		c.logger.WithFields(logrus.Fields{
			"order_id": orderID,
			"type":     n.Type,
			"status":   resp.StatusCode,
		}).Info("Order notification delivered")
		return nil
	})
}

// LogHandler records notifications in the log when no webhook is configured.
type LogHandler struct {
	logger *logrus.Logger
}

func NewLogHandler(logger *logrus.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) HandleOrderPlaced(ctx context.Context, event events.OrderPlacedEvent) error {
	h.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"customer": event.CustomerName,
		"email":    event.CustomerEmail,
		"city":     event.City,
		"items":    event.ItemCount,
		"total":    event.Total,
	}).Info("New order to fulfil")
	return nil
}

func (h *LogHandler) HandleOrderStatusChanged(ctx context.Context, event events.OrderStatusChangedEvent) error {
	h.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"from":     event.PreviousStatus,
		"to":       event.Status,
	}).Info("Order status changed")
	return nil
}
