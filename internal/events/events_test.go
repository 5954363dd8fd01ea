package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestKafkaProducer_PublishOrderPlaced(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	defer mock.Close()

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != OrderPlacedTopic {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "order-1" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		var event OrderPlacedEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.Total != 160 || event.ItemCount != 2 || event.EventTime.IsZero() {
			return errors.New("unexpected payload " + string(value))
		}
		return nil
	})

	producer := NewKafkaProducerFrom(mock, testLogger())
	order := models.Order{
		ID:             "order-1",
		CustomerInfo:   models.CustomerInfo{Name: "Ada", Email: "ada@example.com", City: "Metropolis"},
		Items:          []models.CartLine{{Product: models.Product{ID: "A", Price: 75}, Quantity: 2}},
		Subtotal:       150,
		DeliveryCharge: 10,
		Total:          160,
	}
	require.NoError(t, producer.PublishOrderPlaced(context.Background(), NewOrderPlacedEvent(order)))
}

func TestKafkaProducer_PublishFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	defer mock.Close()
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewKafkaProducerFrom(mock, testLogger())
	err := producer.PublishOrderStatusChanged(context.Background(), OrderStatusChangedEvent{
		OrderID: "order-1",
		Status:  models.OrderStatusShipped,
	})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

type flakyHandler struct {
	failures int
	err      error
	placed   []OrderPlacedEvent
	changed  []OrderStatusChangedEvent
	calls    int
}

func (h *flakyHandler) HandleOrderPlaced(ctx context.Context, event OrderPlacedEvent) error {
	h.calls++
	if h.calls <= h.failures {
		return h.err
	}
	h.placed = append(h.placed, event)
	return nil
}

func (h *flakyHandler) HandleOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	h.calls++
	if h.calls <= h.failures {
		return h.err
	}
	h.changed = append(h.changed, event)
	return nil
}

type outcomes map[string]int

func (o outcomes) ObserveEvent(topic, outcome string) { o[topic+"/"+outcome]++ }

func placedMessage(t *testing.T) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(OrderPlacedEvent{OrderID: "order-1", Total: 160})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: OrderPlacedTopic, Key: []byte("order-1"), Value: data}
}

func newTestProcessor(handler OrderEventHandler, dlq sarama.SyncProducer, observer Observer) (*Processor, *[]time.Duration) {
	p := NewProcessor(handler, dlq, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 3 * time.Second}, observer, testLogger())
	var delays []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return p, &delays
}

func TestProcessor_RetriesWithBackoff(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	defer dlq.Close()
	handler := &flakyHandler{failures: 2, err: errors.New("smtp timeout")}
	seen := outcomes{}

	p, delays := newTestProcessor(handler, dlq, seen)
	outcome := p.Process(context.Background(), placedMessage(t))

	assert.Equal(t, OutcomeHandled, outcome)
	require.Len(t, handler.placed, 1)
	assert.Equal(t, 160.0, handler.placed[0].Total)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
	assert.Equal(t, 1, seen[OrderPlacedTopic+"/"+OutcomeHandled])
}

func TestProcessor_DeadLettersAfterRetries(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	defer dlq.Close()
	dlq.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != OrderEventsDLQTopic {
			return errors.New("unexpected topic " + msg.Topic)
		}
		for _, h := range msg.Headers {
			if string(h.Key) == "metadata" {
				var metadata MessageMetadata
				if err := json.Unmarshal(h.Value, &metadata); err != nil {
					return err
				}
				if metadata.OriginalTopic != OrderPlacedTopic || metadata.RetryCount != 1 {
					return errors.New("unexpected metadata " + string(h.Value))
				}
				return nil
			}
		}
		return errors.New("metadata header missing")
	})

	handler := &flakyHandler{failures: 100, err: errors.New("smtp timeout")}
	p, delays := newTestProcessor(handler, dlq, nil)

	assert.Equal(t, OutcomeDeadLettered, p.Process(context.Background(), placedMessage(t)))
	assert.Equal(t, 4, handler.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *delays)
}

func TestProcessor_PermanentFailureSkipsRetries(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	defer dlq.Close()
	dlq.ExpectSendMessageAndSucceed()

	handler := &flakyHandler{failures: 100, err: ErrPermanent}
	p, delays := newTestProcessor(handler, dlq, nil)

	assert.Equal(t, OutcomeDeadLettered, p.Process(context.Background(), placedMessage(t)))
	assert.Equal(t, 1, handler.calls)
	assert.Empty(t, *delays)
}

func TestProcessor_CancelledRetryIsNotDeadLettered(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	defer dlq.Close()
	seen := outcomes{}

	ctx, cancel := context.WithCancel(context.Background())
	handler := &flakyHandler{failures: 100, err: errors.New("smtp timeout")}
	p, _ := newTestProcessor(handler, dlq, seen)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	assert.Equal(t, OutcomeInterrupted, p.Process(ctx, placedMessage(t)))
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, 1, seen[OrderPlacedTopic+"/"+OutcomeInterrupted])
	assert.Zero(t, seen[OrderPlacedTopic+"/"+OutcomeDeadLettered])
}

func TestProcessor_UndecodableAndUnknownMessages(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	defer dlq.Close()
	dlq.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	handler := &flakyHandler{}
	p, _ := newTestProcessor(handler, dlq, nil)

	garbage := &sarama.ConsumerMessage{Topic: OrderStatusChangedTopic, Value: []byte("{")}
	assert.Equal(t, OutcomeDropped, p.Process(context.Background(), garbage))

	unknown := &sarama.ConsumerMessage{Topic: "inventory.updated", Value: []byte("{}")}
	assert.Equal(t, OutcomeHandled, p.Process(context.Background(), unknown))
	assert.Zero(t, handler.calls)
}

func TestDLQReplayer_Replay(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != OrderStatusChangedTopic {
			return errors.New("replayed to " + msg.Topic)
		}
		return nil
	})

	replayer := NewDLQReplayerFrom(producer, 0, 3, testLogger())
	metadata, _ := json.Marshal(MessageMetadata{RetryCount: 1, OriginalTopic: OrderStatusChangedTopic})
	message := &sarama.ConsumerMessage{
		Topic:   OrderEventsDLQTopic,
		Key:     []byte("order-1"),
		Value:   []byte(`{"order_id":"order-1"}`),
		Headers: []*sarama.RecordHeader{{Key: []byte("metadata"), Value: metadata}},
	}
	require.NoError(t, replayer.Replay(message))

	exhausted, _ := json.Marshal(MessageMetadata{RetryCount: 3, OriginalTopic: OrderStatusChangedTopic})
	message.Headers = []*sarama.RecordHeader{{Key: []byte("metadata"), Value: exhausted}}
	assert.ErrorIs(t, replayer.Replay(message), ErrReplayLimit)
}

func TestRetryCountHeader(t *testing.T) {
	message := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{{Key: []byte("retry_count"), Value: []byte("2")}}}
	assert.Equal(t, 2, retryCount(message))
	assert.Equal(t, 0, retryCount(&sarama.ConsumerMessage{}))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishOrderPlaced(context.Background(), OrderPlacedEvent{}))
	assert.NoError(t, p.PublishOrderStatusChanged(context.Background(), OrderStatusChangedEvent{}))
}
