package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// ErrPermanent marks handler failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent event failure")

type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
}

// MessageMetadata travels in the "metadata" header of dead-lettered messages.
type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

// Processor decodes one message, retries the handler with exponential
// backoff and dead-letters what still fails.
type Processor struct {
	handler  OrderEventHandler
	dlq      sarama.SyncProducer
	policy   RetryPolicy
	logger   *logrus.Logger
	observer Observer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewProcessor(handler OrderEventHandler, dlq sarama.SyncProducer, policy RetryPolicy, observer Observer, logger *logrus.Logger) *Processor {
	return &Processor{
		handler:  handler,
		dlq:      dlq,
		policy:   policy,
		logger:   logger,
		observer: observer,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Process handles message and returns its outcome. The message may be
// marked consumed for any outcome except OutcomeInterrupted.
func (p *Processor) Process(ctx context.Context, message *sarama.ConsumerMessage) string {
	err := p.handleWithRetry(ctx, message)
	outcome := OutcomeHandled
	switch {
	case err != nil && ctx.Err() != nil:
		p.logger.WithError(err).WithField("topic", message.Topic).Warn("Message processing interrupted")
		outcome = OutcomeInterrupted
	case err != nil:
		p.logger.WithError(err).WithField("topic", message.Topic).Error("Failed to process message after retries")
		outcome = OutcomeDeadLettered
		if dlqErr := p.sendToDLQ(message, err); dlqErr != nil {
			p.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
			outcome = OutcomeDropped
		}
	}
	if p.observer != nil {
		p.observer.ObserveEvent(message.Topic, outcome)
	}
	return outcome
}

func (p *Processor) dispatch(ctx context.Context, message *sarama.ConsumerMessage) (func() error, string, error) {
	switch message.Topic {
	case OrderPlacedTopic:
		var event OrderPlacedEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return nil, "", fmt.Errorf("%w: decode %s: %v", ErrPermanent, message.Topic, err)
		}
		return func() error { return p.handler.HandleOrderPlaced(ctx, event) }, event.OrderID, nil
	case OrderStatusChangedTopic:
		var event OrderStatusChangedEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return nil, "", fmt.Errorf("%w: decode %s: %v", ErrPermanent, message.Topic, err)
		}
		return func() error { return p.handler.HandleOrderStatusChanged(ctx, event) }, event.OrderID, nil
	default:
		return nil, "", nil
	}
}

func (p *Processor) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	p.logger.WithFields(logrus.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
		"key":       string(message.Key),
	}).Info("Processing Kafka message")

	handle, orderID, err := p.dispatch(ctx, message)
	if err != nil {
		return err
	}
	if handle == nil {
		p.logger.WithField("topic", message.Topic).Warn("Unknown topic received")
		return nil
	}

	delay := p.policy.InitialDelay
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"order_id": orderID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying order event")
			if err := p.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
			if delay > p.policy.MaxDelay {
				delay = p.policy.MaxDelay
			}
		}

		err = handle()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		p.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error processing order event")
	}
	return fmt.Errorf("exhausted retries for order %s: %w", orderID, err)
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == "retry_count" {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func (p *Processor) sendToDLQ(message *sarama.ConsumerMessage, processingError error) error {
	now := p.now()
	metadata := MessageMetadata{
		RetryCount:    retryCount(message) + 1,
		FirstFailure:  now,
		LastFailure:   now,
		OriginalTopic: message.Topic,
		ErrorMessage:  processingError.Error(),
	}
	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dlqMessage := &sarama.ProducerMessage{
		Topic: OrderEventsDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("metadata"), Value: metadataBytes},
			{Key: []byte("original_topic"), Value: []byte(message.Topic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(message.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(message.Offset, 10))},
			{Key: []byte("failure_time"), Value: []byte(now.Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.dlq.SendMessage(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"dlq_topic":     OrderEventsDLQTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         processingError.Error(),
	}).Warn("Message sent to dead letter queue")
	return nil
}

// KafkaConsumer runs a Processor over the order topics in a consumer group.
type KafkaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	producer      sarama.SyncProducer
	processor     *Processor
	logger        *logrus.Logger
	topics        []string
}

func NewKafkaConsumer(brokers, groupID string, handler OrderEventHandler, policy RetryPolicy, observer Observer, logger *logrus.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0

	addrs := strings.Split(brokers, ",")
	consumerGroup, err := sarama.NewConsumerGroup(addrs, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(addrs, newProducerConfig())
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &KafkaConsumer{
		consumerGroup: consumerGroup,
		producer:      producer,
		processor:     NewProcessor(handler, producer, policy, observer, logger),
		logger:        logger,
		topics:        []string{OrderPlacedTopic, OrderStatusChangedTopic},
	}, nil
}

func (c *KafkaConsumer) Start(ctx context.Context) error {
	handler := &groupHandler{processor: c.processor, logger: c.logger}
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		default:
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.logger.WithError(err).Error("Error consuming from Kafka")
				return err
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	return c.consumerGroup.Close()
}

type groupHandler struct {
	processor *Processor
	logger    *logrus.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if h.processor.Process(session.Context(), message) == OutcomeInterrupted {
				return nil
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
