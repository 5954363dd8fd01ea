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

var ErrReplayLimit = errors.New("exceeded maximum replay attempts")

// DLQReplayer sends dead-lettered messages back to their original topic
// after a delay, until they have failed MaxReplays times.
type DLQReplayer struct {
	consumer   sarama.ConsumerGroup
	producer   sarama.SyncProducer
	logger     *logrus.Logger
	delay      time.Duration
	maxReplays int
	now        func() time.Time
}

func NewDLQReplayer(brokers string, delay time.Duration, maxReplays int, logger *logrus.Logger) (*DLQReplayer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0

	addrs := strings.Split(brokers, ",")
	consumer, err := sarama.NewConsumerGroup(addrs, "order-events-dlq-group", config)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}
	producer, err := sarama.NewSyncProducer(addrs, newProducerConfig())
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	replayer := NewDLQReplayerFrom(producer, delay, maxReplays, logger)
	replayer.consumer = consumer
	return replayer, nil
}

func NewDLQReplayerFrom(producer sarama.SyncProducer, delay time.Duration, maxReplays int, logger *logrus.Logger) *DLQReplayer {
	return &DLQReplayer{
		producer:   producer,
		logger:     logger,
		delay:      delay,
		maxReplays: maxReplays,
		now:        time.Now,
	}
}

func (r *DLQReplayer) Run(ctx context.Context) error {
	handler := &dlqHandler{replayer: r}
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("DLQ replayer context cancelled")
			return nil
		default:
			if err := r.consumer.Consume(ctx, []string{OrderEventsDLQTopic}, handler); err != nil {
				r.logger.WithError(err).Error("Error consuming from DLQ")
				return err
			}
		}
	}
}

func metadataOf(message *sarama.ConsumerMessage) MessageMetadata {
	var metadata MessageMetadata
	for _, header := range message.Headers {
		if string(header.Key) == "metadata" {
			json.Unmarshal(header.Value, &metadata)
			break
		}
	}
	return metadata
}

// Replay republishes message on its original topic.
func (r *DLQReplayer) Replay(message *sarama.ConsumerMessage) error {
	metadata := metadataOf(message)
	if metadata.RetryCount >= r.maxReplays {
		r.logger.WithFields(logrus.Fields{
			"order_key":   string(message.Key),
			"retry_count": metadata.RetryCount,
		}).Error("Message exceeded maximum replay attempts")
		return ErrReplayLimit
	}
	if metadata.OriginalTopic == "" {
		return fmt.Errorf("DLQ message %s has no original topic", string(message.Key))
	}

	replay := &sarama.ProducerMessage{
		Topic: metadata.OriginalTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("retry_count"), Value: []byte(strconv.Itoa(metadata.RetryCount))},
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
			{Key: []byte("replay_time"), Value: []byte(r.now().Format(time.RFC3339))},
		},
	}

	partition, offset, err := r.producer.SendMessage(replay)
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"replay_topic":     metadata.OriginalTopic,
		"replay_partition": partition,
		"replay_offset":    offset,
		"order_key":        string(message.Key),
	}).Info("Message replayed from DLQ")
	return nil
}

func (r *DLQReplayer) Close() error {
	if err := r.producer.Close(); err != nil {
		r.logger.WithError(err).Error("Failed to close producer")
	}
	if r.consumer == nil {
		return nil
	}
	return r.consumer.Close()
}

type dlqHandler struct {
	replayer *DLQReplayer
}

func (h *dlqHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *dlqHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *dlqHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	logger := h.replayer.logger
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			metadata := metadataOf(message)
			logger.WithFields(logrus.Fields{
				"original_topic": metadata.OriginalTopic,
				"retry_count":    metadata.RetryCount,
				"first_failure":  metadata.FirstFailure,
				"error_message":  metadata.ErrorMessage,
				"key":            string(message.Key),
			}).Warn("DLQ message detected")

			if err := sleepContext(session.Context(), h.replayer.delay); err != nil {
				return nil
			}
			if err := h.replayer.Replay(message); err != nil {
				logger.WithError(err).Error("Failed to replay DLQ message")
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
