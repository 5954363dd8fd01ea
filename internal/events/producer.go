package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
	now      func() time.Time
}

func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

// NewKafkaProducer connects to a comma separated broker list.
func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), newProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaProducerFrom(producer, logger), nil
}

func NewKafkaProducerFrom(producer sarama.SyncProducer, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{producer: producer, logger: logger, now: time.Now}
}

func (p *KafkaProducer) PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error {
	event.EventTime = p.now()
	return p.publish(ctx, OrderPlacedTopic, event.OrderID, event)
}

func (p *KafkaProducer) PublishOrderStatusChanged(ctx context.Context, event OrderStatusChangedEvent) error {
	event.EventTime = p.now()
	return p.publish(ctx, OrderStatusChangedTopic, event.OrderID, event)
}

func (p *KafkaProducer) publish(ctx context.Context, topic, key string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to send message to Kafka")
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  key,
	}).Info("Event published to Kafka")
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
