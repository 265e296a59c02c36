package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/util"
)

// Producer publishes queue interaction events keyed by queue id.
type Producer interface {
	PublishQueueVisited(ctx context.Context, event QueueVisitedEvent) error
	PublishQueueFavorited(ctx context.Context, event QueueFavoritedEvent) error
	PublishQueueUnfavorited(ctx context.Context, event QueueUnfavoritedEvent) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	l        logger.Logger
}

func NewProducer(producer sarama.SyncProducer, l logger.Logger) Producer {
	return &kafkaProducer{
		producer: producer,
		l:        l,
	}
}

func (p *kafkaProducer) PublishQueueVisited(ctx context.Context, event QueueVisitedEvent) error {
	event.Timestamp = stamp(event.Timestamp)
	return p.publishEvent(ctx, TopicQueueVisited, event.QueueID, event)
}

func (p *kafkaProducer) PublishQueueFavorited(ctx context.Context, event QueueFavoritedEvent) error {
	event.Timestamp = stamp(event.Timestamp)
	return p.publishEvent(ctx, TopicQueueFavorited, event.QueueID, event)
}

func (p *kafkaProducer) PublishQueueUnfavorited(ctx context.Context, event QueueUnfavoritedEvent) error {
	event.Timestamp = stamp(event.Timestamp)
	return p.publishEvent(ctx, TopicQueueUnfavorited, event.QueueID, event)
}

// stamp keeps a caller-supplied timestamp and falls back to now.
func stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

func (p *kafkaProducer) publishEvent(ctx context.Context, topic string, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		// one partition per queue keeps a queue's events ordered
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(util.TimeToISO8601Str(time.Now().UTC())),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.l.Errorf(ctx, "activity.kafkaProducer.publishEvent: topic=%s: %v", topic, err)
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.l.Debugf(ctx, "Kafka message sent: topic=%s partition=%d offset=%d key=%s", topic, partition, offset, key)

	return nil
}

func (p *kafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	p.l.Info(context.Background(), "Kafka producer closed")
	return nil
}

type nopProducer struct{}

// NewNopProducer returns a Producer that drops every event.
func NewNopProducer() Producer { return nopProducer{} }

func (nopProducer) PublishQueueVisited(context.Context, QueueVisitedEvent) error         { return nil }
func (nopProducer) PublishQueueFavorited(context.Context, QueueFavoritedEvent) error     { return nil }
func (nopProducer) PublishQueueUnfavorited(context.Context, QueueUnfavoritedEvent) error { return nil }
func (nopProducer) Close() error                                                         { return nil }
