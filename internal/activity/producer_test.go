package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

func TestPublishQueueVisited(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicQueueVisited {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "Q1" {
			return errors.New("message not keyed by queue id")
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != "timestamp" {
			return errors.New("missing timestamp header")
		}
		return nil
	})

	p := NewProducer(mock, logger.InitializeTestZapLogger())
	require.NoError(t, p.PublishQueueVisited(context.Background(), QueueVisitedEvent{
		QueueID:     "Q1",
		QueueName:   "Pharmacy",
		SourceCode:  "kiosk-3",
		WaitMinutes: 4,
	}))
	require.NoError(t, p.Close())
}

func TestPublishPayloads(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev QueueFavoritedEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.QueueID != "Q1" || !ev.Notifications || ev.Timestamp.IsZero() {
			return errors.New("unexpected favorited payload")
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducer(mock, logger.InitializeTestZapLogger())
	ctx := context.Background()

	require.NoError(t, p.PublishQueueFavorited(ctx, QueueFavoritedEvent{QueueID: "Q1", Notifications: true}))

	err := p.PublishQueueUnfavorited(ctx, QueueUnfavoritedEvent{QueueID: "Q1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, p.Close())
}

func TestPublishKeepsCallerTimestamp(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	visitedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev QueueVisitedEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if !ev.Timestamp.Equal(visitedAt) {
			return errors.New("timestamp overwritten: " + ev.Timestamp.String())
		}
		return nil
	})

	p := NewProducer(mock, logger.InitializeTestZapLogger())
	require.NoError(t, p.PublishQueueVisited(context.Background(), QueueVisitedEvent{
		QueueID:   "Q1",
		VisitedAt: visitedAt,
		Timestamp: visitedAt,
	}))
	require.NoError(t, p.Close())
}

func TestNopProducer(t *testing.T) {
	p := NewNopProducer()
	ctx := context.Background()
	assert.NoError(t, p.PublishQueueVisited(ctx, QueueVisitedEvent{}))
	assert.NoError(t, p.PublishQueueFavorited(ctx, QueueFavoritedEvent{}))
	assert.NoError(t, p.PublishQueueUnfavorited(ctx, QueueUnfavoritedEvent{}))
	assert.NoError(t, p.Close())
}
