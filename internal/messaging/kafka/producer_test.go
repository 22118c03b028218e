package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

var sentAt = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	sync := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(sync)
	producer.now = func() time.Time { return sentAt }
	t.Cleanup(func() { _ = producer.Close() })
	return producer, sync
}

func headersOf(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func TestNewProducerConfig_Idempotent(t *testing.T) {
	cfg := NewProducerConfig()
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, clientID, cfg.ClientID)
}

func TestProducer_SendRecord(t *testing.T) {
	producer, sync := newTestProducer(t)
	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicDeadLetterQueue, msg.Topic)
		assert.Equal(t, sentAt, msg.Timestamp)
		assert.Equal(t, map[string]string{HeaderRetryCount: "3"}, headersOf(msg))
		return nil
	})

	err := producer.Send(context.Background(), Record{
		Topic:   TopicDeadLetterQueue,
		Key:     "order-1",
		Value:   []byte(`{}`),
		Headers: map[string]string{HeaderRetryCount: "3"},
	})
	require.NoError(t, err)
}

func TestProducer_SendErrors(t *testing.T) {
	t.Run("broker rejects", func(t *testing.T) {
		producer, sync := newTestProducer(t)
		sync.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

		err := producer.Send(context.Background(), Record{Topic: TopicOrderEvents, Key: "order-1"})
		require.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	})

	t.Run("canceled context", func(t *testing.T) {
		producer, _ := newTestProducer(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.ErrorIs(t, producer.Send(ctx, Record{Topic: TopicOrderEvents}), context.Canceled)
	})

	t.Run("unencodable value", func(t *testing.T) {
		producer, _ := newTestProducer(t)
		err := producer.SendJSON(context.Background(), TopicOrderEvents, "k", make(chan int), nil)
		require.ErrorContains(t, err, "encode record")
	})
}

func TestOrderEventPublisher_Publish(t *testing.T) {
	producer, sync := newTestProducer(t)
	publisher := NewOrderEventPublisher(producer, "")
	publisher.now = func() time.Time { return sentAt }

	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicOrderEvents, msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "order-42", string(key), "events of one order share a partition")
		assert.Equal(t, domain.EventOrderCreated, headersOf(msg)[HeaderEventType])

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var envelope Envelope
		require.NoError(t, json.Unmarshal(value, &envelope))
		assert.Equal(t, "outbox-7", envelope.ID)
		assert.Equal(t, sentAt, envelope.PublishedAt)
		assert.JSONEq(t, `{"order_id":"order-42","total_minor":540}`, string(envelope.Payload))
		return nil
	})

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-7",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-42",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-42","total_minor":540}`),
	})
	require.NoError(t, err)
}

func TestOrderEventPublisher_NotReady(t *testing.T) {
	var publisher *OrderEventPublisher
	require.ErrorIs(t, publisher.Publish(context.Background(), domain.OutboxMessage{}), errPublisherNotReady)
	require.ErrorIs(t, NewOrderEventPublisher(nil, "t").Publish(context.Background(), domain.OutboxMessage{}), errPublisherNotReady)
}
