package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// Запись, которую оформление оставляет рядом с заказом: событие в outbox,
// строка timeline и ключ идемпотентности запроса.
func TestCheckoutSideEffects_Postgres(t *testing.T) {
	store := freshTestDB(t)
	ctx := context.Background()

	placedAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := latteOrder("order-pg-1", "cust-pg-1", placedAt)
	require.NoError(t, NewOrderRepository(store).Create(ctx, order))

	keys := NewIdempotencyRepository(store)
	scope := "cust-pg-1:checkout:k-1"
	_, err := keys.CreateProcessing(ctx, scope, "sha-cart", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	msg, err := domain.NewOrderEvent(domain.EventOrderCreated, order, "", placedAt).OutboxMessage()
	require.NoError(t, err)
	outbox := NewOutboxRepository(store)
	queued, err := outbox.Enqueue(ctx, msg)
	require.NoError(t, err)
	require.NotEmpty(t, queued.ID)

	timeline := NewTimelineRepository(store)
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineOrderPlaced, Occurred: placedAt}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineMailQueued, Occurred: placedAt}))

	require.NoError(t, keys.MarkDone(ctx, scope, []byte(`{"id":"order-pg-1"}`), 201))

	t.Run("idempotent replay", func(t *testing.T) {
		rec, err := keys.Get(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, domain.IdempotencyStatusDone, rec.Status)
		assert.Equal(t, 201, rec.HTTPStatus)
		assert.JSONEq(t, `{"id":"order-pg-1"}`, string(rec.ResponseBody))

		_, err = keys.CreateProcessing(ctx, scope, "sha-other-cart", time.Now().UTC().Add(time.Hour))
		assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	})

	t.Run("outbox backlog", func(t *testing.T) {
		stats, err := outbox.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.PendingCount)
		assert.False(t, stats.OldestPendingAt.IsZero())

		pending, err := outbox.PullPending(ctx, 0)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		event, err := domain.DecodeOrderEvent(pending[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, order.ID, event.OrderID)

		require.NoError(t, outbox.MarkSent(ctx, queued.ID))
		stats, err = outbox.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.PendingCount)
		assert.ErrorIs(t, outbox.MarkFailed(ctx, "no-such-message"), domain.ErrOutboxPublish)
	})

	t.Run("timeline keeps insert order for equal timestamps", func(t *testing.T) {
		events, err := timeline.List(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.TimelineOrderPlaced, events[0].Type)
		assert.Equal(t, domain.TimelineMailQueued, events[1].Type)
	})

	t.Run("timeline rejects unknown order", func(t *testing.T) {
		err := timeline.Append(ctx, domain.TimelineEvent{OrderID: "missing", Type: domain.TimelineOrderPlaced})
		require.Error(t, err)
		events, err := timeline.List(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestIdempotencyKeys_PostgresExpiry(t *testing.T) {
	store := freshTestDB(t)
	ctx := context.Background()
	keys := NewIdempotencyRepository(store)
	now := time.Now().UTC()

	for i, age := range []time.Duration{5 * time.Minute, 4 * time.Minute, 3 * time.Minute} {
		_, err := keys.CreateProcessing(ctx, "expired-"+string(rune('a'+i)), "sha", now.Add(-age))
		require.NoError(t, err)
	}
	_, err := keys.CreateProcessing(ctx, "live", "sha", now.Add(time.Hour))
	require.NoError(t, err)

	// просроченный ключ занимается заново до уборки
	reclaimed, err := keys.CreateProcessing(ctx, "expired-c", "sha-new", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "sha-new", reclaimed.RequestHash)

	removed, err := keys.DeleteExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = keys.Get(ctx, "expired-a")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound, "the oldest key goes first")

	removed, err = keys.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for _, key := range []string{"live", "expired-c"} {
		_, err := keys.Get(ctx, key)
		assert.NoError(t, err, key)
	}
}
