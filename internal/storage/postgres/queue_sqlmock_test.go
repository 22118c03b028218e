package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

func TestIdempotencyRepository_ClaimTakenKey(t *testing.T) {
	store, mock := newMockStore(t)
	keys := NewIdempotencyRepository(store)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO idempotency_keys .* ON CONFLICT \\(key\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at FROM idempotency_keys WHERE key = $1")).
		WithArgs("k-1").
		WillReturnRows(sqlmock.NewRows(keyColumns).
			AddRow("k-1", "sha-a", nil, nil, "processing", now.Add(time.Hour), now, now))

	held, err := keys.CreateProcessing(context.Background(), "k-1", "sha-b", now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	assert.Equal(t, "sha-a", held.RequestHash)
	assert.Zero(t, held.HTTPStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepository_RejectsUnknownStatus(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM idempotency_keys").
		WillReturnRows(sqlmock.NewRows(keyColumns).
			AddRow("k-1", "sha", nil, 200, "archived", now, now, now))

	_, err := NewIdempotencyRepository(store).Get(context.Background(), "k-1")
	require.ErrorContains(t, err, `unknown status "archived"`)
}

func TestIdempotencyRepository_DeleteExpiredQueries(t *testing.T) {
	before := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("limited pass deletes oldest", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM idempotency_keys WHERE key IN (SELECT key FROM idempotency_keys WHERE ttl_at <= $1 ORDER BY ttl_at LIMIT 50)")).
			WithArgs(before).
			WillReturnResult(sqlmock.NewResult(0, 50))

		n, err := NewIdempotencyRepository(store).DeleteExpired(context.Background(), before, 50)
		require.NoError(t, err)
		assert.Equal(t, 50, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlimited pass", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM idempotency_keys WHERE ttl_at <= $1")).
			WithArgs(before).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := NewIdempotencyRepository(store).DeleteExpired(context.Background(), before, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdempotencyRepository_FinishMissingKey(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE idempotency_keys SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewIdempotencyRepository(store).MarkDone(context.Background(), "gone", []byte(`{}`), 201)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestOutboxRepository_PullPendingQuery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, aggregate_type, aggregate_id, event_type, payload FROM outbox_messages WHERE status = $1 ORDER BY created_at, id LIMIT 100")).
		WithArgs(outboxPending).
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow("m-1", domain.AggregateOrder, "order-1", domain.EventOrderCreated, []byte(`{"order_id":"order-1"}`)))

	batch, err := NewOutboxRepository(store).PullPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.EventOrderCreated, batch[0].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_SettleCountsAttempt(t *testing.T) {
	store, mock := newMockStore(t)
	outbox := NewOutboxRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_messages SET status = $1, attempt_count = attempt_count + 1, updated_at = $2 WHERE id = $3")).
		WithArgs(outboxSent, sqlmock.AnyArg(), "m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox_messages SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, outbox.MarkSent(context.Background(), "m-1"))
	require.ErrorIs(t, outbox.MarkFailed(context.Background(), "m-2"), domain.ErrOutboxPublish)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimelineRepository_ListOrdersByInsertForTies(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT order_id, type, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id")).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(timelineColumns).
			AddRow("order-1", domain.TimelineOrderPlaced, "", at).
			AddRow("order-1", domain.TimelineMailQueued, "", at))

	events, err := NewTimelineRepository(store).List(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.TimelineMailQueued, events[1].Type)
}
