package orders

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

type env struct {
	svc      *Service
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   *memory.OutboxRepository
}

func newEnv(t *testing.T) env {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	entry := log.NewEntry(logger)

	orders := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()
	svc := NewService(orders, timeline, NewRecorder(outbox, timeline, nil, entry), nil, entry)
	return env{svc: svc, orders: orders, timeline: timeline, outbox: outbox}
}

func seedOrder(t *testing.T, repo domain.OrderRepository, id, customerID string, status domain.OrderStatus, createdAt time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), domain.Order{
		ID:         id,
		CustomerID: customerID,
		Status:     status,
		Items: []domain.OrderItem{{
			ID: "i-1", ProductID: "latte", ProductName: "Latte", Size: "tall",
			Quantity: 1, UnitPriceMinor: 450, LineTotalMinor: 450,
		}},
		Currency:      "USD",
		SubtotalMinor: 450,
		TotalMinor:    450,
		PaymentMethod: domain.PaymentMethodCash,
		PaymentStatus: domain.PaymentStatusNotRequired,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}))
}

func TestListOrdersNewestFirst(t *testing.T) {
	e := newEnv(t)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	seedOrder(t, e.orders, "o-1", "c-1", domain.OrderStatusDelivered, base)
	seedOrder(t, e.orders, "o-2", "c-1", domain.OrderStatusPlaced, base.Add(time.Hour))
	seedOrder(t, e.orders, "o-3", "c-2", domain.OrderStatusPlaced, base.Add(2*time.Hour))

	orders, err := e.svc.ListOrders(context.Background(), "c-1", 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o-2", orders[0].ID)
	assert.Equal(t, "o-1", orders[1].ID)

	orders, err = e.svc.ListOrders(context.Background(), "c-1", 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, err = e.svc.ListOrders(context.Background(), " ", 10)
	require.ErrorIs(t, err, domain.ErrCustomerRequired)
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	e := newEnv(t)
	seedOrder(t, e.orders, "o-1", "c-1", domain.OrderStatusPlaced, time.Now())

	order, err := e.svc.GetOrder(context.Background(), "c-1", "o-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.ID)

	_, err = e.svc.GetOrder(context.Background(), "c-2", "o-1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = e.svc.Timeline(context.Background(), "c-2", "o-1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateStatusFollowsTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedOrder(t, e.orders, "o-1", "c-1", domain.OrderStatusPlaced, time.Now())

	order, err := e.svc.UpdateStatus(ctx, "o-1", domain.OrderStatusPreparing, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPreparing, order.Status)
	assert.Equal(t, int64(1), order.Version)

	_, err = e.svc.UpdateStatus(ctx, "o-1", domain.OrderStatusDelivered, "")
	require.ErrorIs(t, err, domain.ErrOrderStatusTransition)

	_, err = e.svc.UpdateStatus(ctx, "o-1", domain.OrderStatus("lost"), "")
	require.ErrorIs(t, err, domain.ErrValidation)

	order, err = e.svc.UpdateStatus(ctx, "o-1", domain.OrderStatusDelivering, "courier Bob")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivering, order.Status)

	events, err := e.svc.Timeline(ctx, "c-1", "o-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.TimelineStatusChanged, events[1].Type)
	assert.Equal(t, "delivering: courier Bob", events[1].Reason)

	pending := e.outbox.AllPending()
	require.Len(t, pending, 2)
	event, err := domain.DecodeOrderEvent(pending[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOrderStatusChanged, event.EventType)
	assert.Equal(t, domain.OrderStatusDelivering, event.Status)
}

func TestUpdateStatusLeavesPaymentConfirmationToDeepLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedOrder(t, e.orders, "o-1", "c-1", domain.OrderStatusAwaitingPayment, time.Now())

	for _, next := range []domain.OrderStatus{domain.OrderStatusPlaced, domain.OrderStatusPreparing} {
		_, err := e.svc.UpdateStatus(ctx, "o-1", next, "")
		require.ErrorIs(t, err, domain.ErrOrderStatusTransition, next)
	}
	stored, err := e.orders.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusAwaitingPayment, stored.Status)

	order, err := e.svc.UpdateStatus(ctx, "o-1", domain.OrderStatusCanceled, "payment never arrived")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, order.Status)
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	e := newEnv(t)
	seedOrder(t, e.orders, "o-1", "c-1", domain.OrderStatusPlaced, time.Now())

	order, err := e.svc.UpdateStatus(context.Background(), "o-1", domain.OrderStatusPlaced, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), order.Version)
	assert.Empty(t, e.outbox.AllPending())
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		want   error
	}{
		{name: "placed", status: domain.OrderStatusPlaced},
		{name: "awaiting payment", status: domain.OrderStatusAwaitingPayment},
		{name: "already canceled", status: domain.OrderStatusCanceled},
		{name: "preparing", status: domain.OrderStatusPreparing, want: domain.ErrOrderNotCancelable},
		{name: "delivered", status: domain.OrderStatusDelivered, want: domain.ErrOrderNotCancelable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			seedOrder(t, e.orders, "o-1", "c-1", tt.status, time.Now())

			order, err := e.svc.Cancel(context.Background(), "c-1", "o-1", "changed my mind")
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusCanceled, order.Status)
		})
	}
}

func TestCancelForeignOrder(t *testing.T) {
	e := newEnv(t)
	seedOrder(t, e.orders, "o-1", "c-1", domain.OrderStatusPlaced, time.Now())

	_, err := e.svc.Cancel(context.Background(), "c-2", "o-1", "")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	stored, err := e.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, stored.Status)
}
