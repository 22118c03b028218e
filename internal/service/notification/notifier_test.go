package notification

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

type notifierEnv struct {
	notifier  *Notifier
	customers domain.CustomerRepository
	orders    domain.OrderRepository
	mails     domain.MailRepository
	timeline  domain.TimelineRepository
}

func newNotifierEnv(t *testing.T, locale string, method domain.PaymentMethod) notifierEnv {
	t.Helper()
	ctx := context.Background()
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	entry := log.NewEntry(logger)

	customers := memory.NewCustomerRepository()
	require.NoError(t, customers.Create(ctx, domain.Customer{
		ID:          "c-1",
		Email:       "ann@example.com",
		Name:        "Ann",
		Preferences: domain.Preferences{Locale: locale},
	}))

	order := domain.Order{
		ID:         "0d3c6a4e-1111-2222-3333-444455556666",
		CustomerID: "c-1",
		Status:     domain.OrderStatusPlaced,
		Items: []domain.OrderItem{{
			ID: "i-1", ProductID: "latte", ProductName: "Latte", Size: "grande",
			Options:  []domain.SelectedOption{{Code: "extra-shot", Name: "Extra shot", Quantity: 2, PriceMinor: 80}},
			Quantity: 2, UnitPriceMinor: 680, LineTotalMinor: 1360,
		}},
		Currency:         "USD",
		SubtotalMinor:    1360,
		DeliveryFeeMinor: 299,
		TotalMinor:       1659,
		DeliveryAddress:  domain.Address{Line1: "12 Bean Street", City: "Portland", PostalCode: "97201", Phone: "5035550100"},
		PaymentMethod:    method,
		PaymentStatus:    domain.PaymentStatusNotRequired,
		CreatedAt:        time.Now().UTC(),
	}
	if method == domain.PaymentMethodCard {
		order.Status = domain.OrderStatusAwaitingPayment
		order.PaymentStatus = domain.PaymentStatusPending
		order.PaymentURL = "https://pay.example.com/pay?order_id=" + order.ID
	}
	orderRepo := memory.NewOrderRepository()
	require.NoError(t, orderRepo.Create(ctx, order))

	mails := memory.NewMailRepository()
	timeline := memory.NewTimelineRepository()
	notifier, err := NewNotifier(orderRepo, customers, mails, orders.NewRecorder(nil, timeline, nil, entry),
		Config{From: "orders@coffeeshop.example", StoreName: "Bean There"}, nil, entry)
	require.NoError(t, err)
	notifier.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	return notifierEnv{notifier: notifier, customers: customers, orders: orderRepo, mails: mails, timeline: timeline}
}

func orderCreatedMessage(t *testing.T, orderID string) domain.OutboxMessage {
	t.Helper()
	msg, err := domain.OrderEvent{EventType: domain.EventOrderCreated, OrderID: orderID, CustomerID: "c-1"}.OutboxMessage()
	require.NoError(t, err)
	return msg
}

func TestPublishCreatesOneMailPerOrder(t *testing.T) {
	e := newNotifierEnv(t, "", domain.PaymentMethodCash)
	ctx := context.Background()
	orderID := "0d3c6a4e-1111-2222-3333-444455556666"

	require.NoError(t, e.notifier.Publish(ctx, orderCreatedMessage(t, orderID)))
	require.NoError(t, e.notifier.Publish(ctx, orderCreatedMessage(t, orderID)))

	mails, err := e.mails.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, mails, 1)

	mail := mails[0]
	assert.Equal(t, domain.OrderCreatedMailID(orderID), mail.ID)
	assert.Equal(t, []string{"ann@example.com"}, mail.To)
	assert.Equal(t, "orders@coffeeshop.example", mail.From)
	assert.Equal(t, "en", mail.Locale)
	assert.Equal(t, "Your Bean There order 0d3c6a4e", mail.Subject)
	assert.Contains(t, mail.Text, "Hi Ann,")
	assert.Contains(t, mail.Text, "Latte, grande, Extra shot ×2")
	assert.Contains(t, mail.Text, "16.59")
	assert.Contains(t, mail.Text, "12 Bean Street, Portland, 97201")
	assert.Contains(t, mail.HTML, "<li>")

	events, err := e.timeline.List(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TimelineMailQueued, events[0].Type)
}

func TestRussianMailForCardOrder(t *testing.T) {
	e := newNotifierEnv(t, "ru-RU", domain.PaymentMethodCard)
	ctx := context.Background()
	orderID := "0d3c6a4e-1111-2222-3333-444455556666"

	require.NoError(t, e.notifier.HandleOrderCreated(ctx, domain.OrderEvent{OrderID: orderID}))

	mail, err := e.mails.Get(ctx, domain.OrderCreatedMailID(orderID))
	require.NoError(t, err)
	assert.Equal(t, "ru", mail.Locale)
	assert.Equal(t, "Ваш заказ в Bean There: 0d3c6a4e", mail.Subject)
	assert.Contains(t, mail.Text, "Здравствуйте, Ann!")
	assert.Contains(t, mail.Text, "https://pay.example.com/pay?order_id="+orderID)
	assert.Contains(t, mail.Text, "16,59")
	assert.Contains(t, mail.HTML, "order_id="+orderID)
}

func TestPublishIgnoresOtherEvents(t *testing.T) {
	e := newNotifierEnv(t, "", domain.PaymentMethodCash)
	msg := orderCreatedMessage(t, "0d3c6a4e-1111-2222-3333-444455556666")
	msg.EventType = domain.EventOrderStatusChanged

	require.NoError(t, e.notifier.Publish(context.Background(), msg))
	mails, err := e.mails.ListByOrder(context.Background(), "0d3c6a4e-1111-2222-3333-444455556666")
	require.NoError(t, err)
	assert.Empty(t, mails)
}

func TestHandleOrderCreatedUnknownOrder(t *testing.T) {
	e := newNotifierEnv(t, "", domain.PaymentMethodCash)
	err := e.notifier.HandleOrderCreated(context.Background(), domain.OrderEvent{OrderID: "missing"})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRendererLocaleFallback(t *testing.T) {
	r, err := NewRenderer("Bean There", "ru")
	require.NoError(t, err)

	order := domain.Order{ID: "o-1", Currency: "EUR", SubtotalMinor: 500, TotalMinor: 500, PaymentMethod: domain.PaymentMethodCash}
	assert.Equal(t, "ru", r.Render(order, domain.Customer{Name: "Ann"}).Locale)
	assert.Equal(t, "ru", r.Render(order, domain.Customer{Name: "Ann", Preferences: domain.Preferences{Locale: "not a locale!"}}).Locale)
	assert.Equal(t, "en", r.Render(order, domain.Customer{Name: "Ann", Preferences: domain.Preferences{Locale: "en-GB"}}).Locale)
}
