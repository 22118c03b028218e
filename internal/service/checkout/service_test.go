package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/payment"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

var homeAddress = domain.Address{
	Line1:      "12 Bean Street",
	City:       "Portland",
	PostalCode: "97201",
	Phone:      "+1 503 555 0100",
}

type checkoutEnv struct {
	svc       *Service
	customers domain.CustomerRepository
	products  domain.ProductRepository
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	outbox    *memory.OutboxRepository
	gateway   *payment.MockGateway
}

func newCheckoutEnv(t *testing.T, cart ...domain.CartItem) checkoutEnv {
	t.Helper()
	ctx := context.Background()
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	entry := log.NewEntry(logger)

	products := memory.NewProductRepository()
	require.NoError(t, products.Upsert(ctx, domain.Product{
		ID:        "latte",
		Name:      "Latte",
		Category:  domain.CategoryBeverage,
		Sizes:     []domain.Size{{Name: "tall", PriceMinor: 450}, {Name: "grande", PriceMinor: 520}},
		Options:   []domain.Option{{Code: "extra-shot", Name: "Extra shot", PriceMinor: 80, MaxQuantity: 3}},
		Available: true,
	}))
	require.NoError(t, products.Upsert(ctx, domain.Product{
		ID:        "croissant",
		Name:      "Croissant",
		Category:  domain.CategoryFood,
		Sizes:     []domain.Size{{Name: "regular", PriceMinor: 350}},
		Available: false,
	}))

	customers := memory.NewCustomerRepository()
	require.NoError(t, customers.Create(ctx, domain.Customer{
		ID:        "c-1",
		Email:     "ann@example.com",
		Name:      "Ann",
		Phone:     "+1 503 555 0100",
		Addresses: []domain.Address{homeAddress},
		Cart:      cart,
	}))

	orderRepo := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()
	gateway := payment.NewMockGateway()

	svc := NewService(customers, products, orderRepo, gateway,
		orders.NewRecorder(outbox, timeline, nil, entry),
		Config{Currency: "USD", Delivery: domain.DeliveryPolicy{FeeMinor: 299, FreeThresholdMinor: 2500}},
		nil, entry)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	ids := 0
	svc.newID = func() string {
		ids++
		return "o-" + string(rune('0'+ids))
	}

	return checkoutEnv{
		svc: svc, customers: customers, products: products, orders: orderRepo,
		timeline: timeline, outbox: outbox, gateway: gateway,
	}
}

func latteLine(id string, qty int) domain.CartItem {
	return domain.CartItem{
		ID:             id,
		ProductID:      "latte",
		ProductName:    "Latte",
		Size:           "grande",
		Options:        []domain.SelectedOption{{Code: "extra-shot", Name: "Extra shot", Quantity: 1, PriceMinor: 80}},
		Quantity:       qty,
		UnitPriceMinor: 600,
	}
}

func TestPlaceOrderCash(t *testing.T) {
	e := newCheckoutEnv(t, latteLine("line-1", 2))
	ctx := context.Background()

	order, err := e.svc.PlaceOrder(ctx, "c-1", Request{
		Address:       homeAddress,
		PaymentMethod: domain.PaymentMethodCash,
		Note:          "  ring twice ",
	})
	require.NoError(t, err)

	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)
	assert.Equal(t, domain.PaymentStatusNotRequired, order.PaymentStatus)
	assert.Empty(t, order.PaymentURL)
	assert.Equal(t, "ring twice", order.Note)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "line-1", order.Items[0].ID)
	assert.Equal(t, int64(1200), order.SubtotalMinor)
	assert.Equal(t, int64(299), order.DeliveryFeeMinor)
	assert.Equal(t, int64(1499), order.TotalMinor)
	assert.Zero(t, e.gateway.Calls)

	stored, err := e.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalMinor, stored.TotalMinor)

	customer, err := e.customers.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, customer.Cart)

	events, err := e.timeline.List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TimelineOrderPlaced, events[0].Type)

	pending := e.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderCreated, pending[0].EventType)
	event, err := domain.DecodeOrderEvent(pending[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, "c-1", event.CustomerID)
}

func TestPlaceOrderCardUsesGateway(t *testing.T) {
	e := newCheckoutEnv(t, latteLine("line-1", 5))

	order, err := e.svc.PlaceOrder(context.Background(), "c-1", Request{PaymentMethod: domain.PaymentMethodCard})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusAwaitingPayment, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Contains(t, order.PaymentURL, "order_id=o-1")
	assert.Equal(t, homeAddress, order.DeliveryAddress)
	assert.Zero(t, order.DeliveryFeeMinor)
	assert.Equal(t, int64(3000), order.TotalMinor)
	assert.Equal(t, 1, e.gateway.Calls)
}

func TestPlaceOrderFallsBackToProfileDefaults(t *testing.T) {
	e := newCheckoutEnv(t, latteLine("line-1", 1))
	ctx := context.Background()

	office := domain.Address{
		Label:      "office",
		Line1:      "400 Roast Avenue",
		City:       "Portland",
		PostalCode: "97204",
		Phone:      "+1 503 555 0101",
	}
	customer, err := e.customers.Get(ctx, "c-1")
	require.NoError(t, err)
	customer.Addresses = append(customer.Addresses, office)
	customer.Preferences.DefaultAddressIndex = 1
	customer.Preferences.DefaultPaymentMethod = domain.PaymentMethodCard
	require.NoError(t, e.customers.Save(ctx, customer))

	order, err := e.svc.PlaceOrder(ctx, "c-1", Request{})
	require.NoError(t, err)

	assert.Equal(t, office, order.DeliveryAddress)
	assert.Equal(t, domain.PaymentMethodCard, order.PaymentMethod)
	assert.Equal(t, domain.OrderStatusAwaitingPayment, order.Status)
	assert.Equal(t, 1, e.gateway.Calls)
}

func TestPlaceOrderExplicitFormWinsOverDefaults(t *testing.T) {
	e := newCheckoutEnv(t, latteLine("line-1", 1))
	ctx := context.Background()

	customer, err := e.customers.Get(ctx, "c-1")
	require.NoError(t, err)
	customer.Preferences.DefaultPaymentMethod = domain.PaymentMethodCard
	require.NoError(t, e.customers.Save(ctx, customer))

	pickup := homeAddress
	pickup.Line1 = "7 Kiosk Lane"
	order, err := e.svc.PlaceOrder(ctx, "c-1", Request{Address: pickup, PaymentMethod: domain.PaymentMethodCash})
	require.NoError(t, err)

	assert.Equal(t, "7 Kiosk Lane", order.DeliveryAddress.Line1)
	assert.Equal(t, domain.PaymentMethodCash, order.PaymentMethod)
	assert.Zero(t, e.gateway.Calls)
}

func TestPlaceOrderCardWithNothingToPay(t *testing.T) {
	e := newCheckoutEnv(t, domain.CartItem{
		ID: "line-1", ProductID: "water", ProductName: "Water", Size: "regular", Quantity: 1,
	})
	ctx := context.Background()
	require.NoError(t, e.products.Upsert(ctx, domain.Product{
		ID:        "water",
		Name:      "Water",
		Category:  domain.CategoryBeverage,
		Sizes:     []domain.Size{{Name: "regular", PriceMinor: 0}},
		Available: true,
	}))
	e.svc.cfg.Delivery = domain.DeliveryPolicy{}

	order, err := e.svc.PlaceOrder(ctx, "c-1", Request{PaymentMethod: domain.PaymentMethodCard})
	require.NoError(t, err)

	assert.Zero(t, order.TotalMinor)
	assert.Equal(t, domain.PaymentMethodCard, order.PaymentMethod)
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)
	assert.Equal(t, domain.PaymentStatusNotRequired, order.PaymentStatus)
	assert.Empty(t, order.PaymentURL)
	assert.Zero(t, e.gateway.Calls)
}

func TestPlaceOrderRepricesAgainstCatalog(t *testing.T) {
	stale := latteLine("line-1", 1)
	stale.UnitPriceMinor = 100
	e := newCheckoutEnv(t, stale)

	order, err := e.svc.PlaceOrder(context.Background(), "c-1", Request{PaymentMethod: domain.PaymentMethodCash})
	require.NoError(t, err)
	assert.Equal(t, int64(600), order.Items[0].UnitPriceMinor)
	assert.Equal(t, int64(600), order.SubtotalMinor)
}

func TestPlaceOrderErrors(t *testing.T) {
	croissant := domain.CartItem{ID: "line-2", ProductID: "croissant", ProductName: "Croissant", Size: "regular", Quantity: 1, UnitPriceMinor: 350}
	gone := domain.CartItem{ID: "line-3", ProductID: "scone", ProductName: "Blueberry scone", Size: "regular", Quantity: 1, UnitPriceMinor: 300}

	tests := []struct {
		name     string
		cart     []domain.CartItem
		req      Request
		want     error
		contains string
	}{
		{name: "empty cart", req: Request{PaymentMethod: domain.PaymentMethodCash}, want: domain.ErrCartEmpty},
		{
			name: "bad address",
			cart: []domain.CartItem{latteLine("line-1", 1)},
			req:  Request{Address: domain.Address{Line1: "12 Bean Street", City: "P"}, PaymentMethod: domain.PaymentMethodCash},
			want: domain.ErrValidation, contains: "address.city",
		},
		{
			name: "missing payment method",
			cart: []domain.CartItem{latteLine("line-1", 1)},
			want: domain.ErrValidation, contains: "payment_method",
		},
		{
			name: "unavailable product",
			cart: []domain.CartItem{latteLine("line-1", 1), croissant},
			req:  Request{PaymentMethod: domain.PaymentMethodCash},
			want: domain.ErrProductUnavailable, contains: "Croissant",
		},
		{
			name: "removed product",
			cart: []domain.CartItem{gone},
			req:  Request{PaymentMethod: domain.PaymentMethodCash},
			want: domain.ErrProductUnavailable, contains: "Blueberry scone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCheckoutEnv(t, tt.cart...)
			_, err := e.svc.PlaceOrder(context.Background(), "c-1", tt.req)
			require.ErrorIs(t, err, tt.want)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}

			orders, listErr := e.orders.ListByCustomer(context.Background(), "c-1", 0)
			require.NoError(t, listErr)
			assert.Empty(t, orders)
			customer, getErr := e.customers.Get(context.Background(), "c-1")
			require.NoError(t, getErr)
			assert.Len(t, customer.Cart, len(tt.cart))
		})
	}
}

func TestPlaceOrderGatewayFailure(t *testing.T) {
	e := newCheckoutEnv(t, latteLine("line-1", 1))
	e.gateway.Err = errors.New("gateway unavailable")

	_, err := e.svc.PlaceOrder(context.Background(), "c-1", Request{PaymentMethod: domain.PaymentMethodCard})
	require.Error(t, err)

	orders, err := e.orders.ListByCustomer(context.Background(), "c-1", 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, e.outbox.AllPending())
}

// cartRacer добавляет в корзину новую позицию прямо перед первым сохранением,
// имитируя параллельное изменение корзины с другого устройства.
type cartRacer struct {
	domain.CustomerRepository
	raced bool
}

func (r *cartRacer) Save(ctx context.Context, customer domain.Customer) error {
	if !r.raced {
		r.raced = true
		current, err := r.CustomerRepository.Get(ctx, customer.ID)
		if err != nil {
			return err
		}
		current.Cart = append(current.Cart, latteLine("line-new", 1))
		if err := r.CustomerRepository.Save(ctx, current); err != nil {
			return err
		}
	}
	return r.CustomerRepository.Save(ctx, customer)
}

func TestPlaceOrderKeepsLinesAddedDuringCheckout(t *testing.T) {
	e := newCheckoutEnv(t, latteLine("line-1", 1))
	racer := &cartRacer{CustomerRepository: e.customers}
	e.svc.customers = racer

	_, err := e.svc.PlaceOrder(context.Background(), "c-1", Request{PaymentMethod: domain.PaymentMethodCash})
	require.NoError(t, err)

	customer, err := e.customers.Get(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, customer.Cart, 1)
	assert.Equal(t, "line-new", customer.Cart[0].ID)
}
