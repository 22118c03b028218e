package domain

import (
	"errors"
	"testing"
)

func validOrder() Order {
	item := OrderItemFromCart(CartItem{ID: "i1", ProductID: "latte", Size: "large", Quantity: 2, UnitPriceMinor: 450})
	return Order{
		ID:               "o1",
		CustomerID:       "c1",
		Status:           OrderStatusPlaced,
		Items:            []OrderItem{item},
		Currency:         "USD",
		SubtotalMinor:    900,
		DeliveryFeeMinor: 200,
		TotalMinor:       1100,
		PaymentMethod:    PaymentMethodCash,
	}
}

func TestOrderValidateInvariants(t *testing.T) {
	order := validOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected valid order, got %v", errs)
	}

	tests := []struct {
		name   string
		mutate func(o *Order)
		want   error
	}{
		{name: "customer", mutate: func(o *Order) { o.CustomerID = "" }, want: ErrCustomerRequired},
		{name: "currency", mutate: func(o *Order) { o.Currency = "" }, want: ErrCurrencyRequired},
		{name: "items", mutate: func(o *Order) { o.Items = nil; o.SubtotalMinor = 0; o.TotalMinor = 200 }, want: ErrItemsRequired},
		{name: "fee", mutate: func(o *Order) { o.DeliveryFeeMinor = -1; o.TotalMinor = 899 }, want: ErrDeliveryFeeNegative},
		{name: "payment", mutate: func(o *Order) { o.PaymentMethod = "crypto" }, want: ErrPaymentMethodInvalid},
		{name: "total", mutate: func(o *Order) { o.TotalMinor = 1000 }, want: ErrAmountMismatch},
		{name: "qty", mutate: func(o *Order) { o.Items[0].Quantity = 0 }, want: ErrItemQtyInvalid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := validOrder()
			tc.mutate(&o)
			errs := o.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v in %v", tc.want, errs)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusAwaitingPayment, OrderStatusPlaced, true},
		{OrderStatusPlaced, OrderStatusPreparing, true},
		{OrderStatusPreparing, OrderStatusDelivering, true},
		{OrderStatusDelivering, OrderStatusDelivered, true},
		{OrderStatusPlaced, OrderStatusCanceled, true},
		{OrderStatusDelivered, OrderStatusCanceled, false},
		{OrderStatusDelivering, OrderStatusCanceled, false},
		{OrderStatusPlaced, OrderStatusDelivered, false},
		{OrderStatusCanceled, OrderStatusPlaced, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOrderItemFromCartCopiesOptions(t *testing.T) {
	cart := CartItem{ID: "i1", Quantity: 3, UnitPriceMinor: 100, Options: []SelectedOption{{Code: "x", Quantity: 1}}}
	item := OrderItemFromCart(cart)
	cart.Options[0].Code = "mutated"
	if item.Options[0].Code != "x" {
		t.Fatalf("order item must not share options slice with the cart")
	}
	if item.LineTotalMinor != 300 {
		t.Fatalf("line total = %d, want 300", item.LineTotalMinor)
	}
}
