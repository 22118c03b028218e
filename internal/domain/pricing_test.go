package domain

import (
	"errors"
	"testing"
)

func latte() Product {
	return Product{
		ID:       "latte",
		Name:     "Latte",
		Category: CategoryBeverage,
		Sizes: []Size{
			{Name: "small", PriceMinor: 300},
			{Name: "large", PriceMinor: 420},
		},
		Options: []Option{
			{Code: "extra-shot", Name: "Extra shot", PriceMinor: 60, MaxQuantity: 3},
			{Code: "oat-milk", Name: "Oat milk", PriceMinor: 50},
		},
		Available: true,
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name       string
		size       string
		selections []OptionSelection
		qty        int
		wantUnit   int64
		wantTotal  int64
		wantErr    error
	}{
		{name: "default size", qty: 1, wantUnit: 300, wantTotal: 300},
		{name: "size case-insensitive", size: "LARGE", qty: 2, wantUnit: 420, wantTotal: 840},
		{
			name:       "options add up",
			size:       "large",
			selections: []OptionSelection{{Code: "extra-shot", Quantity: 2}, {Code: "oat-milk", Quantity: 1}},
			qty:        3,
			wantUnit:   420 + 120 + 50,
			wantTotal:  (420 + 120 + 50) * 3,
		},
		{
			name:       "duplicate codes merge",
			selections: []OptionSelection{{Code: "extra-shot", Quantity: 1}, {Code: "extra-shot", Quantity: 1}},
			qty:        1,
			wantUnit:   420,
			wantTotal:  420,
		},
		{name: "unknown size", size: "venti", qty: 1, wantErr: ErrUnknownSize},
		{name: "unknown option", selections: []OptionSelection{{Code: "caramel", Quantity: 1}}, qty: 1, wantErr: ErrUnknownOption},
		{name: "option above max", selections: []OptionSelection{{Code: "oat-milk", Quantity: 2}}, qty: 1, wantErr: ErrOptionQuantityInvalid},
		{name: "option zero", selections: []OptionSelection{{Code: "extra-shot", Quantity: 0}}, qty: 1, wantErr: ErrOptionQuantityInvalid},
		{name: "qty zero", qty: 0, wantErr: ErrCartQuantityInvalid},
		{name: "qty too big", qty: MaxCartQuantity + 1, wantErr: ErrCartQuantityInvalid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Quote(latte(), tc.size, tc.selections, tc.qty)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.UnitPriceMinor != tc.wantUnit || q.TotalMinor != tc.wantTotal {
				t.Fatalf("got unit=%d total=%d, want unit=%d total=%d", q.UnitPriceMinor, q.TotalMinor, tc.wantUnit, tc.wantTotal)
			}
		})
	}
}

func TestQuoteDuplicateMergedDefaultSize(t *testing.T) {
	q, err := Quote(latte(), "", []OptionSelection{{Code: "extra-shot", Quantity: 1}, {Code: "extra-shot", Quantity: 1}}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Options) != 1 || q.Options[0].Quantity != 2 {
		t.Fatalf("expected merged option with quantity 2, got %+v", q.Options)
	}
	if q.Size.Name != "small" {
		t.Fatalf("expected default size small, got %s", q.Size.Name)
	}
}

func TestDeliveryPolicyFeeFor(t *testing.T) {
	tests := []struct {
		name     string
		policy   DeliveryPolicy
		subtotal int64
		want     int64
	}{
		{name: "no fee configured", policy: DeliveryPolicy{}, subtotal: 100, want: 0},
		{name: "below threshold", policy: DeliveryPolicy{FeeMinor: 250, FreeThresholdMinor: 2000}, subtotal: 1999, want: 250},
		{name: "at threshold", policy: DeliveryPolicy{FeeMinor: 250, FreeThresholdMinor: 2000}, subtotal: 2000, want: 0},
		{name: "no threshold", policy: DeliveryPolicy{FeeMinor: 250}, subtotal: 100000, want: 250},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.FeeFor(tc.subtotal); got != tc.want {
				t.Fatalf("FeeFor(%d)=%d, want %d", tc.subtotal, got, tc.want)
			}
		})
	}
}
