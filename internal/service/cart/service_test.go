package cart

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

// racingCustomers отдаёт ErrVersionConflict на первые conflicts сохранений.
type racingCustomers struct {
	domain.CustomerRepository
	conflicts int
	saves     int
}

func (r *racingCustomers) Save(ctx context.Context, customer domain.Customer) error {
	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrVersionConflict
	}
	return r.CustomerRepository.Save(ctx, customer)
}

type fixture struct {
	svc       *Service
	customers *racingCustomers
	products  domain.ProductRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	customers := &racingCustomers{CustomerRepository: memory.NewCustomerRepository()}
	require.NoError(t, customers.Create(ctx, domain.Customer{ID: "c-1", Email: "ann@example.com", Name: "Ann"}))

	products := memory.NewProductRepository()
	require.NoError(t, products.Upsert(ctx, domain.Product{
		ID:       "latte",
		Name:     "Latte",
		Category: domain.CategoryBeverage,
		Sizes:    []domain.Size{{Name: "tall", PriceMinor: 450}, {Name: "grande", PriceMinor: 520}},
		Options: []domain.Option{
			{Code: "extra-shot", Name: "Extra shot", PriceMinor: 80, MaxQuantity: 3},
			{Code: "oat-milk", Name: "Oat milk", PriceMinor: 60, MaxQuantity: 1},
		},
		Available: true,
	}))
	require.NoError(t, products.Upsert(ctx, domain.Product{
		ID:        "seasonal",
		Name:      "Pumpkin spice latte",
		Category:  domain.CategoryBeverage,
		Sizes:     []domain.Size{{Name: "tall", PriceMinor: 600}},
		Available: false,
	}))

	svc := NewService(customers, products, Config{
		Currency: "USD",
		Delivery: domain.DeliveryPolicy{FeeMinor: 299, FreeThresholdMinor: 2500},
	}, nil, log.NewEntry(logger))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	return fixture{svc: svc, customers: customers, products: products}
}

func TestAddItemPricesOnServer(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.AddItem(context.Background(), "c-1", AddItemInput{
		ProductID: "latte",
		Size:      "Grande",
		Options:   []domain.OptionSelection{{Code: "extra-shot", Quantity: 2}, {Code: "oat-milk", Quantity: 1}},
		Quantity:  2,
	})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)

	line := summary.Items[0]
	assert.Equal(t, "grande", line.Size)
	assert.Equal(t, int64(520+160+60), line.UnitPriceMinor)
	assert.Equal(t, int64(2*(520+160+60)), summary.SubtotalMinor)
	assert.Equal(t, int64(299), summary.DeliveryFeeMinor)
	assert.Equal(t, summary.SubtotalMinor+299, summary.TotalMinor)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, "USD", summary.Currency)
}

func TestAddItemMergesIdenticalCustomization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := AddItemInput{ProductID: "latte", Options: []domain.OptionSelection{{Code: "oat-milk", Quantity: 1}}, Quantity: 1}
	_, err := f.svc.AddItem(ctx, "c-1", in)
	require.NoError(t, err)
	summary, err := f.svc.AddItem(ctx, "c-1", in)
	require.NoError(t, err)

	require.Len(t, summary.Items, 1)
	assert.Equal(t, 2, summary.Items[0].Quantity)

	in.Note = "extra hot"
	summary, err = f.svc.AddItem(ctx, "c-1", in)
	require.NoError(t, err)
	assert.Len(t, summary.Items, 2)
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   AddItemInput
		want error
	}{
		{name: "unavailable", in: AddItemInput{ProductID: "seasonal", Quantity: 1}, want: domain.ErrProductUnavailable},
		{name: "unknown product", in: AddItemInput{ProductID: "mocha", Quantity: 1}, want: domain.ErrProductNotFound},
		{name: "unknown size", in: AddItemInput{ProductID: "latte", Size: "venti", Quantity: 1}, want: domain.ErrUnknownSize},
		{name: "too many shots", in: AddItemInput{ProductID: "latte", Quantity: 1, Options: []domain.OptionSelection{{Code: "extra-shot", Quantity: 4}}}, want: domain.ErrOptionQuantityInvalid},
		{name: "quantity", in: AddItemInput{ProductID: "latte", Quantity: 21}, want: domain.ErrCartQuantityInvalid},
		{name: "missing product", in: AddItemInput{Quantity: 1}, want: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItem(ctx, "c-1", tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAddItemMergeRespectsQuantityLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Quantity: 15})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Quantity: 6})
	require.ErrorIs(t, err, domain.ErrCartQuantityInvalid)
}

func TestUpdateItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Quantity: 1})
	require.NoError(t, err)
	itemID := summary.Items[0].ID

	size := "grande"
	qty := 3
	summary, err = f.svc.UpdateItem(ctx, "c-1", itemID, UpdateItemInput{Size: &size, Quantity: &qty})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, itemID, summary.Items[0].ID)
	assert.Equal(t, int64(3*520), summary.SubtotalMinor)
	assert.Equal(t, int64(299), summary.DeliveryFeeMinor)

	zero := 0
	summary, err = f.svc.UpdateItem(ctx, "c-1", itemID, UpdateItemInput{Quantity: &zero})
	require.NoError(t, err)
	assert.Empty(t, summary.Items)
	assert.Zero(t, summary.DeliveryFeeMinor)

	_, err = f.svc.UpdateItem(ctx, "c-1", "missing", UpdateItemInput{Quantity: &qty})
	require.ErrorIs(t, err, domain.ErrCartItemNotFound)
}

func TestUpdateItemMergesIntoMatchingLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Size: "grande", Quantity: 1})
	require.NoError(t, err)
	summary, err := f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Size: "tall", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)

	size := "grande"
	summary, err = f.svc.UpdateItem(ctx, "c-1", summary.Items[1].ID, UpdateItemInput{Size: &size})
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, 3, summary.Items[0].Quantity)
}

func TestFreeDeliveryThreshold(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.AddItem(context.Background(), "c-1", AddItemInput{ProductID: "latte", Size: "grande", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(2600), summary.SubtotalMinor)
	assert.Zero(t, summary.DeliveryFeeMinor)
	assert.Equal(t, int64(2600), summary.TotalMinor)
}

func TestMutationRetriesOnceOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.customers.conflicts = 1
	summary, err := f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, summary.Items, 1)
	assert.Equal(t, 2, f.customers.saves)

	f.customers.saves = 0
	f.customers.conflicts = 2
	_, err = f.svc.Clear(ctx, "c-1")
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, 2, f.customers.saves)
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "c-1", AddItemInput{ProductID: "latte", Size: "grande", Quantity: 1})
	require.NoError(t, err)

	summary, err = f.svc.RemoveItem(ctx, "c-1", summary.Items[0].ID)
	require.NoError(t, err)
	assert.Len(t, summary.Items, 1)

	summary, err = f.svc.Clear(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, summary.Items)

	stored, err := f.svc.GetCart(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Items)
	assert.NotNil(t, stored.Items)
}
