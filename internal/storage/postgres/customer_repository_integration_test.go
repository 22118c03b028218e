package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

func TestCustomerRepository_PostgresCartRoundTrip(t *testing.T) {
	store := freshTestDB(t)
	ctx := context.Background()
	repo := NewCustomerRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	customer := domain.Customer{
		ID:           "customer-pg-1",
		Email:        "Ann@Example.com",
		Name:         "Ann",
		Phone:        "+12065550100",
		PasswordHash: "hash",
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Create(ctx, customer))

	dup := customer
	dup.ID = "customer-pg-2"
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrEmailTaken)

	stored, err := repo.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, customer.ID, stored.ID)

	stored.Cart = []domain.CartItem{{ID: "line-1", ProductID: "latte", Size: "large", Quantity: 2, UnitPriceMinor: 450}}
	stored.Preferences.LastPayment = &domain.PaymentResult{OrderID: "o1", Status: domain.PaymentLinkSuccess}
	require.NoError(t, repo.Save(ctx, stored))
	require.ErrorIs(t, repo.Save(ctx, stored), domain.ErrVersionConflict)

	reloaded, err := repo.Get(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Cart, 1)
	require.Equal(t, int64(1), reloaded.Version)
	require.NotNil(t, reloaded.Preferences.LastPayment)
	require.Equal(t, domain.PaymentLinkSuccess, reloaded.Preferences.LastPayment.Status)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestProductAndMailRepository_Postgres(t *testing.T) {
	store := freshTestDB(t)
	ctx := context.Background()
	products := NewProductRepository(store)
	mails := NewMailRepository(store)

	require.NoError(t, products.UpsertSubCategory(ctx, domain.SubCategory{ID: "hot-coffee", Category: domain.CategoryBeverage, Name: "Hot coffee", SortOrder: 1}))
	require.NoError(t, products.Upsert(ctx, domain.Product{
		ID: "latte", Name: "Latte", Description: "Espresso with steamed milk", Category: domain.CategoryBeverage,
		SubCategoryID: "hot-coffee", Sizes: []domain.Size{{Name: "small", PriceMinor: 300}}, Available: true,
	}))

	listed, err := products.List(ctx, domain.ProductFilter{Query: "steamed", OnlyAvailable: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "small", listed[0].Sizes[0].Name)

	mail := domain.Mail{
		ID: domain.OrderCreatedMailID("o1"), OrderID: "o1", CustomerID: "c1", From: "shop@example.com",
		To: []string{"ann@example.com"}, Subject: "s", Text: "t", HTML: "<p>t</p>", Locale: "en", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, mails.Create(ctx, mail))
	require.ErrorIs(t, mails.Create(ctx, mail), domain.ErrMailAlreadyExists)

	byOrder, err := mails.ListByOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	require.Equal(t, []string{"ann@example.com"}, byOrder[0].To)
}
