package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

func TestProductRepository_ListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()

	subs := []domain.SubCategory{
		{ID: "bakery", Category: domain.CategoryFood, Name: "Bakery", SortOrder: 2},
		{ID: "hot-coffee", Category: domain.CategoryBeverage, Name: "Hot coffee", SortOrder: 1},
	}
	for _, sub := range subs {
		if err := repo.UpsertSubCategory(ctx, sub); err != nil {
			t.Fatalf("upsert subcategory failed: %v", err)
		}
	}

	products := []domain.Product{
		{ID: "croissant", Name: "Croissant", Category: domain.CategoryFood, SubCategoryID: "bakery", Available: true},
		{ID: "latte", Name: "Latte", Category: domain.CategoryBeverage, SubCategoryID: "hot-coffee", Available: true},
		{ID: "americano", Name: "Americano", Category: domain.CategoryBeverage, SubCategoryID: "hot-coffee", Available: false},
	}
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	all, err := repo.List(ctx, domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	got := []string{all[0].ID, all[1].ID, all[2].ID}
	want := []string{"americano", "latte", "croissant"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}

	available, _ := repo.List(ctx, domain.ProductFilter{OnlyAvailable: true, Category: domain.CategoryBeverage})
	if len(available) != 1 || available[0].ID != "latte" {
		t.Fatalf("unexpected filtered list %+v", available)
	}

	listed, _ := repo.ListSubCategories(ctx)
	if len(listed) != 2 || listed[0].ID != "hot-coffee" {
		t.Fatalf("unexpected subcategories %+v", listed)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
