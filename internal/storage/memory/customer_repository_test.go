package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

func TestCustomerRepository_EmailUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCustomerRepository()

	if err := repo.Create(ctx, domain.Customer{ID: "c1", Email: "Ann@Example.com"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, domain.Customer{ID: "c2", Email: "ann@example.com "}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	found, err := repo.GetByEmail(ctx, "ANN@example.com")
	if err != nil {
		t.Fatalf("get by email failed: %v", err)
	}
	if found.ID != "c1" || found.Email != "ann@example.com" {
		t.Fatalf("unexpected customer %+v", found)
	}
}

func TestCustomerRepository_SaveCartWithVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCustomerRepository()
	if err := repo.Create(ctx, domain.Customer{ID: "c1", Email: "ann@example.com"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	c, _ := repo.Get(ctx, "c1")
	c.Cart = append(c.Cart, domain.CartItem{ID: "i1", ProductID: "latte", Quantity: 1})
	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Вторая запись со старой версией проигрывает.
	c.Cart = nil
	if err := repo.Save(ctx, c); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	stored, _ := repo.Get(ctx, "c1")
	if len(stored.Cart) != 1 || stored.Version != 1 {
		t.Fatalf("unexpected stored customer: %+v", stored)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}
