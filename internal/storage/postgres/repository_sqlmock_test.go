package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestBuildProductListQuery(t *testing.T) {
	query, args, err := buildProductListQuery(domain.ProductFilter{
		Category:      domain.CategoryBeverage,
		Query:         "latte",
		OnlyAvailable: true,
		Limit:         5,
	}).ToSql()
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	for _, fragment := range []string{
		"LEFT JOIN sub_categories s ON s.id = p.sub_category_id",
		"p.category = $1",
		"p.available = $2",
		"p.name ILIKE $3",
		"p.description ILIKE $4",
		"LIMIT 5",
	} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("query %q does not contain %q", query, fragment)
		}
	}
	if len(args) != 4 || args[2] != "%latte%" {
		t.Fatalf("unexpected args %v", args)
	}

	bare, bareArgs, err := buildProductListQuery(domain.ProductFilter{}).ToSql()
	if err != nil {
		t.Fatalf("build bare query: %v", err)
	}
	if strings.Contains(bare, "WHERE") || len(bareArgs) != 0 {
		t.Fatalf("empty filter must not add conditions: %s %v", bare, bareArgs)
	}
}

func TestProductRepository_GetDecodesJSONB(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewProductRepository(store)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "image_url", "category", "sub_category_id",
		"sizes", "options", "available", "sort_order", "created_at", "updated_at",
	}).AddRow(
		"latte", "Latte", "", "", "beverage", "hot-coffee",
		[]byte(`[{"name":"small","price_minor":300}]`), []byte(`[{"code":"oat-milk","name":"Oat milk","price_minor":50,"max_quantity":1}]`),
		true, 1, now, now,
	)
	mock.ExpectQuery(`SELECT .* FROM products p WHERE p.id = \$1`).WithArgs("latte").WillReturnRows(rows)

	product, err := repo.Get(context.Background(), "latte")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(product.Sizes) != 1 || product.Sizes[0].PriceMinor != 300 {
		t.Fatalf("unexpected sizes %+v", product.Sizes)
	}
	if len(product.Options) != 1 || product.Options[0].Code != "oat-milk" {
		t.Fatalf("unexpected options %+v", product.Options)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCustomerRepository_SaveDistinguishesConflictAndMissing(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewCustomerRepository(store)
	ctx := context.Background()
	customer := domain.Customer{ID: "c1", Name: "Ann", Version: 3, UpdatedAt: time.Now().UTC()}

	mock.ExpectExec("UPDATE customers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM customers").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))

	if err := repo.Save(ctx, customer); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	mock.ExpectExec("UPDATE customers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM customers").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if err := repo.Save(ctx, customer); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCustomerRepository_CreateMapsEmailConstraint(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewCustomerRepository(store)

	mock.ExpectExec("INSERT INTO customers").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "customers_email_key"})

	err := repo.Create(context.Background(), domain.Customer{ID: "c1", Email: "ann@example.com"})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestOrderRepository_CreateRollsBackOnDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	order := latteOrder("order-dup", "customer-1", time.Now().UTC())
	if err := repo.Create(context.Background(), order); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOrderRepository_CreateWritesItemsInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order := latteOrder("order-tx", "customer-1", time.Now().UTC())
	if err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
