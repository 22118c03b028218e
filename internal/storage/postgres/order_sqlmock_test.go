package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

func orderRow(rows *sqlmock.Rows, id string, at time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "customer-1", "placed", "USD", 300, 0, 300,
		[]byte(`{"line1":"500 Pine Street","city":"Seattle"}`), "cash", "not_required", "", "", "",
		0, at, at)
}

func TestOrderRepository_ListLoadsItemsInOneQuery(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewOrderRepository(store)
	at := time.Date(2024, 5, 4, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, customer_id, status, currency, subtotal_minor, delivery_fee_minor, total_minor, delivery_address, payment_method, payment_status, payment_url, transaction_id, note, version, created_at, updated_at FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC LIMIT 2")).
		WithArgs("customer-1").
		WillReturnRows(orderRow(orderRow(sqlmock.NewRows(orderColumns), "order-2", at), "order-1", at.Add(-time.Hour)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id IN ($1,$2) ORDER BY order_id, position")).
		WithArgs("order-2", "order-1").
		WillReturnRows(sqlmock.NewRows(append([]string{"order_id"}, orderItemColumns...)).
			AddRow("order-1", "i-1", "latte", "Latte", "", "large", []byte(`[{"code":"extra-shot","quantity":1}]`), 2, 150, 300, "").
			AddRow("order-1", "i-2", "muffin", "Muffin", "", "regular", []byte(`[]`), 1, 0, 0, ""))

	orders, err := repo.ListByCustomer(context.Background(), "customer-1", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "order-2", orders[0].ID)
	assert.NotNil(t, orders[0].Items, "order without rows still gets an empty item list")
	assert.Empty(t, orders[0].Items)
	require.Len(t, orders[1].Items, 2)
	assert.Equal(t, "extra-shot", orders[1].Items[0].Options[0].Code)
	assert.Equal(t, "Seattle", orders[1].DeliveryAddress.City)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM orders WHERE id = \\$1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(orderColumns))

	_, err := NewOrderRepository(store).Get(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_SaveVersionCheck(t *testing.T) {
	order := domain.Order{ID: "order-1", Status: domain.OrderStatusPreparing, Version: 3, UpdatedAt: time.Now().UTC()}

	tests := map[string]struct {
		found bool
		want  error
	}{
		"stale version": {found: true, want: domain.ErrVersionConflict},
		"gone":          {found: false, want: domain.ErrOrderNotFound},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET")).
				WillReturnResult(sqlmock.NewResult(0, 0))
			lookup := sqlmock.NewRows([]string{"?column?"})
			if tc.found {
				lookup.AddRow(1)
			}
			mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM orders WHERE id = $1 LIMIT 1")).
				WithArgs("order-1").
				WillReturnRows(lookup)

			require.ErrorIs(t, NewOrderRepository(store).Save(context.Background(), order), tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
