package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testDSNEnv указывает на живую базу; без неё интеграционные тесты пропускаются.
const testDSNEnv = "STOREFRONT_POSTGRES_TEST_DSN"

// Порядок важен только для читаемости: TRUNCATE ... CASCADE снимает зависимости сам.
var truncatedTables = []string{
	"idempotency_keys", "outbox_messages", "timeline_events", "mails",
	"order_items", "orders", "customers", "products", "sub_categories",
}

// connectTestDB открывает базу без миграций и очистки.
func connectTestDB(t *testing.T) *Store {
	t.Helper()

	dsn, ok := os.LookupEnv(testDSNEnv)
	if !ok || strings.TrimSpace(dsn) == "" {
		t.Skipf("set %s to run postgres integration tests", testDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, WithMaxConns(4))
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// freshTestDB — схема применена, данные предыдущих тестов удалены.
func freshTestDB(t *testing.T) *Store {
	t.Helper()
	store := connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.EnsureSchema(ctx))

	stmt := "TRUNCATE TABLE " + strings.Join(truncatedTables, ", ") + " RESTART IDENTITY CASCADE"
	_, err := store.DB().ExecContext(ctx, stmt)
	require.NoError(t, err)
	return store
}
