package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	httpPort, metricsPort := findFreePort(t), findFreePort(t)

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", httpPort)
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", metricsPort)
	cfg.SeedCatalog = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", httpPort)
	waitForServer(t, base+"/v1/catalog/categories")

	resp, err := http.Get(base + "/v1/catalog/products/latte")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "seeded product must be served")

	waitForServer(t, fmt.Sprintf("http://127.0.0.1:%d/readyz", metricsPort))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_HTTPAddressInUse(t *testing.T) {
	port := findFreePort(t)
	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", port)
	cfg.GRPCAddr = cfg.HTTPAddr
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "listen grpc")
}

func TestRunNotifier_RequiresKafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = "postgres://localhost:5432/storefront"

	require.ErrorIs(t, RunNotifier(context.Background(), cfg), ErrKafkaRequired)
}

func TestRunNotifier_RejectsMemoryStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"localhost:9092"}

	require.ErrorContains(t, RunNotifier(context.Background(), cfg), "shared storage")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("STOREFRONT_POSTGRES_TEST_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.Close(ctx, log.WithField("test", "postgres-close"))

	require.Contains(t, deps.checks, "postgres")
	require.NoError(t, deps.checks["postgres"](ctx))
}

func TestInitRuntimeDependencies_MongoSuccess(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("STOREFRONT_MONGO_TEST_URI"))
	if uri == "" {
		t.Skip("STOREFRONT_MONGO_TEST_URI is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverMongo
	cfg.MongoURI = uri
	cfg.MongoDatabase = "storefront_app_test"

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, cfg, log.WithField("test", "mongo-init"))
	if err != nil {
		t.Skipf("mongo is not available for app integration test: %v", err)
	}
	defer deps.Close(ctx, log.WithField("test", "mongo-close"))

	require.Contains(t, deps.checks, "mongo")
	require.NoError(t, deps.checks["mongo"](ctx))
}
