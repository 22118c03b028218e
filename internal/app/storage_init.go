package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/health"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
	mongostore "github.com/vladislavdragonenkov/coffeeshop/internal/storage/mongo"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/postgres"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/rediscache"
)

// runtimeDependencies — репозитории выбранного драйвера и их проверки здоровья.
type runtimeDependencies struct {
	customers      domain.CustomerRepository
	products       domain.ProductRepository
	orders         domain.OrderRepository
	timeline       domain.TimelineRepository
	outbox         domain.OutboxRepository
	idempotency    domain.IdempotencyRepository
	mails          domain.MailRepository
	checks         map[string]health.CheckFunc
	optionalChecks map[string]health.CheckFunc
	closers        []func(context.Context) error
}

func (d *runtimeDependencies) addCloser(fn func(context.Context) error) {
	d.closers = append(d.closers, fn)
}

// Close закрывает подключения в обратном порядке.
func (d *runtimeDependencies) Close(ctx context.Context, logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
}

// registerChecks вешает проверки хранилища на health handler.
func (d *runtimeDependencies) registerChecks(h *health.Handler) {
	for name, fn := range d.checks {
		h.Register(name, true, fn)
	}
	for name, fn := range d.optionalChecks {
		h.Register(name, false, fn)
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	return initRuntimeDependenciesWithMetrics(ctx, cfg, nil, logger)
}

func initRuntimeDependenciesWithMetrics(ctx context.Context, cfg Config, m *metrics.StorefrontMetrics, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}

	deps := &runtimeDependencies{
		checks:         map[string]health.CheckFunc{},
		optionalChecks: map[string]health.CheckFunc{},
	}

	switch strings.TrimSpace(cfg.StorageDriver) {
	case "", StorageDriverMemory:
		deps.customers = memory.NewCustomerRepository()
		deps.products = memory.NewProductRepository()
		deps.orders = memory.NewOrderRepository()
		deps.timeline = memory.NewTimelineRepository()
		deps.outbox = memory.NewOutboxRepository()
		deps.idempotency = memory.NewIdempotencyRepository()
		deps.mails = memory.NewMailRepository()
		logger.Warn("using in-memory storage, data is lost on restart")

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires STOREFRONT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN,
			postgres.WithMaxConns(cfg.PostgresMaxConns),
			postgres.WithConnMaxLifetime(cfg.PostgresConnMaxLifetime),
		)
		if err != nil {
			return nil, err
		}
		deps.addCloser(func(context.Context) error { return store.Close() })
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.customers = postgres.NewCustomerRepository(store)
		deps.products = postgres.NewProductRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.timeline = postgres.NewTimelineRepository(store)
		deps.outbox = postgres.NewOutboxRepository(store)
		deps.idempotency = postgres.NewIdempotencyRepository(store)
		deps.mails = postgres.NewMailRepository(store)
		deps.checks["postgres"] = store.Ping
		logger.Info("postgres storage initialized")

	case StorageDriverMongo:
		store, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		deps.addCloser(store.Close)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		deps.customers = mongostore.NewCustomerRepository(store)
		deps.products = mongostore.NewProductRepository(store)
		deps.orders = mongostore.NewOrderRepository(store)
		deps.timeline = mongostore.NewTimelineRepository(store)
		deps.outbox = mongostore.NewOutboxRepository(store)
		deps.idempotency = mongostore.NewIdempotencyRepository(store)
		deps.mails = mongostore.NewMailRepository(store)
		deps.checks["mongo"] = store.Ping
		logger.WithField("database", cfg.MongoDatabase).Info("mongo storage initialized")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := rediscache.NewClient(addr, cfg.RedisPassword, cfg.RedisDB)
		deps.addCloser(func(context.Context) error { return client.Close() })
		deps.products = rediscache.NewProductCache(deps.products, client, rediscache.Options{
			TTL:     cfg.CatalogCacheTTL,
			Logger:  logger.WithField("layer", "catalog-cache"),
			Metrics: m,
		})
		// Кеш опционален: при недоступном Redis каталог читается из хранилища.
		deps.optionalChecks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		logger.WithField("addr", addr).Info("catalog cache enabled")
	}

	return deps, nil
}
