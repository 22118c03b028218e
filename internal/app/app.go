package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/health"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/seed"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/coffeeshop/internal/transport/grpcapi"
	"github.com/vladislavdragonenkov/coffeeshop/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/coffeeshop/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	limiterCleanup    = time.Minute
)

// Run поднимает витрину: REST API, gRPC OrderDesk, метрики и фоновые воркеры.
// Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")
	m := metrics.NewStorefrontMetrics()

	deps, err := initRuntimeDependenciesWithMetrics(ctx, cfg, m, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.Close(closeCtx, logger)
	}()

	sf, err := buildStorefront(cfg, deps, nil, m, logger)
	if err != nil {
		return err
	}

	if cfg.SeedCatalog {
		if err := seedCatalog(ctx, sf.catalog, logger); err != nil {
			return err
		}
	}

	producer, err := initKafkaProducer(cfg.Brokers(), logger)
	if err != nil {
		logger.Warn("continuing without kafka, order events are handled in-process")
	}
	defer closeKafka(producer, logger)
	pipeline := buildEventPipeline(cfg, producer, sf.notifier)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m, logger.WithField("layer", "ratelimit"))
	startWorkers(workerCtx, &workers,
		newOutboxRelay(cfg, deps.outbox, pipeline, m, logger).Run,
		idempotency.NewSweeper(deps.idempotency,
			idempotency.WithLogger(logger.WithField("worker", "idempotency-sweeper")),
			idempotency.WithMetrics(m),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		).Run,
		func(ctx context.Context) { limiter.Run(ctx, limiterCleanup) },
	)

	healthHandler := health.NewHandler(version.GetVersion(), health.WithObserver(m.SetDependencyUp))
	deps.registerChecks(healthHandler)
	healthHandler.Register("outbox", false, outboxBacklogCheck(deps.outbox, cfg.OutboxMaxPending))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	api := httpapi.NewServer(sf.httpServices(), httpapi.Options{
		Idempotency:    deps.idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		RateLimiter:    limiter,
		Metrics:        m,
		Logger:         logger.WithField("layer", "http"),
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api, ReadHeaderTimeout: readHeaderTimeout}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	grpcSrv := grpcapi.NewServer(sf.orders, grpcapi.Options{
		Idempotency:    deps.idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Authenticator:  sf.accounts,
		Logger:         logger.WithField("layer", "grpc"),
	})
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("REST API слушает %s", httpLis.Addr())
		errCh <- httpSrv.Serve(httpLis)
	}()
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcSrv.Serve(grpcLis)
	}()

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcSrv.Shutdown(stopCtx)
		shutdownHTTP(httpSrv, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stop()
		return ctx.Err()
	case err := <-errCh:
		stop()
		if errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newOutboxRelay(cfg Config, repo domain.OutboxRepository, pipeline eventPipeline, m *metrics.StorefrontMetrics, logger *log.Entry) *outbox.Relay {
	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("worker", "outbox")),
		outbox.WithMetrics(m),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if pipeline.dlq != nil {
		options = append(options, outbox.WithDeadLetters(pipeline.dlq))
	}
	if pipeline.viaKafka {
		logger.WithField("topic", cfg.KafkaTopic).Info("order events are published to kafka")
	} else {
		logger.Info("order events are handled in-process")
	}
	return outbox.NewRelay(repo, pipeline.publisher, options...)
}

func startWorkers(ctx context.Context, wg *sync.WaitGroup, runs ...func(context.Context)) {
	for _, run := range runs {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
}

// outboxBacklogCheck деградирует readiness, когда неотправленных событий больше порога.
func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) health.CheckFunc {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	}
}

func seedCatalog(ctx context.Context, svc *catalog.Service, logger *log.Entry) error {
	data, err := seed.Default()
	if err != nil {
		return fmt.Errorf("load seed catalog: %w", err)
	}
	if _, err := seed.Apply(ctx, svc, data, logger.WithField("layer", "seed")); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	healthHandler.Mount(mux)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
