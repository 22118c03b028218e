package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/health"
	"github.com/vladislavdragonenkov/coffeeshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/notification"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/version"
)

// ErrKafkaRequired возвращается, когда order-notifier запущен без брокеров.
var ErrKafkaRequired = errors.New("order notifier requires STOREFRONT_KAFKA_BROKERS")

// RunNotifier читает события заказов из Kafka и создаёт письма о новых заказах.
// Нужен только при включённом Kafka: без брокера письма создаёт сам сервис витрины.
func RunNotifier(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return ErrKafkaRequired
	}
	if cfg.StorageDriver == StorageDriverMemory {
		return fmt.Errorf("order notifier needs shared storage, got %q driver", cfg.StorageDriver)
	}

	logger := log.WithField("component", "order-notifier")
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

	// Письмо отмечается только в ленте заказа, новых событий в outbox не появляется.
	recorder := orders.NewRecorder(nil, deps.timeline, m, logger.WithField("layer", "order-events"))
	notifier, err := notification.NewNotifier(deps.orders, deps.customers, deps.mails, recorder, notification.Config{
		From:          cfg.MailFrom,
		StoreName:     cfg.StoreName,
		DefaultLocale: cfg.DefaultLocale,
	}, m, logger)
	if err != nil {
		return err
	}

	dlqProducer, err := kafka.NewProducer(brokers)
	if err != nil {
		return fmt.Errorf("create dlq producer: %w", err)
	}
	defer closeKafka(dlqProducer, logger)

	consumer, err := kafka.NewConsumer(
		brokers,
		cfg.KafkaConsumerGroup,
		[]string{cfg.KafkaTopic},
		kafka.OutboxHandler(notifier, domain.EventOrderCreated),
		kafka.WithDeadLetterTopic(dlqProducer, cfg.KafkaDLQTopic),
		kafka.WithMaxRetries(cfg.KafkaMaxRetries),
		kafka.WithConsumerLogger(logger.WithField("layer", "kafka")),
	)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}()

	healthHandler := health.NewHandler(version.GetVersion(), health.WithObserver(m.SetDependencyUp))
	deps.registerChecks(healthHandler)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	logger.WithFields(log.Fields{
		"topic": cfg.KafkaTopic,
		"group": cfg.KafkaConsumerGroup,
	}).Info("order notifier started")

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем notifier")
	return ctx.Err()
}

