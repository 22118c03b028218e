package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список не ошибка: события обрабатываются в процессе.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает producer, если он есть.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// eventPipeline — куда outbox worker отдаёт события заказа.
type eventPipeline struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	viaKafka  bool
}

// buildEventPipeline: с producer события уходят в топик, а письма создаёт order-notifier;
// без него worker вызывает notifier напрямую и DLQ не используется.
func buildEventPipeline(cfg Config, producer *kafka.Producer, inProcess domain.OutboxPublisher) eventPipeline {
	if producer == nil {
		return eventPipeline{publisher: inProcess}
	}
	return eventPipeline{
		publisher: kafka.NewOrderEventPublisher(producer, cfg.KafkaTopic),
		dlq:       kafka.NewOrderEventPublisher(producer, cfg.KafkaDLQTopic),
		viaKafka:  true,
	}
}
