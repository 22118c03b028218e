package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение топика.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer читает топики в составе consumer group. Сообщение, которое не удалось обработать
// за все попытки, уходит в DLQ и коммитится; без DLQ offset не двигается.
type Consumer struct {
	group    sarama.ConsumerGroup
	topics   []string
	handler  MessageHandler
	logger   *log.Entry
	wg       sync.WaitGroup
	dlq      *Producer
	dlqTopic string
	retries  int
	delay    time.Duration
	now      func() time.Time
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetterTopic включает DLQ; пустой topic означает TopicDeadLetterQueue.
func WithDeadLetterTopic(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithMaxRetries задаёт общее число попыток с учётом уже сделанных (заголовок x-retry-count).
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.retries = n
		}
	}
}

func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d >= 0 {
			c.delay = d
		}
	}
}

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer подключается к consumer group groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("join consumer group %s: %w", groupID, err)
	}
	opts = append([]ConsumerOption{WithConsumerLogger(log.WithFields(log.Fields{"component": "kafka-consumer", "group": groupID}))}, opts...)
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:    group,
		topics:   topics,
		handler:  handler,
		logger:   log.WithField("component", "kafka-consumer"),
		dlqTopic: TopicDeadLetterQueue,
		retries:  defaultMaxRetries,
		delay:    defaultRetryDelay,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне; Consume перезапускается после каждого rebalance, пока жив ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("consume session ended with error")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			entry := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			if err := c.process(ctx, message); err != nil {
				// offset не отмечаем: сообщение придёт снова после rebalance
				entry.WithError(err).Error("message left unprocessed")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process обрабатывает сообщение с backoff. Ошибка домена ErrValidation не повторяется.
// Исчерпав попытки, сообщение уходит в DLQ; nil означает, что offset можно коммитить.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	done := retryCount(message)
	attempts := c.retries - done
	if attempts < 1 {
		attempts = 1
	}

	cfg := retry.Config{MaxAttempts: attempts, InitialDelay: c.delay, BackoffFactor: 2}
	retryable := func(err error) bool { return !errors.Is(err, domain.ErrValidation) }
	tried := 0
	err := retry.Do(ctx, cfg, retryable, func(ctx context.Context) error {
		tried++
		if err := c.handler(ctx, message); err != nil {
			c.logger.WithError(err).WithField("attempt", done+tried).Debug("handler failed")
			return err
		}
		return nil
	})
	if err == nil || ctx.Err() != nil {
		return err
	}
	if c.dlq == nil {
		return err
	}
	if dlqErr := c.deadLetter(ctx, message, err, done+tried); dlqErr != nil {
		return fmt.Errorf("%w (dead letter not sent: %v)", err, dlqErr)
	}
	c.logger.WithFields(log.Fields{"topic": message.Topic, "offset": message.Offset, "dlq": c.dlqTopic}).
		Warn("message moved to dead letter queue")
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error, attempts int) error {
	failedAt := c.now().UTC()
	letter := ConsumerDeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          failedAt,
		RetryCount:        attempts,
	}
	headers := map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderErrorMessage:  cause.Error(),
		HeaderFailedAt:      failedAt.Format(time.RFC3339),
		HeaderRetryCount:    strconv.Itoa(attempts),
	}
	if eventType := headerValue(message, HeaderEventType); eventType != "" {
		headers[HeaderEventType] = eventType
	}
	return c.dlq.SendJSON(ctx, c.dlqTopic, string(message.Key), letter, headers)
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// OutboxHandler разворачивает Envelope и передаёт сообщение target, например уведомлениям о заказе.
// Сообщения с заголовком другого типа события пропускаются, если задан eventTypes.
func OutboxHandler(target domain.OutboxPublisher, eventTypes ...string) MessageHandler {
	accept := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		accept[t] = true
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		if len(accept) > 0 {
			if t := headerValue(message, HeaderEventType); t != "" && !accept[t] {
				return nil
			}
		}
		envelope, err := ParseEnvelope(message)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return target.Publish(ctx, envelope.OutboxMessage())
	}
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
