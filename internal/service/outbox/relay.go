// Package outbox доставляет события заказов из transactional outbox подписчику:
// в Kafka или, без брокера, прямо в уведомления о заказе.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 50 * time.Millisecond
)

// Report — итог одного прохода по outbox.
type Report struct {
	Sent         int
	Failed       int
	DeadLettered int
}

// Relay забирает pending-сообщения порциями и отмечает каждое sent или failed.
type Relay struct {
	repo        domain.OutboxRepository
	target      domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	metrics     *metrics.StorefrontMetrics
	logger      *log.Entry
	now         func() time.Time

	pollInterval time.Duration
	batchSize    int
	retry        retry.Config
}

// Option настраивает Relay.
type Option func(*Relay)

func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithDeadLetters задаёт получателя сообщений, которые не удалось доставить за все попытки.
func WithDeadLetters(p domain.OutboxPublisher) Option {
	return func(r *Relay) { r.deadLetters = p }
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.retry.MaxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(r *Relay) {
		if d >= 0 {
			r.retry.InitialDelay = d
		}
	}
}

// WithClock подменяет часы (тесты).
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay создаёт Relay над outbox и целевым publisher.
func NewRelay(repo domain.OutboxRepository, target domain.OutboxPublisher, opts ...Option) *Relay {
	r := &Relay{
		repo:         repo,
		target:       target,
		logger:       log.WithField("component", "outbox-relay"),
		now:          time.Now,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		retry: retry.Config{
			MaxAttempts:   defaultMaxAttempts,
			InitialDelay:  defaultRetryDelay,
			BackoffFactor: 2,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run опрашивает outbox раз в pollInterval, пока жив ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.target == nil {
		r.logger.Warn("outbox relay disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		if report := r.Drain(ctx); report.Failed > 0 {
			r.logger.WithFields(log.Fields{
				"sent":          report.Sent,
				"failed":        report.Failed,
				"dead_lettered": report.DeadLettered,
			}).Warn("outbox pass finished with failures")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain обрабатывает одну порцию pending-сообщений.
func (r *Relay) Drain(ctx context.Context) Report {
	var report Report
	if ctx.Err() != nil {
		return report
	}
	defer r.observeBacklog(ctx)

	batch, err := r.repo.PullPending(ctx, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("pull pending outbox messages")
		return report
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		entry := r.logger.WithFields(log.Fields{"outbox_id": msg.ID, "event_type": msg.EventType, "order_id": msg.AggregateID})

		deliverErr := r.deliver(ctx, msg)
		if deliverErr == nil {
			report.Sent++
			if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
				entry.WithError(err).Warn("mark outbox message sent")
			}
			continue
		}

		report.Failed++
		r.metrics.RecordOutboxDelivery("failed")
		entry.WithError(deliverErr).Error("outbox message undeliverable")
		if r.deadLetter(ctx, entry, msg, deliverErr) {
			report.DeadLettered++
		}
		if err := r.repo.MarkFailed(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("mark outbox message failed")
		}
	}
	return report
}

// deliver повторяет публикацию с backoff; битые сообщения (ErrValidation) не повторяются.
func (r *Relay) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	retryable := func(err error) bool { return !errors.Is(err, domain.ErrValidation) }

	attempts := 0
	err := retry.Do(ctx, r.retry, retryable, func(ctx context.Context) error {
		attempts++
		if err := r.target.Publish(ctx, msg); err != nil {
			r.metrics.RecordOutboxDelivery("retry")
			return err
		}
		r.metrics.RecordOutboxDelivery("sent")
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver after %d attempt(s): %w", attempts, err)
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, entry *log.Entry, msg domain.OutboxMessage, cause error) bool {
	if r.deadLetters == nil {
		return false
	}
	payload, err := json.Marshal(domain.NewOutboxDeadLetter(msg, cause, r.now()))
	if err == nil {
		letter := msg
		letter.Payload = payload
		err = r.deadLetters.Publish(ctx, letter)
	}
	if err != nil {
		r.metrics.RecordOutboxDelivery("dead_letter_failed")
		entry.WithError(err).Warn("publish outbox dead letter")
		return false
	}
	r.metrics.RecordOutboxDelivery("dead_letter")
	return true
}

func (r *Relay) observeBacklog(ctx context.Context) {
	if r.metrics == nil || ctx.Err() != nil {
		return
	}
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Debug("outbox backlog stats")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = r.now().Sub(stats.OldestPendingAt)
	}
	r.metrics.SetOutboxBacklog(stats.PendingCount, age)
}
