// Package idempotency гарантирует однократное выполнение мутаций с Idempotency-Key
// (Guard) и периодически вычищает ключи с истёкшим TTL (Sweeper).
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 500
	defaultMaxBatches    = 200
)

var errNoRepository = errors.New("idempotency repository is not configured")

// SweepResult — итог одного прохода.
type SweepResult struct {
	Removed int
	Batches int
	// Truncated — проход упёрся в лимит порций, остаток уйдёт в следующий тик.
	Truncated bool
}

// Sweeper удаляет просроченные ключи порциями.
type Sweeper struct {
	keys       domain.IdempotencyRepository
	metrics    *metrics.StorefrontMetrics
	logger     *log.Entry
	now        func() time.Time
	interval   time.Duration
	batch      int
	maxBatches int
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

func WithLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.StorefrontMetrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize задаёт лимит одного DELETE.
func WithBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithMaxBatches ограничивает число порций за проход, чтобы большой хвост не держал базу.
func WithMaxBatches(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

// WithClock подменяет часы (тесты).
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper создаёт Sweeper над хранилищем ключей.
func NewSweeper(keys domain.IdempotencyRepository, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		keys:       keys,
		logger:     log.WithField("component", "idempotency-sweeper"),
		now:        func() time.Time { return time.Now().UTC() },
		interval:   defaultSweepInterval,
		batch:      defaultSweepBatch,
		maxBatches: defaultMaxBatches,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run чистит ключи сразу при старте и далее раз в interval, пока жив ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	res, err := s.Sweep(ctx)
	s.metrics.RecordKeySweep(res.Removed, err != nil)

	entry := s.logger.WithFields(log.Fields{"removed": res.Removed, "batches": res.Batches})
	switch {
	case err != nil && ctx.Err() != nil:
		// остановка сервиса, не ошибка
	case err != nil:
		entry.WithError(err).Warn("idempotency sweep failed")
	case res.Truncated:
		entry.Info("idempotency sweep hit batch limit")
	case res.Removed > 0:
		entry.Debug("expired idempotency keys removed")
	}
}

// Sweep удаляет ключи, чей TTL истёк к текущему моменту.
// При ошибке возвращает то, что успело удалиться.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if s.keys == nil {
		return res, errNoRepository
	}
	cutoff := s.now()

	for res.Batches < s.maxBatches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := s.keys.DeleteExpired(ctx, cutoff, s.batch)
		if err != nil {
			return res, err
		}
		res.Batches++
		res.Removed += n
		if n < s.batch {
			return res, nil
		}
	}
	res.Truncated = true
	return res, nil
}
