// Package retry повторяет операции с экспоненциальной задержкой и защищает
// внешние вызовы circuit breaker'ом.
package retry

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// Config описывает расписание повторов.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig: три попытки, 100ms с удвоением, не дольше 5s между ними.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// OnceOnConflict — одна повторная попытка без задержки: документ перечитывается и
// изменение применяется заново.
func OnceOnConflict() Config {
	return Config{MaxAttempts: 2}
}

// delayAfter — пауза после неудачной попытки attempt (с единицы).
func (c Config) delayAfter(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt && delay > 0; i++ {
		if c.BackoffFactor > 1 {
			delay = time.Duration(float64(delay) * c.BackoffFactor)
		}
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Do вызывает fn, пока она падает с ошибкой, которую shouldRetry считает временной,
// и попытки не кончились. Возвращается последняя ошибка fn или ошибка контекста.
func Do(ctx context.Context, cfg Config, shouldRetry func(error) bool, fn func(context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, cfg.delayAfter(attempt)); err != nil {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OnVersionConflict повторяет fn один раз, если сохранение проиграло гонку версий.
func OnVersionConflict(ctx context.Context, fn func(context.Context) error) error {
	return Do(ctx, OnceOnConflict(), domain.IsVersionConflict, fn)
}
