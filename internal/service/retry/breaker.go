package retry

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrCircuitOpen возвращается, пока breaker открыт.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState — состояние breaker'а.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures ошибок подряд. Через resetTimeout
// пропускает одну пробную операцию: успех замыкает цепь, ошибка снова размыкает.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	logger       *log.Entry
	onChange     func(CircuitState)

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// BreakerOption настраивает CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// OnStateChange вызывается под блокировкой breaker'а при каждой смене состояния.
func OnStateChange(fn func(CircuitState)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry, opts ...BreakerOption) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	cb := &CircuitBreaker{
		maxFailures:  max(maxFailures, 1),
		resetTimeout: resetTimeout,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет fn, если цепь замкнута или пришло время пробы.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.admit(operation); err != nil {
		return err
	}
	err := fn()
	cb.record(operation, err)
	return err
}

func (cb *CircuitBreaker) admit(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.moveTo(CircuitHalfOpen, operation)
		cb.probing = true
	case CircuitHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err == nil {
		cb.failures = 0
		cb.moveTo(CircuitClosed, operation)
		return
	}
	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.moveTo(CircuitOpen, operation)
	}
}

func (cb *CircuitBreaker) moveTo(next CircuitState, operation string) {
	if cb.state == next {
		return
	}
	entry := cb.logger.WithFields(log.Fields{"operation": operation, "from": cb.state.String(), "to": next.String()})
	if next == CircuitOpen {
		entry.WithField("failures", cb.failures).Warn("circuit breaker opened")
	} else {
		entry.Info("circuit breaker state changed")
	}
	cb.state = next
	if cb.onChange != nil {
		cb.onChange(next)
	}
}
