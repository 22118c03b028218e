package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const defaultOutboxBatch = 100

type queuedMessage struct {
	msg        domain.OutboxMessage
	enqueuedAt time.Time
	settled    bool
}

// OutboxRepository — очередь событий заказов в памяти процесса. Порядок выдачи
// совпадает с порядком Enqueue.
type OutboxRepository struct {
	mu    sync.Mutex
	queue []*queuedMessage
	byID  map[string]*queuedMessage // только неотправленные
	now   func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*queuedMessage),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит событие в очередь; пустой ID заменяется на UUID.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.byID[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s: %w", msg.ID, domain.ErrAlreadyExists)
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	item := &queuedMessage{msg: msg, enqueuedAt: r.now()}
	r.queue = append(r.queue, item)
	r.byID[msg.ID] = item
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingLocked(limit), nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, item := range r.queue {
		if item.settled {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = item.enqueuedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id)
}

// AllPending — снимок неотправленных событий для проверок в тестах.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingLocked(0)
}

// settle снимает событие с очереди. Отправленные и проваленные события в памяти
// не различаются: повторно они не выдаются ни в одном из случаев. Индекс byID
// хранит только неотправленные события.
func (r *OutboxRepository) settle(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: message %s not found", domain.ErrOutboxPublish, id)
	}
	item.settled = true
	delete(r.byID, id)
	r.compactLocked()
	return nil
}

// compactLocked отрезает обработанный префикс очереди.
func (r *OutboxRepository) compactLocked() {
	head := 0
	for head < len(r.queue) && r.queue[head].settled {
		head++
	}
	if head > 0 {
		r.queue = append(r.queue[:0:0], r.queue[head:]...)
	}
}

func (r *OutboxRepository) pendingLocked(limit int) []domain.OutboxMessage {
	out := make([]domain.OutboxMessage, 0)
	for _, item := range r.queue {
		if item.settled {
			continue
		}
		msg := item.msg
		msg.Payload = append([]byte(nil), item.msg.Payload...)
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
