package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// timelineLog держит события каждого заказа отсортированными по времени.
type timelineLog struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory журнал событий заказов.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineLog{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (l *timelineLog) Append(_ context.Context, event domain.TimelineEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.byOrder[event.OrderID]
	at := sort.Search(len(events), func(i int) bool { return events[i].Occurred.After(event.Occurred) })
	events = append(events, domain.TimelineEvent{})
	copy(events[at+1:], events[at:])
	events[at] = event
	l.byOrder[event.OrderID] = events
	return nil
}

func (l *timelineLog) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.byOrder[orderID]
	out := make([]domain.TimelineEvent, len(events))
	copy(out, events)
	return out, nil
}

var _ domain.TimelineRepository = (*timelineLog)(nil)
