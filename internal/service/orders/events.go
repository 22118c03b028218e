package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
)

// Recorder пишет событие заказа в timeline и, если задан тип события, в outbox.
// Ошибки записи логируются: заказ уже сохранён и откатывать его нельзя.
type Recorder struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
}

// NewRecorder создаёт Recorder; outbox и timeline могут быть nil.
func NewRecorder(
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "order-events")
	}
	return &Recorder{outbox: outbox, timeline: timeline, metrics: m, logger: logger}
}

// Record добавляет запись истории timelineType и публикует eventType (если не пуст).
func (r *Recorder) Record(ctx context.Context, order domain.Order, timelineType, eventType, reason string, at time.Time) {
	if r == nil {
		return
	}
	fields := log.Fields{"order_id": order.ID, "timeline": timelineType}

	if r.timeline != nil && timelineType != "" {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     timelineType,
			Reason:   reason,
			Occurred: at.UTC(),
		}
		if err := r.timeline.Append(ctx, event); err != nil {
			r.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			r.metrics.RecordTimelineEvent()
		}
	}

	if r.outbox == nil || eventType == "" {
		return
	}
	msg, err := domain.NewOrderEvent(eventType, order, reason, at).OutboxMessage()
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		return
	}
	if _, err := r.outbox.Enqueue(ctx, msg); err != nil {
		r.logger.WithError(err).WithFields(fields).WithField("event", eventType).Error("enqueue event failed")
		return
	}
	r.metrics.RecordOutboxEvent()
}
