package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderEvent — полезная нагрузка событий заказа в outbox и Kafka.
type OrderEvent struct {
	EventType     string        `json:"event_type"`
	OrderID       string        `json:"order_id"`
	CustomerID    string        `json:"customer_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	TotalMinor    int64         `json:"total_minor"`
	Currency      string        `json:"currency"`
	Reason        string        `json:"reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewOrderEvent снимает с заказа поля, нужные подписчикам.
func NewOrderEvent(eventType string, order Order, reason string, at time.Time) OrderEvent {
	return OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalMinor:    order.TotalMinor,
		Currency:      order.Currency,
		Reason:        reason,
		Timestamp:     at.UTC(),
	}
}

// OutboxMessage упаковывает событие для transactional outbox.
func (e OrderEvent) OutboxMessage() (OutboxMessage, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", e.EventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   e.OrderID,
		EventType:     e.EventType,
		Payload:       payload,
	}, nil
}

// DecodeOrderEvent разбирает полезную нагрузку события заказа.
func DecodeOrderEvent(payload []byte) (OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if event.OrderID == "" {
		return OrderEvent{}, fmt.Errorf("decode order event: %w: order_id is empty", ErrValidation)
	}
	return event, nil
}

// OutboxDeadLetter — запись, которую outbox worker не смог доставить.
type OutboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewOutboxDeadLetter фиксирует исходное сообщение вместе с причиной отказа.
func NewOutboxDeadLetter(msg OutboxMessage, publishErr error, at time.Time) OutboxDeadLetter {
	letter := OutboxDeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		FailedAt:      at.UTC(),
	}
	if publishErr != nil {
		letter.PublishError = publishErr.Error()
	}
	return letter
}

// OriginalMessage восстанавливает outbox-сообщение для повторной публикации.
func (l OutboxDeadLetter) OriginalMessage() OutboxMessage {
	return OutboxMessage{
		ID:            l.OutboxID,
		AggregateType: l.AggregateType,
		AggregateID:   l.AggregateID,
		EventType:     l.EventType,
		Payload:       []byte(l.Payload),
	}
}
