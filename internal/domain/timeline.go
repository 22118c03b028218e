package domain

import "time"

// Типы событий истории заказа.
const (
	TimelineOrderPlaced    = "order_placed"
	TimelineStatusChanged  = "status_changed"
	TimelinePaymentUpdated = "payment_updated"
	TimelineMailQueued     = "mail_queued"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string    `json:"order_id" bson:"order_id"`
	Type     string    `json:"type" bson:"type"`
	Reason   string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Occurred time.Time `json:"occurred" bson:"occurred"`
}
