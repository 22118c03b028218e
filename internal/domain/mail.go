package domain

import "time"

// Mail — документ коллекции mail, который подхватывает расширение отправки писем.
type Mail struct {
	ID         string    `json:"id" bson:"_id"`
	OrderID    string    `json:"order_id" bson:"order_id"`
	CustomerID string    `json:"customer_id" bson:"customer_id"`
	From       string    `json:"from" bson:"from"`
	To         []string  `json:"to" bson:"to"`
	Subject    string    `json:"subject" bson:"subject"`
	Text       string    `json:"text" bson:"text"`
	HTML       string    `json:"html" bson:"html"`
	Locale     string    `json:"locale" bson:"locale"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// OrderCreatedMailID — детерминированный ID письма о новом заказе: одно письмо на заказ.
func OrderCreatedMailID(orderID string) string {
	return "order-created-" + orderID
}
