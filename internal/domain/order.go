package domain

import "time"

// OrderStatus описывает жизненный цикл заказа кофейни.
type OrderStatus string

const (
	// OrderStatusPlaced — заказ принят и ждёт приготовления.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusAwaitingPayment — заказ с оплатой картой, оплата ещё не подтверждена.
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	// OrderStatusPreparing — бариста готовит заказ.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusDelivering — заказ передан курьеру.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusDelivered — заказ доставлен.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled — заказ отменён.
	OrderStatusCanceled OrderStatus = "canceled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAwaitingPayment: {OrderStatusPlaced, OrderStatusCanceled},
	OrderStatusPlaced:          {OrderStatusPreparing, OrderStatusCanceled},
	OrderStatusPreparing:       {OrderStatusDelivering, OrderStatusCanceled},
	OrderStatusDelivering:      {OrderStatusDelivered},
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusAwaitingPayment, OrderStatusPreparing,
		OrderStatusDelivering, OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal — из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// CanTransition сообщает, разрешён ли переход статуса.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CustomerCancelable — статусы, из которых клиент может отменить заказ сам.
func (s OrderStatus) CustomerCancelable() bool {
	return s == OrderStatusPlaced || s == OrderStatusAwaitingPayment
}

// OrderItem — неизменяемый снимок позиции корзины на момент оформления.
type OrderItem struct {
	ID             string           `json:"id" bson:"id"`
	ProductID      string           `json:"product_id" bson:"product_id"`
	ProductName    string           `json:"product_name" bson:"product_name"`
	ImageURL       string           `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Size           string           `json:"size" bson:"size"`
	Options        []SelectedOption `json:"options" bson:"options"`
	Quantity       int              `json:"quantity" bson:"quantity"`
	UnitPriceMinor int64            `json:"unit_price_minor" bson:"unit_price_minor"`
	LineTotalMinor int64            `json:"line_total_minor" bson:"line_total_minor"`
	Note           string           `json:"note,omitempty" bson:"note,omitempty"`
}

// OrderItemFromCart копирует поля позиции корзины в позицию заказа.
func OrderItemFromCart(item CartItem) OrderItem {
	options := make([]SelectedOption, len(item.Options))
	copy(options, item.Options)
	return OrderItem{
		ID:             item.ID,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		ImageURL:       item.ImageURL,
		Size:           item.Size,
		Options:        options,
		Quantity:       item.Quantity,
		UnitPriceMinor: item.UnitPriceMinor,
		LineTotalMinor: item.LineTotalMinor(),
		Note:           item.Note,
	}
}

// Order — документ коллекции order.
type Order struct {
	ID               string        `json:"id" bson:"_id"`
	CustomerID       string        `json:"customer_id" bson:"customer_id"`
	Status           OrderStatus   `json:"status" bson:"status"`
	Items            []OrderItem   `json:"items" bson:"items"`
	Currency         string        `json:"currency" bson:"currency"`
	SubtotalMinor    int64         `json:"subtotal_minor" bson:"subtotal_minor"`
	DeliveryFeeMinor int64         `json:"delivery_fee_minor" bson:"delivery_fee_minor"`
	TotalMinor       int64         `json:"total_minor" bson:"total_minor"`
	DeliveryAddress  Address       `json:"delivery_address" bson:"delivery_address"`
	PaymentMethod    PaymentMethod `json:"payment_method" bson:"payment_method"`
	PaymentStatus    PaymentStatus `json:"payment_status" bson:"payment_status"`
	PaymentURL       string        `json:"payment_url,omitempty" bson:"payment_url,omitempty"`
	TransactionID    string        `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Note             string        `json:"note,omitempty" bson:"note,omitempty"`
	Version          int64         `json:"version" bson:"version"`
	CreatedAt        time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" bson:"updated_at"`
}

// ItemCount — общее количество единиц в заказе.
func (o *Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.DeliveryFeeMinor < 0 {
		errs = append(errs, ErrDeliveryFeeNegative)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}

	// Сверяем подытог с суммой строк, а итог с подытогом и доставкой.
	var calc int64
	for _, item := range o.Items {
		if item.Quantity < MinCartQuantity || item.Quantity > MaxCartQuantity {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.LineTotalMinor != item.UnitPriceMinor*int64(item.Quantity) {
			errs = append(errs, ErrAmountMismatch)
		}
		calc += item.LineTotalMinor
	}
	if calc != o.SubtotalMinor || o.TotalMinor != o.SubtotalMinor+o.DeliveryFeeMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// OrderSubtotalMinor — сумма строк заказа.
func OrderSubtotalMinor(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotalMinor
	}
	return total
}
