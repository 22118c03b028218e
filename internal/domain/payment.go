package domain

// PaymentMethod — способ оплаты, выбранный при оформлении заказа.
type PaymentMethod string

const (
	// PaymentMethodCash — оплата курьеру при получении.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodCard — онлайн-оплата картой через платёжную форму.
	PaymentMethodCard PaymentMethod = "card"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard:
		return true
	default:
		return false
	}
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusNotRequired — онлайн-оплата не нужна (наличные).
	PaymentStatusNotRequired PaymentStatus = "not_required"
	// PaymentStatusPending — ожидаем возврата клиента из платёжной формы.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — платёжный провайдер подтвердил оплату.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — оплата отклонена или отменена клиентом.
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentLinkStatus — статус, который платёжная форма передаёт в deep link.
type PaymentLinkStatus string

const (
	PaymentLinkSuccess  PaymentLinkStatus = "success"
	PaymentLinkFailed   PaymentLinkStatus = "failed"
	PaymentLinkCanceled PaymentLinkStatus = "canceled"
)

// Valid проверяет статус из deep link.
func (s PaymentLinkStatus) Valid() bool {
	switch s {
	case PaymentLinkSuccess, PaymentLinkFailed, PaymentLinkCanceled:
		return true
	default:
		return false
	}
}
