package domain

import "errors"

var (
	// ErrValidation — общий маркер ошибок валидации форм и сущностей.
	ErrValidation = errors.New("validation failed")

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве позиции (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия итоговой суммы заказа и суммы позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка отрицательной стоимости доставки.
	ErrDeliveryFeeNegative = errors.New("delivery fee must be non-negative")
	// Ошибка отсутствующего или неизвестного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method must be cash or card")

	// ErrProductNameRequired — у товара нет названия.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrProductSizesRequired — у товара нет ни одного размера.
	ErrProductSizesRequired = errors.New("product must have at least one size")
	// ErrProductCategoryInvalid — неизвестная категория товара.
	ErrProductCategoryInvalid = errors.New("product category must be beverage or food")
	// ErrProductPriceInvalid — отрицательная цена размера или опции.
	ErrProductPriceInvalid = errors.New("product prices must be non-negative")
	// ErrProductDuplicateSize — размеры товара повторяются.
	ErrProductDuplicateSize = errors.New("product size names must be unique")
	// ErrProductDuplicateOption — коды опций товара повторяются.
	ErrProductDuplicateOption = errors.New("product option codes must be unique")
	// ErrProductUnavailable — товар снят с продажи.
	ErrProductUnavailable = errors.New("product is unavailable")
	// ErrUnknownSize — выбран размер, которого нет у товара.
	ErrUnknownSize = errors.New("unknown size for product")
	// ErrUnknownOption — выбрана опция, которой нет у товара.
	ErrUnknownOption = errors.New("unknown option for product")
	// ErrOptionQuantityInvalid — количество опции вне диапазона 1..MaxQuantity.
	ErrOptionQuantityInvalid = errors.New("option quantity is out of range")

	// ErrCartEmpty — попытка оформить пустую корзину.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartItemNotFound — позиция корзины не найдена.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrCartQuantityInvalid — количество позиции корзины вне диапазона.
	ErrCartQuantityInvalid = errors.New("cart item quantity is out of range")

	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrMailNotFound возвращается, если письмо не найдено.
	ErrMailNotFound = errors.New("mail not found")
	// ErrMailAlreadyExists — письмо для заказа уже создано.
	ErrMailAlreadyExists = errors.New("mail already exists")

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении документа.
	ErrVersionConflict = errors.New("document version conflict")
	// ErrAlreadyExists — документ с таким идентификатором уже есть.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrOrderStatusTransition — недопустимый переход статуса заказа.
	ErrOrderStatusTransition = errors.New("order status transition is not allowed")
	// ErrOrderNotCancelable — заказ уже нельзя отменить.
	ErrOrderNotCancelable = errors.New("order can no longer be canceled")

	// ErrEmailTaken — email уже зарегистрирован.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrInvalidCredentials — неверная пара email/пароль.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthorized — отсутствует или просрочен токен доступа.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden — у клиента нет прав на операцию.
	ErrForbidden = errors.New("forbidden")

	// ErrDeepLinkInvalid — ссылка возврата из платёжной формы не распознана.
	ErrDeepLinkInvalid = errors.New("payment deep link is invalid")
	// ErrPaymentNotExpected — для заказа не ожидается онлайн-оплата.
	ErrPaymentNotExpected = errors.New("order does not expect an online payment")

	// ErrIdempotencyKeyRequired — не передан idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись идемпотентности не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsNotFound объединяет все ошибки "документ не найден".
func IsNotFound(err error) bool {
	switch {
	case errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrMailNotFound),
		errors.Is(err, ErrCartItemNotFound):
		return true
	default:
		return false
	}
}
