package domain

import "time"

// IdempotencyStatus — стадия обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// Failed тоже хранит ответ: повтор получает ту же ошибку, а не второе выполнение.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s.Terminal()
}

// Terminal — запрос завершён и его ответ можно отдавать повторно.
func (s IdempotencyStatus) Terminal() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord — занятый ключ и, после завершения, сохранённый ответ.
// Key уже содержит область (транспорт, клиент, операция), так что ключи разных клиентов не пересекаются.
type IdempotencyRecord struct {
	Key          string            `bson:"_id"`
	RequestHash  string            `bson:"request_hash"`
	ResponseBody []byte            `bson:"response_body,omitempty"`
	HTTPStatus   int               `bson:"http_status"`
	Status       IdempotencyStatus `bson:"status"`
	TTLAt        time.Time         `bson:"ttl_at"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

// Expired: запись без срока не истекает, со сроком истекает начиная с TTLAt.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}
