package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const (
	// DefaultTTL — сколько хранится ответ на ключ.
	DefaultTTL = 24 * time.Hour
	// MaxKeyLength — предел длины клиентского ключа.
	MaxKeyLength = 128
)

var (
	// ErrInFlight — запрос с тем же ключом ещё выполняется.
	ErrInFlight = errors.New("request with the same idempotency key is still processing")
	// ErrEmptyReplay — запись завершена, но ответ не сохранился.
	ErrEmptyReplay = errors.New("idempotency record has no stored response")
	// ErrKeyTooLong — клиентский ключ длиннее MaxKeyLength.
	ErrKeyTooLong = fmt.Errorf("idempotency key must be at most %d characters", MaxKeyLength)
)

// Guard выдаёт билеты на однократное выполнение мутации. Транспорт сам решает,
// как превратить сохранённый ответ обратно в HTTP-ответ или gRPC-статус.
type Guard struct {
	keys   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard возвращает nil, если хранилища ключей нет: nil-Guard пропускает запросы без учёта.
func NewGuard(keys domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if keys == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Guard{keys: keys, ttl: ttl, now: time.Now, logger: logger}
}

// Ticket — право выполнить запрос либо сохранённый ответ на него.
type Ticket struct {
	guard  *Guard
	key    string
	replay *domain.IdempotencyRecord
}

// Begin занимает ключ scope:key. Уже завершённый запрос возвращается как Replay;
// ErrInFlight и domain.ErrIdempotencyHashMismatch означают, что выполнять нельзя.
func (g *Guard) Begin(ctx context.Context, scope, key, fingerprint string) (*Ticket, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}
	if len(key) > MaxKeyLength {
		return nil, ErrKeyTooLong
	}

	scoped := scope + ":" + key
	rec, err := g.keys.CreateProcessing(ctx, scoped, fingerprint, g.now().UTC().Add(g.ttl))
	switch {
	case err == nil:
		return &Ticket{guard: g, key: scoped}, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		return nil, err
	}

	switch {
	case rec.Status == domain.IdempotencyStatusProcessing:
		return nil, ErrInFlight
	case !rec.Status.Terminal():
		return nil, fmt.Errorf("idempotency key %s has unknown status %q", scoped, rec.Status)
	case len(rec.ResponseBody) == 0 && rec.HTTPStatus == 0:
		return nil, ErrEmptyReplay
	default:
		return &Ticket{guard: g, key: scoped, replay: &rec}, nil
	}
}

// Replay отдаёт сохранённый результат прошлого выполнения.
func (t *Ticket) Replay() (domain.IdempotencyRecord, bool) {
	if t == nil || t.replay == nil {
		return domain.IdempotencyRecord{}, false
	}
	return *t.replay, true
}

// Succeed сохраняет успешный ответ. Сбой хранилища только логируется: ответ клиенту уже готов.
func (t *Ticket) Succeed(ctx context.Context, body []byte, code int) {
	t.finish(ctx, body, code, true)
}

// Fail сохраняет ответ с ошибкой, повтор получит его же.
func (t *Ticket) Fail(ctx context.Context, body []byte, code int) {
	t.finish(ctx, body, code, false)
}

func (t *Ticket) finish(ctx context.Context, body []byte, code int, ok bool) {
	if t == nil || t.replay != nil {
		return
	}
	mark := t.guard.keys.MarkFailed
	if ok {
		mark = t.guard.keys.MarkDone
	}
	if err := mark(ctx, t.key, body, code); err != nil {
		t.guard.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": t.key,
			"succeeded":       ok,
		}).Warn("failed to store idempotent response")
	}
}

// Fingerprint хеширует части запроса; разделитель не даёт склеить соседние части по-разному.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(h, "%d:", len(part))
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
