package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

var keyColumns = []string{"key", "request_hash", "response_body", "http_status", "status", "ttl_at", "created_at", "updated_at"}

// Просроченный ключ перезанимается тем же INSERT: ON CONFLICT обновляет строку только
// если её ttl_at уже прошёл, иначе затронуто 0 строк и ключ занят.
const reclaimExpiredKey = `ON CONFLICT (key) DO UPDATE SET
    request_hash = EXCLUDED.request_hash,
    response_body = NULL,
    http_status = NULL,
    status = EXCLUDED.status,
    ttl_at = EXCLUDED.ttl_at,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at
WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at`

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository хранит ключи Idempotency-Key в таблице idempotency_keys.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultKeyTTL)
	}
	rec := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	claim := psql.Insert("idempotency_keys").
		Columns(keyColumns...).
		Values(rec.Key, rec.RequestHash, nil, nil, string(rec.Status), rec.TTLAt, rec.CreatedAt, rec.UpdatedAt).
		Suffix(reclaimExpiredKey)
	claimed, err := execBuilt(ctx, r.db, "claim idempotency key", claim)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if claimed > 0 {
		return rec, nil
	}

	held, err := r.Get(ctx, key)
	if err != nil {
		// строку успели удалить между INSERT и SELECT; для клиента ключ всё равно занят
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if held.RequestHash != requestHash {
		return held, domain.ErrIdempotencyHashMismatch
	}
	return held, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(keyColumns...).From("idempotency_keys").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build idempotency query: %w", err)
	}

	var (
		rec        domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.Key, &rec.RequestHash, &rec.ResponseBody, &httpStatus, &status,
		&rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("select idempotency key: %w", err)
	}

	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s has unknown status %q", key, status)
	}
	rec.HTTPStatus = int(httpStatus.Int64)
	return rec, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit ключей с ttl_at <= before, самые старые первыми; limit<=0 снимает ограничение.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expired := sq.LtOrEq{"ttl_at": before}
	remove := psql.Delete("idempotency_keys").Where(expired)
	if limit > 0 {
		oldest := psql.Select("key").
			From("idempotency_keys").
			Where(expired).
			OrderBy("ttl_at").
			Limit(uint64(limit))
		remove = psql.Delete("idempotency_keys").Where(sq.Expr("key IN (?)", oldest))
	}
	removed, err := execBuilt(ctx, r.db, "delete expired idempotency keys", remove)
	return int(removed), err
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := psql.Update("idempotency_keys").
		SetMap(map[string]any{
			"status":        string(status),
			"response_body": body,
			"http_status":   httpStatus,
			"updated_at":    time.Now().UTC(),
		}).
		Where(sq.Eq{"key": key})
	affected, err := execBuilt(ctx, r.db, "finish idempotency key", update)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
