package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

// Ключ занимается одним findAndModify с upsert: фильтр совпадает только с просроченной
// записью, поэтому живой ключ даёт duplicate key на вставке.
type idempotencyRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий ключей идемпотентности.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{
		coll: store.collection(CollectionIdempotency),
		now:  func() time.Time { return time.Now().UTC() },
	}
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

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultKeyTTL)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	claim := bson.M{
		"$set": bson.M{
			"request_hash": requestHash,
			"status":       domain.IdempotencyStatusProcessing,
			"http_status":  0,
			"ttl_at":       ttlAt,
			"created_at":   now,
			"updated_at":   now,
		},
		"$unset": bson.M{"response_body": ""},
	}
	var rec domain.IdempotencyRecord
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": key, "ttl_at": bson.M{"$lte": now}},
		claim,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&rec)
	if err == nil {
		return rec, nil
	}
	if _, dup := duplicateKeyIndex(err); !dup {
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key: %w", err)
	}

	held, err := r.Get(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("read held idempotency key: %w", err)
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

	var rec domain.IdempotencyRecord
	switch err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&rec); {
	case isNoDocuments(err):
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	case err != nil:
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key %s: %w", key, err)
	case !rec.Status.Valid():
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", rec.Status, key)
	}
	return rec, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit просроченных ключей, самые старые первыми.
// TTL-индекс Mongo тоже чистит коллекцию, но не чаще раза в минуту.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"ttl_at": bson.M{"$lte": before}}
	if limit > 0 {
		ids, err := r.oldestExpired(ctx, filter, limit)
		if err != nil || len(ids) == 0 {
			return 0, err
		}
		filter = bson.M{"_id": bson.M{"$in": ids}}
	}

	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (r *idempotencyRepository) oldestExpired(ctx context.Context, filter bson.M, limit int) (bson.A, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "ttl_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find expired idempotency keys: %w", err)
	}
	var docs []struct {
		Key string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode expired idempotency keys: %w", err)
	}
	ids := make(bson.A, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Key)
	}
	return ids, nil
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, code int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, key, bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: status},
		{Key: "response_body", Value: body},
		{Key: "http_status", Value: code},
		{Key: "updated_at", Value: r.now()},
	}}})
	if err != nil {
		return fmt.Errorf("finish idempotency key %s: %w", key, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
