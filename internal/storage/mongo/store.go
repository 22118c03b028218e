package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Имена коллекций документной базы.
const (
	CollectionCustomer    = "customer"
	CollectionProduct     = "product"
	CollectionSubCategory = "sub_category"
	CollectionOrder       = "order"
	CollectionMail        = "mail"
	CollectionOutbox      = "outbox"
	CollectionTimeline    = "timeline"
	CollectionIdempotency = "idempotency"
)

const (
	opTimeout          = 5 * time.Second
	defaultConnTimeout = 5 * time.Second
	duplicateKeyCode   = 11000
)

// Store оборачивает подключение к MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open подключается к MongoDB и проверяет доступность primary.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// NewStore оборачивает уже открытую базу (используется тестами с mock-деплойментом).
func NewStore(db *mongo.Database) *Store {
	return &Store{client: db.Client(), db: db}
}

// DB возвращает базу данных.
func (s *Store) DB() *mongo.Database {
	return s.db
}

// Ping проверяет доступность сервера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("mongo store is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// EnsureIndexes создаёт индексы, на которые опираются репозитории.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("mongo store is not initialized")
	}

	indexes := map[string][]mongo.IndexModel{
		CollectionCustomer: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		},
		CollectionProduct: {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "sub_category_id", Value: 1}}},
		},
		CollectionOrder: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CollectionMail: {
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
		},
		CollectionOutbox: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		CollectionTimeline: {
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "occurred", Value: 1}}},
		},
		CollectionIdempotency: {
			{Keys: bson.D{{Key: "ttl_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_at_expiry")},
		},
	}

	for collection, models := range indexes {
		indexCtx, cancel := context.WithTimeout(ctx, opTimeout)
		_, err := s.db.Collection(collection).Indexes().CreateMany(indexCtx, models)
		cancel()
		if err != nil {
			return fmt.Errorf("create indexes for %s: %w", collection, err)
		}
	}
	return nil
}

// Close отключается от сервера.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// duplicateKeyIndex возвращает сообщение ошибки дубликата ключа, если это она.
func duplicateKeyIndex(err error) (string, bool) {
	if !mongo.IsDuplicateKeyError(err) {
		return "", false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				return e.Message, true
			}
		}
	}
	return err.Error(), true
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
