package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

type mailRepository struct {
	coll *mongo.Collection
}

// NewMailRepository создаёт репозиторий коллекции mail.
func NewMailRepository(store *Store) domain.MailRepository {
	return &mailRepository{coll: store.collection(CollectionMail)}
}

func (r *mailRepository) Create(ctx context.Context, mail domain.Mail) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, mail); err != nil {
		if _, dup := duplicateKeyIndex(err); dup {
			return domain.ErrMailAlreadyExists
		}
		return fmt.Errorf("insert mail: %w", err)
	}
	return nil
}

func (r *mailRepository) Get(ctx context.Context, id string) (domain.Mail, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var mail domain.Mail
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&mail); err != nil {
		if isNoDocuments(err) {
			return domain.Mail{}, domain.ErrMailNotFound
		}
		return domain.Mail{}, fmt.Errorf("find mail: %w", err)
	}
	return mail, nil
}

func (r *mailRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Mail, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"order_id": orderID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find mails: %w", err)
	}
	mails := make([]domain.Mail, 0)
	if err := cursor.All(ctx, &mails); err != nil {
		return nil, fmt.Errorf("decode mails: %w", err)
	}
	return mails, nil
}

var _ domain.MailRepository = (*mailRepository)(nil)
