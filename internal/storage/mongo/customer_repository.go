package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

type customerRepository struct {
	coll *mongo.Collection
}

// NewCustomerRepository создаёт репозиторий коллекции customer.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{coll: store.collection(CollectionCustomer)}
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	customer.Email = domain.NormalizeEmail(customer.Email)
	if _, err := r.coll.InsertOne(ctx, customer); err != nil {
		if msg, dup := duplicateKeyIndex(err); dup {
			if strings.Contains(msg, "email") {
				return domain.ErrEmailTaken
			}
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *customerRepository) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

func (r *customerRepository) findOne(ctx context.Context, filter bson.M) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var customer domain.Customer
	if err := r.coll.FindOne(ctx, filter).Decode(&customer); err != nil {
		if isNoDocuments(err) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("find customer: %w", err)
	}
	return customer, nil
}

// Save заменяет документ, только если версия в базе совпадает с прочитанной.
func (r *customerRepository) Save(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expected := customer.Version
	customer.Version++
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": customer.ID, "version": expected}, customer)
	if err != nil {
		return fmt.Errorf("replace customer: %w", err)
	}
	if res.MatchedCount == 0 {
		return versionMissOrConflict(ctx, r.coll, customer.ID, domain.ErrCustomerNotFound)
	}
	return nil
}

// versionMissOrConflict различает отсутствие документа и устаревшую версию.
func versionMissOrConflict(ctx context.Context, coll *mongo.Collection, id string, notFound error) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("check document exists: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return domain.ErrVersionConflict
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
