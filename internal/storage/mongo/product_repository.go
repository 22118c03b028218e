package mongo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

type productRepository struct {
	products      *mongo.Collection
	subCategories *mongo.Collection
}

// NewProductRepository создаёт репозиторий коллекции product.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{
		products:      store.collection(CollectionProduct),
		subCategories: store.collection(CollectionSubCategory),
	}
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	if err := r.products.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		if isNoDocuments(err) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	return product, nil
}

// ProductFilterDocument переводит фильтр каталога в фильтр MongoDB.
func ProductFilterDocument(filter domain.ProductFilter) bson.M {
	doc := bson.M{}
	if filter.Category != "" {
		doc["category"] = filter.Category
	}
	if filter.SubCategoryID != "" {
		doc["sub_category_id"] = filter.SubCategoryID
	}
	if filter.OnlyAvailable {
		doc["available"] = true
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		doc["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
		}
	}
	return doc
}

// List выбирает товары по фильтру; порядок подкатегорий берётся из коллекции sub_category.
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	subs, err := r.ListSubCategories(ctx)
	if err != nil {
		return nil, err
	}
	subOrder := make(map[string]int, len(subs))
	for _, sub := range subs {
		subOrder[sub.ID] = sub.SortOrder
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.products.Find(ctx, ProductFilterDocument(filter),
		options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	products := make([]domain.Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	sort.SliceStable(products, func(i, j int) bool {
		return subOrder[products[i].SubCategoryID] < subOrder[products[j].SubCategoryID]
	})
	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}

	if _, err := r.products.ReplaceOne(ctx, bson.M{"_id": product.ID}, product, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

type subCategoryDocument struct {
	ID        string          `bson:"_id"`
	Category  domain.Category `bson:"category"`
	Name      string          `bson:"name"`
	SortOrder int             `bson:"sort_order"`
}

func (r *productRepository) ListSubCategories(ctx context.Context) ([]domain.SubCategory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.subCategories.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find sub categories: %w", err)
	}

	var docs []subCategoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sub categories: %w", err)
	}

	result := make([]domain.SubCategory, 0, len(docs))
	for _, d := range docs {
		result = append(result, domain.SubCategory{ID: d.ID, Category: d.Category, Name: d.Name, SortOrder: d.SortOrder})
	}
	return result, nil
}

func (r *productRepository) UpsertSubCategory(ctx context.Context, sub domain.SubCategory) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := subCategoryDocument{ID: sub.ID, Category: sub.Category, Name: sub.Name, SortOrder: sub.SortOrder}
	if _, err := r.subCategories.ReplaceOne(ctx, bson.M{"_id": sub.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert sub category: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
