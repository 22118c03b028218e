package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

type productRepositoryInMemory struct {
	mu            sync.RWMutex
	items         map[string]domain.Product
	subCategories map[string]domain.SubCategory
}

// NewProductRepository создаёт in-memory каталог.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items:         make(map[string]domain.Product),
		subCategories: make(map[string]domain.SubCategory),
	}
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

// List возвращает товары по фильтру: порядок подкатегории, затем SortOrder и имя.
func (r *productRepositoryInMemory) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, p := range r.items {
		if filter.Matches(p) {
			result = append(result, cloneProduct(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		si := r.subCategories[result[i].SubCategoryID].SortOrder
		sj := r.subCategories[result[j].SubCategoryID].SortOrder
		if si != sj {
			return si < sj
		}
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *productRepositoryInMemory) Upsert(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[product.ID]; ok && product.CreatedAt.IsZero() {
		product.CreatedAt = existing.CreatedAt
	}
	r.items[product.ID] = cloneProduct(product)
	return nil
}

func (r *productRepositoryInMemory) ListSubCategories(_ context.Context) ([]domain.SubCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.SubCategory, 0, len(r.subCategories))
	for _, sub := range r.subCategories {
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *productRepositoryInMemory) UpsertSubCategory(_ context.Context, sub domain.SubCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subCategories[sub.ID] = sub
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
