package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Service отдаёт каталог мобильному клиенту и принимает изменения от персонала.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{products: products, logger: logger}
}

// ListCategories возвращает дерево категорий: напитки, затем еда.
func (s *Service) ListCategories(ctx context.Context) ([]domain.CategoryGroup, error) {
	subs, err := s.products.ListSubCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sub categories: %w", err)
	}

	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].SortOrder != subs[j].SortOrder {
			return subs[i].SortOrder < subs[j].SortOrder
		}
		return subs[i].Name < subs[j].Name
	})

	groups := []domain.CategoryGroup{
		{Category: domain.CategoryBeverage, SubCategories: []domain.SubCategory{}},
		{Category: domain.CategoryFood, SubCategories: []domain.SubCategory{}},
	}
	for _, sub := range subs {
		for i := range groups {
			if groups[i].Category == sub.Category {
				groups[i].SubCategories = append(groups[i].SubCategories, sub)
			}
		}
	}
	return groups, nil
}

// ListProducts выбирает товары по фильтру.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var v domain.Validator
	if filter.Category != "" && !filter.Category.Valid() {
		v.Add("category", "must be beverage or food")
	}
	v.Optional("q", filter.Query, 100)
	if err := v.Err(); err != nil {
		return nil, err
	}

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	filter.Query = strings.TrimSpace(filter.Query)

	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// GetProduct возвращает карточку товара.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.products.Get(ctx, id)
}

// Quote пересчитывает цену выбранной конфигурации, не трогая корзину.
func (s *Service) Quote(ctx context.Context, productID, size string, options []domain.OptionSelection, quantity int) (domain.PriceQuote, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if !product.Available {
		return domain.PriceQuote{}, domain.ErrProductUnavailable
	}
	return domain.Quote(product, size, options, quantity)
}

// UpsertProduct проверяет инварианты и сохраняет товар.
func (s *Service) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)

	var v domain.Validator
	if product.ID == "" {
		v.Add("id", "is required")
	}
	for _, err := range product.ValidateInvariants() {
		v.Add("product", "%s", err.Error())
	}
	if err := v.Err(); err != nil {
		return domain.Product{}, err
	}

	if product.SubCategoryID != "" {
		if err := s.checkSubCategory(ctx, product); err != nil {
			return domain.Product{}, err
		}
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		if existing, err := s.products.Get(ctx, product.ID); err == nil {
			product.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, domain.ErrProductNotFound) {
			return domain.Product{}, fmt.Errorf("load product: %w", err)
		} else {
			product.CreatedAt = now
		}
	}
	product.UpdatedAt = now

	if err := s.products.Upsert(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("upsert product: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"available":  product.Available,
	}).Info("product upserted")
	return product, nil
}

// UpsertSubCategory сохраняет подкатегорию каталога.
func (s *Service) UpsertSubCategory(ctx context.Context, sub domain.SubCategory) error {
	var v domain.Validator
	if strings.TrimSpace(sub.ID) == "" {
		v.Add("id", "is required")
	}
	if !sub.Category.Valid() {
		v.Add("category", "must be beverage or food")
	}
	v.Length("name", sub.Name, 2, 50)
	if err := v.Err(); err != nil {
		return err
	}
	if err := s.products.UpsertSubCategory(ctx, sub); err != nil {
		return fmt.Errorf("upsert sub category: %w", err)
	}
	return nil
}

func (s *Service) checkSubCategory(ctx context.Context, product domain.Product) error {
	subs, err := s.products.ListSubCategories(ctx)
	if err != nil {
		return fmt.Errorf("list sub categories: %w", err)
	}
	for _, sub := range subs {
		if sub.ID != product.SubCategoryID {
			continue
		}
		if sub.Category != product.Category {
			var v domain.Validator
			v.Add("sub_category_id", "belongs to category %s", sub.Category)
			return v.Err()
		}
		return nil
	}
	var v domain.Validator
	v.Add("sub_category_id", "unknown sub category %q", product.SubCategoryID)
	return v.Err()
}
