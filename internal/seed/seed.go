// Package seed загружает стартовый каталог кофейни из встроенного catalog.yaml.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog — разобранный файл каталога.
type Catalog struct {
	SubCategories []domain.SubCategory
	Products      []domain.Product
}

type catalogFile struct {
	SubCategories []domain.SubCategory       `yaml:"sub_categories"`
	Options       map[string][]domain.Option `yaml:"options"`
	Products      []productDoc               `yaml:"products"`
}

type productDoc struct {
	ID            string          `yaml:"id"`
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description"`
	ImageURL      string          `yaml:"image_url"`
	Category      domain.Category `yaml:"category"`
	SubCategoryID string          `yaml:"sub_category_id"`
	SortOrder     int             `yaml:"sort_order"`
	Sizes         []domain.Size   `yaml:"sizes"`
	OptionGroups  []string        `yaml:"option_groups"`
	Options       []domain.Option `yaml:"options"`
	// Available по умолчанию true.
	Available *bool `yaml:"available"`
}

// Default возвращает встроенный каталог.
func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse разбирает YAML каталога и раскрывает группы опций.
func Parse(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}

	catalog := Catalog{SubCategories: file.SubCategories}
	for _, doc := range file.Products {
		options := make([]domain.Option, 0, len(doc.Options))
		for _, group := range doc.OptionGroups {
			groupOptions, ok := file.Options[group]
			if !ok {
				return Catalog{}, fmt.Errorf("product %q: unknown option group %q", doc.ID, group)
			}
			options = append(options, groupOptions...)
		}
		options = append(options, doc.Options...)

		available := true
		if doc.Available != nil {
			available = *doc.Available
		}
		catalog.Products = append(catalog.Products, domain.Product{
			ID:            doc.ID,
			Name:          doc.Name,
			Description:   doc.Description,
			ImageURL:      doc.ImageURL,
			Category:      doc.Category,
			SubCategoryID: doc.SubCategoryID,
			Sizes:         doc.Sizes,
			Options:       options,
			Available:     available,
			SortOrder:     doc.SortOrder,
		})
	}
	return catalog, nil
}

// Upserter — операции каталога, через которые идёт заливка (проверка инвариантов внутри).
type Upserter interface {
	UpsertSubCategory(ctx context.Context, sub domain.SubCategory) error
	UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error)
}

// Result — сколько записей залито.
type Result struct {
	SubCategories int
	Products      int
}

// Apply заливает каталог; повторный запуск перезаписывает те же ID.
func Apply(ctx context.Context, target Upserter, catalog Catalog, logger *log.Entry) (Result, error) {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}
	var result Result
	for _, sub := range catalog.SubCategories {
		if err := target.UpsertSubCategory(ctx, sub); err != nil {
			return result, fmt.Errorf("sub category %q: %w", sub.ID, err)
		}
		result.SubCategories++
	}
	for _, product := range catalog.Products {
		if _, err := target.UpsertProduct(ctx, product); err != nil {
			return result, fmt.Errorf("product %q: %w", product.ID, err)
		}
		result.Products++
	}
	logger.WithFields(log.Fields{
		"sub_categories": result.SubCategories,
		"products":       result.Products,
	}).Info("catalog seeded")
	return result, nil
}
