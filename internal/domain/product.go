package domain

import (
	"strings"
	"time"
)

// Category — верхний уровень таксономии каталога.
type Category string

const (
	// CategoryBeverage — напитки.
	CategoryBeverage Category = "beverage"
	// CategoryFood — еда.
	CategoryFood Category = "food"
)

// Valid проверяет, что категория поддерживается.
func (c Category) Valid() bool {
	switch c {
	case CategoryBeverage, CategoryFood:
		return true
	default:
		return false
	}
}

// SubCategory — второй уровень таксономии (например, "hot-coffee" или "bakery").
type SubCategory struct {
	ID        string   `json:"id" yaml:"id" bson:"id"`
	Category  Category `json:"category" yaml:"category" bson:"category"`
	Name      string   `json:"name" yaml:"name" bson:"name"`
	SortOrder int      `json:"sort_order" yaml:"sort_order" bson:"sort_order"`
}

// CategoryGroup — категория вместе с подкатегориями для экрана каталога.
type CategoryGroup struct {
	Category      Category      `json:"category"`
	SubCategories []SubCategory `json:"sub_categories"`
}

// Size — вариант объёма/порции со своей ценой.
type Size struct {
	Name       string `json:"name" yaml:"name" bson:"name"`
	PriceMinor int64  `json:"price_minor" yaml:"price_minor" bson:"price_minor"`
	VolumeML   int    `json:"volume_ml,omitempty" yaml:"volume_ml" bson:"volume_ml,omitempty"`
}

// Option — платная или бесплатная добавка (шот эспрессо, сироп, альтернативное молоко).
type Option struct {
	Code        string `json:"code" yaml:"code" bson:"code"`
	Name        string `json:"name" yaml:"name" bson:"name"`
	PriceMinor  int64  `json:"price_minor" yaml:"price_minor" bson:"price_minor"`
	MaxQuantity int    `json:"max_quantity" yaml:"max_quantity" bson:"max_quantity"`
}

// Product — документ коллекции product.
type Product struct {
	ID            string    `json:"id" bson:"_id"`
	Name          string    `json:"name" bson:"name"`
	Description   string    `json:"description" bson:"description"`
	ImageURL      string    `json:"image_url" bson:"image_url"`
	Category      Category  `json:"category" bson:"category"`
	SubCategoryID string    `json:"sub_category_id" bson:"sub_category_id"`
	Sizes         []Size    `json:"sizes" bson:"sizes"`
	Options       []Option  `json:"options" bson:"options"`
	Available     bool      `json:"available" bson:"available"`
	SortOrder     int       `json:"sort_order" bson:"sort_order"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

// ProductFilter задаёт параметры выборки каталога.
type ProductFilter struct {
	Category      Category
	SubCategoryID string
	Query         string
	OnlyAvailable bool
	Limit         int
}

// Matches применяет фильтр к товару (используется in-memory и кешем).
func (f ProductFilter) Matches(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.SubCategoryID != "" && p.SubCategoryID != f.SubCategoryID {
		return false
	}
	if f.OnlyAvailable && !p.Available {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	return true
}

// SizeByName ищет размер без учёта регистра.
func (p *Product) SizeByName(name string) (Size, bool) {
	for _, s := range p.Sizes {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, true
		}
	}
	return Size{}, false
}

// OptionByCode ищет опцию по коду.
func (p *Product) OptionByCode(code string) (Option, bool) {
	for _, o := range p.Options {
		if o.Code == strings.TrimSpace(code) {
			return o, true
		}
	}
	return Option{}, false
}

// DefaultSize — первый размер в списке.
func (p *Product) DefaultSize() Size {
	if len(p.Sizes) == 0 {
		return Size{}
	}
	return p.Sizes[0]
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if !p.Category.Valid() {
		errs = append(errs, ErrProductCategoryInvalid)
	}
	if len(p.Sizes) == 0 {
		errs = append(errs, ErrProductSizesRequired)
	}

	priceInvalid := false
	sizes := make(map[string]struct{}, len(p.Sizes))
	for _, s := range p.Sizes {
		if s.PriceMinor < 0 {
			priceInvalid = true
		}
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if _, dup := sizes[key]; dup || key == "" {
			errs = append(errs, ErrProductDuplicateSize)
		}
		sizes[key] = struct{}{}
	}

	options := make(map[string]struct{}, len(p.Options))
	for _, o := range p.Options {
		if o.PriceMinor < 0 {
			priceInvalid = true
		}
		if _, dup := options[o.Code]; dup || o.Code == "" {
			errs = append(errs, ErrProductDuplicateOption)
		}
		options[o.Code] = struct{}{}
	}
	if priceInvalid {
		errs = append(errs, ErrProductPriceInvalid)
	}

	return errs
}
