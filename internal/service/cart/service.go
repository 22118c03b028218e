// Package cart изменяет корзину, которая хранится внутри документа клиента.
package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

const maxCartLines = 50

// AddItemInput — добавление настроенного товара.
type AddItemInput struct {
	ProductID string                   `json:"product_id"`
	Size      string                   `json:"size"`
	Options   []domain.OptionSelection `json:"options"`
	Quantity  int                      `json:"quantity"`
	Note      string                   `json:"note"`
}

// UpdateItemInput — изменение позиции; nil-поля остаются прежними, Quantity=0 удаляет позицию.
type UpdateItemInput struct {
	Size     *string                   `json:"size,omitempty"`
	Options  *[]domain.OptionSelection `json:"options,omitempty"`
	Quantity *int                      `json:"quantity,omitempty"`
	Note     *string                   `json:"note,omitempty"`
}

// Config — параметры магазина, влияющие на итоги корзины.
type Config struct {
	Currency string
	Delivery domain.DeliveryPolicy
}

// Service управляет корзиной клиента.
type Service struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	cfg       Config
	logger    *log.Entry
	metrics   *metrics.StorefrontMetrics
	now       func() time.Time
}

// NewService создаёт сервис корзины.
func NewService(
	customers domain.CustomerRepository,
	products domain.ProductRepository,
	cfg Config,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{
		customers: customers,
		products:  products,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// GetCart возвращает корзину с итогами.
func (s *Service) GetCart(ctx context.Context, customerID string) (domain.CartSummary, error) {
	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	return s.summarize(customer.Cart), nil
}

// AddItem пересчитывает цену на сервере и добавляет позицию; одинаковая настройка
// складывает количества.
func (s *Service) AddItem(ctx context.Context, customerID string, in AddItemInput) (domain.CartSummary, error) {
	var v domain.Validator
	if strings.TrimSpace(in.ProductID) == "" {
		v.Add("product_id", "is required")
	}
	domain.ValidateNote(&v, "note", in.Note)
	if err := v.Err(); err != nil {
		return domain.CartSummary{}, err
	}

	item, err := s.priceItem(ctx, in.ProductID, in.Size, in.Options, in.Quantity, in.Note)
	if err != nil {
		return domain.CartSummary{}, err
	}

	return s.mutate(ctx, customerID, "add", func(items []domain.CartItem) ([]domain.CartItem, error) {
		for i := range items {
			if items[i].SameCustomization(item) {
				merged := items[i].Quantity + item.Quantity
				if err := domain.ValidateQuantity(merged); err != nil {
					return nil, err
				}
				items[i].Quantity = merged
				items[i].UnitPriceMinor = item.UnitPriceMinor
				return items, nil
			}
		}
		if len(items) >= maxCartLines {
			var v domain.Validator
			v.Add("items", "cart can hold at most %d lines", maxCartLines)
			return nil, v.Err()
		}
		item.ID = uuid.NewString()
		item.AddedAt = s.now().UTC()
		return append(items, item), nil
	})
}

// UpdateItem меняет размер, опции, количество или комментарий позиции.
func (s *Service) UpdateItem(ctx context.Context, customerID, itemID string, in UpdateItemInput) (domain.CartSummary, error) {
	if in.Quantity != nil && *in.Quantity == 0 {
		return s.RemoveItem(ctx, customerID, itemID)
	}
	if in.Note != nil {
		var v domain.Validator
		domain.ValidateNote(&v, "note", *in.Note)
		if err := v.Err(); err != nil {
			return domain.CartSummary{}, err
		}
	}

	return s.mutate(ctx, customerID, "update", func(items []domain.CartItem) ([]domain.CartItem, error) {
		idx := domain.FindCartItem(items, itemID)
		if idx < 0 {
			return nil, domain.ErrCartItemNotFound
		}
		current := items[idx]

		size := current.Size
		if in.Size != nil {
			size = *in.Size
		}
		selections := toSelections(current.Options)
		if in.Options != nil {
			selections = *in.Options
		}
		qty := current.Quantity
		if in.Quantity != nil {
			qty = *in.Quantity
		}
		note := current.Note
		if in.Note != nil {
			note = *in.Note
		}

		repriced, err := s.priceItem(ctx, current.ProductID, size, selections, qty, note)
		if err != nil {
			return nil, err
		}
		repriced.ID = current.ID
		repriced.AddedAt = current.AddedAt

		// Если после изменения позиция совпала с другой, объединяем их.
		for i := range items {
			if i != idx && items[i].SameCustomization(repriced) {
				merged := items[i].Quantity + repriced.Quantity
				if err := domain.ValidateQuantity(merged); err != nil {
					return nil, err
				}
				items[i].Quantity = merged
				items[i].UnitPriceMinor = repriced.UnitPriceMinor
				return append(items[:idx], items[idx+1:]...), nil
			}
		}
		items[idx] = repriced
		return items, nil
	})
}

// RemoveItem удаляет позицию корзины.
func (s *Service) RemoveItem(ctx context.Context, customerID, itemID string) (domain.CartSummary, error) {
	return s.mutate(ctx, customerID, "remove", func(items []domain.CartItem) ([]domain.CartItem, error) {
		idx := domain.FindCartItem(items, itemID)
		if idx < 0 {
			return nil, domain.ErrCartItemNotFound
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, customerID string) (domain.CartSummary, error) {
	return s.mutate(ctx, customerID, "clear", func([]domain.CartItem) ([]domain.CartItem, error) {
		return []domain.CartItem{}, nil
	})
}

// mutate перечитывает клиента, применяет изменение и сохраняет с проверкой версии;
// при конфликте версий изменение повторяется один раз.
func (s *Service) mutate(
	ctx context.Context,
	customerID, operation string,
	change func([]domain.CartItem) ([]domain.CartItem, error),
) (domain.CartSummary, error) {
	var summary domain.CartSummary
	err := retry.OnVersionConflict(ctx, func(ctx context.Context) error {
		customer, err := s.customers.Get(ctx, customerID)
		if err != nil {
			return err
		}

		items := make([]domain.CartItem, len(customer.Cart))
		copy(items, customer.Cart)
		items, err = change(items)
		if err != nil {
			return err
		}

		customer.Cart = items
		customer.UpdatedAt = s.now().UTC()
		if err := s.customers.Save(ctx, customer); err != nil {
			return err
		}
		summary = s.summarize(items)
		return nil
	})
	if err != nil {
		if domain.IsVersionConflict(err) {
			s.logger.WithFields(log.Fields{
				"customer_id": customerID,
				"operation":   operation,
			}).Warn("cart update lost version race twice")
		}
		return domain.CartSummary{}, err
	}

	s.metrics.RecordCartMutation(operation)
	return summary, nil
}

func (s *Service) priceItem(
	ctx context.Context,
	productID, size string,
	selections []domain.OptionSelection,
	qty int,
	note string,
) (domain.CartItem, error) {
	product, err := s.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.CartItem{}, err
	}
	if !product.Available {
		return domain.CartItem{}, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, product.Name)
	}

	quote, err := domain.Quote(product, size, selections, qty)
	if err != nil {
		return domain.CartItem{}, err
	}

	return domain.CartItem{
		ProductID:      product.ID,
		ProductName:    product.Name,
		ImageURL:       product.ImageURL,
		Size:           quote.Size.Name,
		Options:        quote.Options,
		Quantity:       quote.Quantity,
		UnitPriceMinor: quote.UnitPriceMinor,
		Note:           strings.TrimSpace(note),
	}, nil
}

func (s *Service) summarize(items []domain.CartItem) domain.CartSummary {
	return domain.Summarize(items, s.cfg.Currency, s.cfg.Delivery)
}

func toSelections(options []domain.SelectedOption) []domain.OptionSelection {
	result := make([]domain.OptionSelection, 0, len(options))
	for _, o := range options {
		result = append(result, domain.OptionSelection{Code: o.Code, Quantity: o.Quantity})
	}
	return result
}
