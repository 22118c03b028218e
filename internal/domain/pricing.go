package domain

import (
	"fmt"
	"sort"
	"strings"
)

// PriceQuote — результат пересчёта цены выбранной конфигурации товара.
type PriceQuote struct {
	ProductID      string           `json:"product_id"`
	Size           Size             `json:"size"`
	Options        []SelectedOption `json:"options"`
	Quantity       int              `json:"quantity"`
	UnitPriceMinor int64            `json:"unit_price_minor"`
	TotalMinor     int64            `json:"total_minor"`
}

// Quote считает цену: цена размера + сумма (цена опции × количество), умноженная на количество.
// Пустой размер означает размер по умолчанию. Повторяющиеся коды опций складываются.
func Quote(product Product, sizeName string, selections []OptionSelection, quantity int) (PriceQuote, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return PriceQuote{}, err
	}

	size := product.DefaultSize()
	if strings.TrimSpace(sizeName) != "" {
		found, ok := product.SizeByName(sizeName)
		if !ok {
			return PriceQuote{}, fmt.Errorf("%w: %q", ErrUnknownSize, sizeName)
		}
		size = found
	}
	if size.Name == "" {
		return PriceQuote{}, ErrProductSizesRequired
	}

	merged := make(map[string]int, len(selections))
	for _, sel := range selections {
		code := strings.TrimSpace(sel.Code)
		if sel.Quantity <= 0 {
			return PriceQuote{}, fmt.Errorf("%w: %q", ErrOptionQuantityInvalid, code)
		}
		merged[code] += sel.Quantity
	}

	codes := make([]string, 0, len(merged))
	for code := range merged {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	unit := size.PriceMinor
	options := make([]SelectedOption, 0, len(codes))
	for _, code := range codes {
		opt, ok := product.OptionByCode(code)
		if !ok {
			return PriceQuote{}, fmt.Errorf("%w: %q", ErrUnknownOption, code)
		}
		maxQty := opt.MaxQuantity
		if maxQty <= 0 {
			maxQty = 1
		}
		qty := merged[code]
		if qty > maxQty {
			return PriceQuote{}, fmt.Errorf("%w: %q allows at most %d", ErrOptionQuantityInvalid, code, maxQty)
		}
		unit += opt.PriceMinor * int64(qty)
		options = append(options, SelectedOption{
			Code:       opt.Code,
			Name:       opt.Name,
			Quantity:   qty,
			PriceMinor: opt.PriceMinor,
		})
	}

	return PriceQuote{
		ProductID:      product.ID,
		Size:           size,
		Options:        options,
		Quantity:       quantity,
		UnitPriceMinor: unit,
		TotalMinor:     unit * int64(quantity),
	}, nil
}

// SubtotalMinor — сумма строк корзины или заказа.
func SubtotalMinor(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotalMinor()
	}
	return total
}

// DeliveryPolicy описывает стоимость доставки.
type DeliveryPolicy struct {
	FeeMinor           int64
	FreeThresholdMinor int64
}

// FeeFor возвращает стоимость доставки для подытога; от порога доставка бесплатна.
func (d DeliveryPolicy) FeeFor(subtotal int64) int64 {
	if d.FeeMinor <= 0 {
		return 0
	}
	if d.FreeThresholdMinor > 0 && subtotal >= d.FreeThresholdMinor {
		return 0
	}
	return d.FeeMinor
}
