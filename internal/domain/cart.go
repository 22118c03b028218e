package domain

import (
	"sort"
	"strings"
	"time"
)

// Ограничения количества одной позиции корзины.
const (
	MinCartQuantity = 1
	MaxCartQuantity = 20
)

// OptionSelection — выбор опции клиентом (вход операции добавления в корзину).
type OptionSelection struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// SelectedOption — опция с зафиксированной на момент добавления ценой.
type SelectedOption struct {
	Code       string `json:"code" bson:"code"`
	Name       string `json:"name" bson:"name"`
	Quantity   int    `json:"quantity" bson:"quantity"`
	PriceMinor int64  `json:"price_minor" bson:"price_minor"`
}

// CartItem — настроенная позиция корзины.
type CartItem struct {
	ID             string           `json:"id" bson:"id"`
	ProductID      string           `json:"product_id" bson:"product_id"`
	ProductName    string           `json:"product_name" bson:"product_name"`
	ImageURL       string           `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Size           string           `json:"size" bson:"size"`
	Options        []SelectedOption `json:"options" bson:"options"`
	Quantity       int              `json:"quantity" bson:"quantity"`
	UnitPriceMinor int64            `json:"unit_price_minor" bson:"unit_price_minor"`
	Note           string           `json:"note,omitempty" bson:"note,omitempty"`
	AddedAt        time.Time        `json:"added_at" bson:"added_at"`
}

// LineTotalMinor — стоимость строки корзины.
func (i CartItem) LineTotalMinor() int64 {
	return i.UnitPriceMinor * int64(i.Quantity)
}

// SameCustomization сообщает, описывают ли две позиции один и тот же напиток/блюдо.
func (i CartItem) SameCustomization(other CartItem) bool {
	if i.ProductID != other.ProductID ||
		!strings.EqualFold(i.Size, other.Size) ||
		strings.TrimSpace(i.Note) != strings.TrimSpace(other.Note) ||
		len(i.Options) != len(other.Options) {
		return false
	}
	a := optionKey(i.Options)
	b := optionKey(other.Options)
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

type optionQty struct {
	code string
	qty  int
}

func optionKey(options []SelectedOption) []optionQty {
	keys := make([]optionQty, 0, len(options))
	for _, o := range options {
		keys = append(keys, optionQty{code: o.Code, qty: o.Quantity})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].code < keys[j].code })
	return keys
}

// ValidateQuantity проверяет количество позиции.
func ValidateQuantity(qty int) error {
	if qty < MinCartQuantity || qty > MaxCartQuantity {
		return ErrCartQuantityInvalid
	}
	return nil
}

// CartSummary — корзина вместе с посчитанными суммами.
type CartSummary struct {
	Items            []CartItem `json:"items"`
	ItemCount        int        `json:"item_count"`
	Currency         string     `json:"currency"`
	SubtotalMinor    int64      `json:"subtotal_minor"`
	DeliveryFeeMinor int64      `json:"delivery_fee_minor"`
	TotalMinor       int64      `json:"total_minor"`
}

// Summarize считает итоги корзины по правилам доставки.
func Summarize(items []CartItem, currency string, delivery DeliveryPolicy) CartSummary {
	subtotal := SubtotalMinor(items)
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	fee := int64(0)
	if len(items) > 0 {
		fee = delivery.FeeFor(subtotal)
	}
	if items == nil {
		items = []CartItem{}
	}
	return CartSummary{
		Items:            items,
		ItemCount:        count,
		Currency:         currency,
		SubtotalMinor:    subtotal,
		DeliveryFeeMinor: fee,
		TotalMinor:       subtotal + fee,
	}
}

// FindCartItem возвращает индекс позиции по ID или -1.
func FindCartItem(items []CartItem, id string) int {
	for idx, item := range items {
		if item.ID == id {
			return idx
		}
	}
	return -1
}
