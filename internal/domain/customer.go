package domain

import (
	"strconv"
	"time"
)

// Role определяет права клиента в API.
type Role string

const (
	// RoleCustomer — обычный покупатель мобильного приложения.
	RoleCustomer Role = "customer"
	// RoleStaff — сотрудник кофейни (управление каталогом и заказами).
	RoleStaff Role = "staff"
)

// Address — адрес доставки из формы оформления заказа или профиля.
type Address struct {
	Label        string `json:"label,omitempty" bson:"label,omitempty"`
	Line1        string `json:"line1" bson:"line1"`
	Line2        string `json:"line2,omitempty" bson:"line2,omitempty"`
	City         string `json:"city" bson:"city"`
	PostalCode   string `json:"postal_code" bson:"postal_code"`
	Phone        string `json:"phone" bson:"phone"`
	Instructions string `json:"instructions,omitempty" bson:"instructions,omitempty"`
}

// Validate проверяет поля адреса по диапазонам длины.
func (a Address) Validate() error {
	var v Validator
	v.Optional("label", a.Label, AddressLabelMaxLen)
	v.Length("line1", a.Line1, AddressLineMinLen, AddressLineMaxLen)
	v.Optional("line2", a.Line2, AddressLineMaxLen)
	v.Length("city", a.City, CityMinLen, CityMaxLen)
	v.Length("postal_code", a.PostalCode, PostalCodeMinLen, PostalCodeMaxLen)
	ValidatePhone(&v, "phone", a.Phone)
	v.Optional("instructions", a.Instructions, InstructionsMaxLen)
	return v.Err()
}

// PaymentResult — последний результат онлайн-оплаты, полученный через deep link.
type PaymentResult struct {
	OrderID       string            `json:"order_id" bson:"order_id"`
	Status        PaymentLinkStatus `json:"status" bson:"status"`
	TransactionID string            `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	AmountMinor   int64             `json:"amount_minor,omitempty" bson:"amount_minor,omitempty"`
	ReceivedAt    time.Time         `json:"received_at" bson:"received_at"`
}

// Preferences — пользовательские настройки, которые раньше жили в локальном хранилище приложения.
type Preferences struct {
	Locale               string         `json:"locale,omitempty" bson:"locale,omitempty"`
	DefaultPaymentMethod PaymentMethod  `json:"default_payment_method,omitempty" bson:"default_payment_method,omitempty"`
	DefaultAddressIndex  int            `json:"default_address_index" bson:"default_address_index"`
	LastPayment          *PaymentResult `json:"last_payment,omitempty" bson:"last_payment,omitempty"`
}

// Customer — документ коллекции customer; корзина хранится внутри него.
type Customer struct {
	ID           string      `json:"id" bson:"_id"`
	Email        string      `json:"email" bson:"email"`
	Name         string      `json:"name" bson:"name"`
	Phone        string      `json:"phone" bson:"phone"`
	PasswordHash string      `json:"-" bson:"password_hash"`
	Role         Role        `json:"role" bson:"role"`
	Addresses    []Address   `json:"addresses" bson:"addresses"`
	Cart         []CartItem  `json:"cart" bson:"cart"`
	Preferences  Preferences `json:"preferences" bson:"preferences"`
	Version      int64       `json:"version" bson:"version"`
	CreatedAt    time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" bson:"updated_at"`
}

// DefaultAddress возвращает адрес по умолчанию, если он есть.
func (c *Customer) DefaultAddress() (Address, bool) {
	if len(c.Addresses) == 0 {
		return Address{}, false
	}
	idx := c.Preferences.DefaultAddressIndex
	if idx < 0 || idx >= len(c.Addresses) {
		idx = 0
	}
	return c.Addresses[idx], true
}

// ValidateProfile проверяет поля формы профиля.
func (c *Customer) ValidateProfile() error {
	var v Validator
	ValidateName(&v, "name", c.Name)
	ValidatePhone(&v, "phone", c.Phone)
	for i, addr := range c.Addresses {
		v.Merge(addressField(i), addr.Validate())
	}
	if m := c.Preferences.DefaultPaymentMethod; m != "" && !m.Valid() {
		v.Add("preferences.default_payment_method", "must be cash or card")
	}
	return v.Err()
}

func addressField(i int) string {
	return "addresses[" + strconv.Itoa(i) + "]"
}
