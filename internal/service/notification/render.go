package notification

import (
	"fmt"
	"html"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// Ключи сообщений письма о новом заказе.
const (
	keySubject     = "Your %s order %s"
	keyGreeting    = "Hi %s,"
	keyThanks      = "Thanks for your order! We received it and will start preparing it soon."
	keyAwaitingPay = "Your order is waiting for card payment. Complete it here: %s"
	keyCash        = "Please have %s ready for the courier."
	keyItems       = "Items"
	keyItemLine    = "%d × %s (%s)"
	keySubtotal    = "Subtotal: %s"
	keyDelivery    = "Delivery: %s"
	keyTotal       = "Total: %s"
	keyDeliverTo   = "Delivering to: %s"
	keyFree        = "free"
	keySignature   = "See you soon, %s"
)

var supportedLocales = []language.Tag{language.English, language.Russian}

var localeMatcher = language.NewMatcher(supportedLocales)

var translations = map[language.Tag]map[string]string{
	language.Russian: {
		keySubject:     "Ваш заказ в %s: %s",
		keyGreeting:    "Здравствуйте, %s!",
		keyThanks:      "Спасибо за заказ! Мы его получили и скоро начнём готовить.",
		keyAwaitingPay: "Заказ ожидает оплаты картой. Оплатить можно по ссылке: %s",
		keyCash:        "Пожалуйста, подготовьте %s для курьера.",
		keyItems:       "Состав заказа",
		keyItemLine:    "%d × %s (%s)",
		keySubtotal:    "Сумма: %s",
		keyDelivery:    "Доставка: %s",
		keyTotal:       "Итого: %s",
		keyDeliverTo:   "Адрес доставки: %s",
		keyFree:        "бесплатно",
		keySignature:   "До встречи, %s",
	},
}

// Renderer собирает локализованное письмо о заказе.
type Renderer struct {
	catalog       catalog.Catalog
	defaultLocale language.Tag
	storeName     string
}

// NewRenderer регистрирует переводы; английский текст служит ключом и fallback'ом.
func NewRenderer(storeName, defaultLocale string) (*Renderer, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, messages := range translations {
		for key, msg := range messages {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("register %s message %q: %w", tag, key, err)
			}
		}
	}

	r := &Renderer{catalog: builder, storeName: storeName, defaultLocale: language.English}
	if defaultLocale != "" {
		r.defaultLocale = r.match(defaultLocale, language.English)
	}
	return r, nil
}

// Rendered — готовые поля письма.
type Rendered struct {
	Locale  string
	Subject string
	Text    string
	HTML    string
}

// Render формирует тему, текст и HTML письма на языке клиента.
func (r *Renderer) Render(order domain.Order, customer domain.Customer) Rendered {
	tag := r.match(customer.Preferences.Locale, r.defaultLocale)
	p := message.NewPrinter(tag, message.Catalog(r.catalog))
	money := moneyFormatter(p, order.Currency)

	shortID := order.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	var paymentLine string
	switch {
	case order.PaymentMethod == domain.PaymentMethodCard && order.PaymentURL != "":
		paymentLine = p.Sprintf(keyAwaitingPay, order.PaymentURL)
	case order.PaymentMethod == domain.PaymentMethodCash:
		paymentLine = p.Sprintf(keyCash, money(order.TotalMinor))
	}

	delivery := p.Sprintf(keyFree)
	if order.DeliveryFeeMinor > 0 {
		delivery = money(order.DeliveryFeeMinor)
	}

	itemLines := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		itemLines = append(itemLines, p.Sprintf(keyItemLine, item.Quantity, describeItem(item), money(item.LineTotalMinor)))
	}

	paragraphs := []string{
		p.Sprintf(keyGreeting, customer.Name),
		p.Sprintf(keyThanks),
	}
	if paymentLine != "" {
		paragraphs = append(paragraphs, paymentLine)
	}
	totals := []string{
		p.Sprintf(keySubtotal, money(order.SubtotalMinor)),
		p.Sprintf(keyDelivery, delivery),
		p.Sprintf(keyTotal, money(order.TotalMinor)),
	}
	address := p.Sprintf(keyDeliverTo, formatAddress(order.DeliveryAddress))
	signature := p.Sprintf(keySignature, r.storeName)

	var text strings.Builder
	for _, para := range paragraphs {
		text.WriteString(para + "\n\n")
	}
	text.WriteString(p.Sprintf(keyItems) + ":\n")
	for _, line := range itemLines {
		text.WriteString("- " + line + "\n")
	}
	text.WriteString("\n" + strings.Join(totals, "\n") + "\n\n")
	text.WriteString(address + "\n\n" + signature + "\n")

	var body strings.Builder
	body.WriteString("<html><body>")
	for _, para := range paragraphs {
		body.WriteString("<p>" + html.EscapeString(para) + "</p>")
	}
	body.WriteString("<h3>" + html.EscapeString(p.Sprintf(keyItems)) + "</h3><ul>")
	for _, line := range itemLines {
		body.WriteString("<li>" + html.EscapeString(line) + "</li>")
	}
	body.WriteString("</ul><p>")
	for i, line := range totals {
		if i > 0 {
			body.WriteString("<br>")
		}
		body.WriteString(html.EscapeString(line))
	}
	body.WriteString("</p><p>" + html.EscapeString(address) + "</p>")
	body.WriteString("<p>" + html.EscapeString(signature) + "</p></body></html>")

	return Rendered{
		Locale:  tag.String(),
		Subject: p.Sprintf(keySubject, r.storeName, shortID),
		Text:    text.String(),
		HTML:    body.String(),
	}
}

func (r *Renderer) match(locale string, fallback language.Tag) language.Tag {
	if strings.TrimSpace(locale) == "" {
		return fallback
	}
	parsed, err := language.Parse(locale)
	if err != nil {
		return fallback
	}
	_, idx, confidence := localeMatcher.Match(parsed)
	if confidence == language.No {
		return fallback
	}
	return supportedLocales[idx]
}

// moneyFormatter печатает сумму в минорных единицах с символом валюты и
// разделителями выбранной локали.
func moneyFormatter(p *message.Printer, code string) func(int64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return func(minor int64) string {
			return p.Sprint(number.Decimal(float64(minor)/100, number.Scale(2))) + " " + code
		}
	}
	scale, _ := currency.Standard.Rounding(unit)
	divisor := math.Pow10(scale)
	symbol := p.Sprint(currency.Symbol(unit))
	return func(minor int64) string {
		return symbol + p.Sprint(number.Decimal(float64(minor)/divisor, number.Scale(scale)))
	}
}

func describeItem(item domain.OrderItem) string {
	parts := []string{item.ProductName, item.Size}
	for _, opt := range item.Options {
		if opt.Quantity > 1 {
			parts = append(parts, fmt.Sprintf("%s ×%d", opt.Name, opt.Quantity))
		} else {
			parts = append(parts, opt.Name)
		}
	}
	if item.Note != "" {
		parts = append(parts, "“"+item.Note+"”")
	}
	return strings.Join(parts, ", ")
}

func formatAddress(a domain.Address) string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, a.City, a.PostalCode)
	return strings.Join(parts, ", ")
}
