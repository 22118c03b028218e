// Package payment строит ссылки на платёжную форму и принимает результат оплаты,
// который форма возвращает в приложение через deep link.
package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

// DeepLinkHost — host deep link'а с результатом оплаты.
const DeepLinkHost = "payment-result"

// HostedGateway — внешняя платёжная форма: клиент открывает ссылку, платит и
// возвращается в приложение по <scheme>://payment-result.
type HostedGateway struct {
	base   *url.URL
	scheme string
}

// NewHostedGateway проверяет адрес формы и схему приложения.
func NewHostedGateway(baseURL, scheme string) (*HostedGateway, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("payment gateway base url %q is invalid", baseURL)
	}
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		return nil, fmt.Errorf("deep link scheme is required")
	}
	return &HostedGateway{base: base, scheme: scheme}, nil
}

// ReturnURL — deep link, на который форма возвращает клиента.
func (g *HostedGateway) ReturnURL() string {
	return g.scheme + "://" + DeepLinkHost
}

// CreatePaymentURL возвращает <base>/pay?order_id=..&amount=..&currency=..&return=...
func (g *HostedGateway) CreatePaymentURL(_ context.Context, order domain.Order) (string, error) {
	if order.ID == "" || order.TotalMinor <= 0 {
		return "", fmt.Errorf("payment url: order %q has nothing to pay", order.ID)
	}
	u := *g.base
	u.Path = strings.TrimRight(u.Path, "/") + "/pay"
	q := url.Values{}
	q.Set("order_id", order.ID)
	q.Set("amount", strconv.FormatInt(order.TotalMinor, 10))
	q.Set("currency", order.Currency)
	q.Set("return", g.ReturnURL())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// BreakerGateway защищает платёжную форму circuit breaker'ом: при серии ошибок
// оформление картой сразу получает retry.ErrCircuitOpen.
type BreakerGateway struct {
	next    domain.PaymentGateway
	breaker *retry.CircuitBreaker
}

// NewBreakerGateway оборачивает шлюз.
func NewBreakerGateway(next domain.PaymentGateway, breaker *retry.CircuitBreaker) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: breaker}
}

// CreatePaymentURL вызывает шлюз через breaker.
func (g *BreakerGateway) CreatePaymentURL(ctx context.Context, order domain.Order) (string, error) {
	var link string
	err := g.breaker.Execute("create_payment_url", func() error {
		var err error
		link, err = g.next.CreatePaymentURL(ctx, order)
		return err
	})
	return link, err
}

// MockGateway — конфигурируемая заглушка шлюза для тестов.
type MockGateway struct {
	mu    sync.Mutex
	URL   string
	Err   error
	Calls int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{URL: "https://pay.example.test/pay"}
}

// CreatePaymentURL возвращает настроенный результат и считает вызовы.
func (m *MockGateway) CreatePaymentURL(_ context.Context, order domain.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.URL + "?order_id=" + url.QueryEscape(order.ID), nil
}

var (
	_ domain.PaymentGateway = (*HostedGateway)(nil)
	_ domain.PaymentGateway = (*BreakerGateway)(nil)
	_ domain.PaymentGateway = (*MockGateway)(nil)
)
