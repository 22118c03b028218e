// Package checkout превращает корзину клиента в заказ.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

// Request — данные формы оформления заказа.
type Request struct {
	// Если Address пустой (без Line1), берётся адрес по умолчанию из профиля.
	Address       domain.Address       `json:"address"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Note          string               `json:"note"`
}

// Config — валюта магазина и правила доставки.
type Config struct {
	Currency string
	Delivery domain.DeliveryPolicy
}

// Service оформляет заказы.
type Service struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	orders    domain.OrderRepository
	gateway   domain.PaymentGateway
	events    *orders.Recorder
	cfg       Config
	metrics   *metrics.StorefrontMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// NewService создаёт сервис оформления заказа.
func NewService(
	customers domain.CustomerRepository,
	products domain.ProductRepository,
	orderRepo domain.OrderRepository,
	gateway domain.PaymentGateway,
	events *orders.Recorder,
	cfg Config,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Service{
		customers: customers,
		products:  products,
		orders:    orderRepo,
		gateway:   gateway,
		events:    events,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// PlaceOrder проверяет форму, пересчитывает корзину по текущему каталогу,
// сохраняет заказ и очищает оформленные позиции корзины.
func (s *Service) PlaceOrder(ctx context.Context, customerID string, req Request) (domain.Order, error) {
	started := s.now()
	s.metrics.RecordCheckoutStarted()
	defer func() { s.metrics.RecordCheckoutFinished(s.now().Sub(started)) }()

	order, err := s.placeOrder(ctx, customerID, req)
	if err != nil {
		s.metrics.RecordCheckoutFailed()
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("checkout failed")
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, customerID string, req Request) (domain.Order, error) {
	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(customer.Cart) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}

	address := req.Address
	if strings.TrimSpace(address.Line1) == "" {
		if def, ok := customer.DefaultAddress(); ok {
			address = def
		}
	}
	method := req.PaymentMethod
	if method == "" {
		method = customer.Preferences.DefaultPaymentMethod
	}

	var v domain.Validator
	v.Merge("address", address.Validate())
	if !method.Valid() {
		v.Add("payment_method", "must be cash or card")
	}
	domain.ValidateNote(&v, "note", req.Note)
	if err := v.Err(); err != nil {
		return domain.Order{}, err
	}

	items, err := s.repriceCart(ctx, customer.Cart)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:              s.newID(),
		CustomerID:      customer.ID,
		Status:          domain.OrderStatusPlaced,
		Items:           items,
		Currency:        s.cfg.Currency,
		SubtotalMinor:   domain.OrderSubtotalMinor(items),
		DeliveryAddress: trimAddress(address),
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusNotRequired,
		Note:            strings.TrimSpace(req.Note),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.DeliveryFeeMinor = s.cfg.Delivery.FeeFor(order.SubtotalMinor)
	order.TotalMinor = order.SubtotalMinor + order.DeliveryFeeMinor
	if cartSubtotal := domain.SubtotalMinor(customer.Cart); cartSubtotal != order.SubtotalMinor {
		s.logger.WithFields(log.Fields{
			"customer_id":    customer.ID,
			"cart_subtotal":  cartSubtotal,
			"order_subtotal": order.SubtotalMinor,
		}).Info("cart prices changed since items were added")
	}

	// Заказ без суммы к оплате оформляется как наличный: платёжной форме нечего списывать.
	if method == domain.PaymentMethodCard && order.TotalMinor > 0 {
		order.Status = domain.OrderStatusAwaitingPayment
		order.PaymentStatus = domain.PaymentStatusPending
		url, err := s.gateway.CreatePaymentURL(ctx, order)
		if err != nil {
			return domain.Order{}, fmt.Errorf("create payment url: %w", err)
		}
		order.PaymentURL = url
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("order invariants: %w", errs[0])
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.metrics.RecordOrderPlaced(string(method))
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"customer_id":    customer.ID,
		"payment_method": method,
		"total_minor":    order.TotalMinor,
	}).Info("order placed")

	s.events.Record(ctx, order, domain.TimelineOrderPlaced, domain.EventOrderCreated, string(method), now)
	s.clearOrderedLines(ctx, customer, items)

	return order, nil
}

// repriceCart пересчитывает каждую позицию по текущему каталогу.
func (s *Service) repriceCart(ctx context.Context, cart []domain.CartItem) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(cart))
	for _, line := range cart {
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, fmt.Errorf("%w: %s is no longer on the menu", domain.ErrProductUnavailable, line.ProductName)
			}
			return nil, err
		}
		if !product.Available {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, product.Name)
		}

		selections := make([]domain.OptionSelection, 0, len(line.Options))
		for _, o := range line.Options {
			selections = append(selections, domain.OptionSelection{Code: o.Code, Quantity: o.Quantity})
		}
		quote, err := domain.Quote(product, line.Size, selections, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", product.Name, err)
		}

		line.ProductName = product.Name
		line.ImageURL = product.ImageURL
		line.Size = quote.Size.Name
		line.Options = quote.Options
		line.UnitPriceMinor = quote.UnitPriceMinor
		items = append(items, domain.OrderItemFromCart(line))
	}
	return items, nil
}

// clearOrderedLines убирает из корзины оформленные позиции. Если клиент успел изменить
// корзину, документ перечитывается и удаляются только позиции заказа.
func (s *Service) clearOrderedLines(ctx context.Context, customer domain.Customer, items []domain.OrderItem) {
	ordered := make(map[string]struct{}, len(items))
	for _, item := range items {
		ordered[item.ID] = struct{}{}
	}

	first := true
	err := retry.OnVersionConflict(ctx, func(ctx context.Context) error {
		if !first {
			fresh, err := s.customers.Get(ctx, customer.ID)
			if err != nil {
				return err
			}
			customer = fresh
		}
		first = false

		remaining := make([]domain.CartItem, 0, len(customer.Cart))
		for _, line := range customer.Cart {
			if _, done := ordered[line.ID]; !done {
				remaining = append(remaining, line)
			}
		}
		customer.Cart = remaining
		customer.UpdatedAt = s.now().UTC()
		return s.customers.Save(ctx, customer)
	})
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customer.ID).Error("clear cart after checkout failed")
	}
}

func trimAddress(a domain.Address) domain.Address {
	a.Label = strings.TrimSpace(a.Label)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Instructions = strings.TrimSpace(a.Instructions)
	return a
}
