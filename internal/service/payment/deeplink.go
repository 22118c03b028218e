package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

const maxTransactionIDLen = 128

// DeepLink — разобранный <scheme>://payment-result?order_id=&status=&transaction_id=&amount=.
type DeepLink struct {
	OrderID       string
	Status        domain.PaymentLinkStatus
	TransactionID string
	// AmountMinor равен 0, если форма не передала сумму.
	AmountMinor int64
}

// ParseDeepLink проверяет схему, host и параметры ссылки.
func ParseDeepLink(raw, scheme string) (DeepLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return DeepLink{}, fmt.Errorf("%w: %v", domain.ErrDeepLinkInvalid, err)
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return DeepLink{}, fmt.Errorf("%w: unexpected scheme %q", domain.ErrDeepLinkInvalid, u.Scheme)
	}
	if !strings.EqualFold(u.Host, DeepLinkHost) {
		return DeepLink{}, fmt.Errorf("%w: unexpected host %q", domain.ErrDeepLinkInvalid, u.Host)
	}

	q := u.Query()
	link := DeepLink{
		OrderID:       strings.TrimSpace(q.Get("order_id")),
		Status:        domain.PaymentLinkStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		TransactionID: strings.TrimSpace(q.Get("transaction_id")),
	}
	if link.OrderID == "" {
		return DeepLink{}, fmt.Errorf("%w: order_id is required", domain.ErrDeepLinkInvalid)
	}
	if !link.Status.Valid() {
		return DeepLink{}, fmt.Errorf("%w: unknown status %q", domain.ErrDeepLinkInvalid, link.Status)
	}
	if len(link.TransactionID) > maxTransactionIDLen {
		return DeepLink{}, fmt.Errorf("%w: transaction_id is too long", domain.ErrDeepLinkInvalid)
	}
	if link.Status == domain.PaymentLinkSuccess && link.TransactionID == "" {
		return DeepLink{}, fmt.Errorf("%w: transaction_id is required for success", domain.ErrDeepLinkInvalid)
	}
	if raw := strings.TrimSpace(q.Get("amount")); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || amount <= 0 {
			return DeepLink{}, fmt.Errorf("%w: amount %q", domain.ErrDeepLinkInvalid, raw)
		}
		link.AmountMinor = amount
	}
	return link, nil
}

// Service применяет результат оплаты к заказу и настройкам клиента.
type Service struct {
	customers domain.CustomerRepository
	orders    domain.OrderRepository
	events    *orders.Recorder
	scheme    string
	metrics   *metrics.StorefrontMetrics
	logger    *log.Entry
	now       func() time.Time
}

// NewService создаёт обработчик deep link'ов оплаты.
func NewService(
	customers domain.CustomerRepository,
	orderRepo domain.OrderRepository,
	events *orders.Recorder,
	scheme string,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "payment-deeplink")
	}
	return &Service{
		customers: customers,
		orders:    orderRepo,
		events:    events,
		scheme:    scheme,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyDeepLink сохраняет результат в Preferences.LastPayment и переводит заказ:
// success — awaiting_payment -> placed с оплатой paid, failed/canceled — оплата failed.
// Повторное применение того же результата ничего не меняет.
func (s *Service) ApplyDeepLink(ctx context.Context, customerID, raw string) (domain.Order, error) {
	link, err := ParseDeepLink(raw, s.scheme)
	if err != nil {
		s.metrics.RecordDeepLink("invalid")
		return domain.Order{}, err
	}

	order, err := s.applyToOrder(ctx, customerID, link)
	if err != nil {
		s.metrics.RecordDeepLink("rejected")
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": customerID,
			"order_id":    link.OrderID,
			"status":      link.Status,
		}).Warn("payment deep link rejected")
		return domain.Order{}, err
	}

	if err := s.rememberResult(ctx, customerID, link); err != nil {
		return domain.Order{}, fmt.Errorf("store payment result: %w", err)
	}
	s.metrics.RecordDeepLink(string(link.Status))
	return order, nil
}

func (s *Service) applyToOrder(ctx context.Context, customerID string, link DeepLink) (domain.Order, error) {
	var (
		result  domain.Order
		changed bool
	)
	err := retry.OnVersionConflict(ctx, func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, link.OrderID)
		if err != nil {
			return err
		}
		if order.CustomerID != customerID {
			return domain.ErrOrderNotFound
		}
		if order.PaymentMethod != domain.PaymentMethodCard {
			return domain.ErrPaymentNotExpected
		}
		if link.AmountMinor != 0 && link.AmountMinor != order.TotalMinor {
			return fmt.Errorf("%w: amount %d does not match order total %d", domain.ErrDeepLinkInvalid, link.AmountMinor, order.TotalMinor)
		}

		changed = false
		switch link.Status {
		case domain.PaymentLinkSuccess:
			if order.PaymentStatus == domain.PaymentStatusPaid {
				result = order
				return nil
			}
			if order.Status != domain.OrderStatusAwaitingPayment {
				return fmt.Errorf("%w: order is %s", domain.ErrPaymentNotExpected, order.Status)
			}
			order.Status = domain.OrderStatusPlaced
			order.PaymentStatus = domain.PaymentStatusPaid
			order.TransactionID = link.TransactionID
		default:
			if order.PaymentStatus == domain.PaymentStatusFailed || order.PaymentStatus == domain.PaymentStatusPaid {
				result = order
				return nil
			}
			if order.Status != domain.OrderStatusAwaitingPayment {
				return fmt.Errorf("%w: order is %s", domain.ErrPaymentNotExpected, order.Status)
			}
			order.PaymentStatus = domain.PaymentStatusFailed
			if link.TransactionID != "" {
				order.TransactionID = link.TransactionID
			}
		}

		order.UpdatedAt = s.now().UTC()
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
		order.Version++
		result, changed = order, true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		eventType := ""
		if result.Status == domain.OrderStatusPlaced {
			eventType = domain.EventOrderStatusChanged
		}
		s.events.Record(ctx, result, domain.TimelinePaymentUpdated, eventType, string(result.PaymentStatus), result.UpdatedAt)
		s.logger.WithFields(log.Fields{
			"order_id":       result.ID,
			"payment_status": result.PaymentStatus,
		}).Info("payment result applied")
	}
	return result, nil
}

// rememberResult пишет последний результат оплаты в настройки клиента.
func (s *Service) rememberResult(ctx context.Context, customerID string, link DeepLink) error {
	return retry.OnVersionConflict(ctx, func(ctx context.Context) error {
		customer, err := s.customers.Get(ctx, customerID)
		if err != nil {
			return err
		}
		if last := customer.Preferences.LastPayment; last != nil &&
			last.OrderID == link.OrderID &&
			last.Status == link.Status &&
			last.TransactionID == link.TransactionID {
			return nil
		}

		now := s.now().UTC()
		customer.Preferences.LastPayment = &domain.PaymentResult{
			OrderID:       link.OrderID,
			Status:        link.Status,
			TransactionID: link.TransactionID,
			AmountMinor:   link.AmountMinor,
			ReceivedAt:    now,
		}
		customer.UpdatedAt = now
		return s.customers.Save(ctx, customer)
	})
}
