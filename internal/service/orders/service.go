// Package orders отдаёт историю заказов клиенту и меняет статусы заказов.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxReasonLen     = 200
)

// Service — история заказов и смена статусов.
type Service struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	events   *Recorder
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	events *Recorder,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{
		orders:   orders,
		timeline: timeline,
		events:   events,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ListOrders возвращает заказы клиента, новые первыми.
func (s *Service) ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, domain.ErrCustomerRequired
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder возвращает заказ клиента. Чужой заказ выглядит как отсутствующий.
func (s *Service) GetOrder(ctx context.Context, customerID, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.CustomerID != customerID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// GetAnyOrder — чтение заказа персоналом, без проверки владельца.
func (s *Service) GetAnyOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// Timeline возвращает историю заказа клиента.
func (s *Service) Timeline(ctx context.Context, customerID, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetOrder(ctx, customerID, orderID); err != nil {
		return nil, err
	}
	return s.timelineOf(ctx, orderID)
}

// OrderTimeline — история заказа для персонала.
func (s *Service) OrderTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.timelineOf(ctx, orderID)
}

func (s *Service) timelineOf(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}

// UpdateStatus переводит заказ в новый статус по таблице переходов (действие персонала).
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) (domain.Order, error) {
	if !status.Valid() {
		var v domain.Validator
		v.Add("status", "unknown order status %q", status)
		return domain.Order{}, v.Err()
	}
	if err := validateReason(reason); err != nil {
		return domain.Order{}, err
	}

	return s.transition(ctx, orderID, reason, func(order *domain.Order) error {
		if order.Status == status {
			return errNoChange
		}
		// Оплату подтверждает только результат платёжной формы; персонал может лишь отменить заказ.
		if order.Status == domain.OrderStatusAwaitingPayment && status != domain.OrderStatusCanceled {
			return fmt.Errorf("%w: %s -> %s waits for the payment result", domain.ErrOrderStatusTransition, order.Status, status)
		}
		if !domain.CanTransition(order.Status, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrOrderStatusTransition, order.Status, status)
		}
		order.Status = status
		return nil
	})
}

// Cancel отменяет заказ по просьбе клиента, пока его не начали готовить.
func (s *Service) Cancel(ctx context.Context, customerID, orderID, reason string) (domain.Order, error) {
	if err := validateReason(reason); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.GetOrder(ctx, customerID, orderID); err != nil {
		return domain.Order{}, err
	}

	return s.transition(ctx, orderID, reason, func(order *domain.Order) error {
		if order.Status == domain.OrderStatusCanceled {
			return errNoChange
		}
		if !order.Status.CustomerCancelable() {
			return fmt.Errorf("%w: status %s", domain.ErrOrderNotCancelable, order.Status)
		}
		order.Status = domain.OrderStatusCanceled
		return nil
	})
}

var errNoChange = errors.New("order already in requested state")

// transition перечитывает заказ, применяет change и сохраняет с проверкой версии.
func (s *Service) transition(
	ctx context.Context,
	orderID, reason string,
	change func(*domain.Order) error,
) (domain.Order, error) {
	var (
		updated domain.Order
		changed bool
	)
	err := retry.OnVersionConflict(ctx, func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := change(&order); err != nil {
			if errors.Is(err, errNoChange) {
				updated, changed = order, false
				return nil
			}
			return err
		}
		order.UpdatedAt = s.now().UTC()
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
		order.Version++
		updated, changed = order, true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return updated, nil
	}

	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"status":   updated.Status,
	}).Info("order status changed")
	s.metrics.RecordStatusChange(string(updated.Status))
	if updated.Status == domain.OrderStatusCanceled {
		s.metrics.RecordOrderCanceled()
	}
	s.events.Record(ctx, updated, domain.TimelineStatusChanged, domain.EventOrderStatusChanged, statusReason(updated.Status, reason), updated.UpdatedAt)
	return updated, nil
}

func statusReason(status domain.OrderStatus, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return string(status)
	}
	return string(status) + ": " + reason
}

func validateReason(reason string) error {
	var v domain.Validator
	v.Optional("reason", reason, maxReasonLen)
	return v.Err()
}
