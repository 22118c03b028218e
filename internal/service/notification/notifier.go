// Package notification создаёт письмо о новом заказе: на событие order.created
// в коллекцию mail пишется документ, который забирает расширение отправки почты.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
)

// Config — отправитель и язык по умолчанию.
type Config struct {
	From          string
	StoreName     string
	DefaultLocale string
}

// Notifier обрабатывает события заказа.
type Notifier struct {
	orders    domain.OrderRepository
	customers domain.CustomerRepository
	mails     domain.MailRepository
	events    *orders.Recorder
	renderer  *Renderer
	cfg       Config
	metrics   *metrics.StorefrontMetrics
	logger    *log.Entry
	now       func() time.Time
}

// NewNotifier создаёт обработчик письма о заказе.
func NewNotifier(
	orderRepo domain.OrderRepository,
	customers domain.CustomerRepository,
	mails domain.MailRepository,
	events *orders.Recorder,
	cfg Config,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) (*Notifier, error) {
	if logger == nil {
		logger = log.WithField("component", "notification")
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "Coffee Shop"
	}
	renderer, err := NewRenderer(cfg.StoreName, cfg.DefaultLocale)
	if err != nil {
		return nil, err
	}
	return &Notifier{
		orders:    orderRepo,
		customers: customers,
		mails:     mails,
		events:    events,
		renderer:  renderer,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Publish позволяет использовать Notifier как in-process получателя outbox, когда брокер
// не настроен. События, кроме order.created, пропускаются.
func (n *Notifier) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.EventType != domain.EventOrderCreated {
		return nil
	}
	event, err := domain.DecodeOrderEvent(msg.Payload)
	if err != nil {
		return err
	}
	return n.HandleOrderCreated(ctx, event)
}

// HandleOrderCreated пишет письмо о заказе. Повторная доставка события не создаёт
// второе письмо: ID письма выводится из ID заказа.
func (n *Notifier) HandleOrderCreated(ctx context.Context, event domain.OrderEvent) error {
	logger := n.logger.WithField("order_id", event.OrderID)

	order, err := n.orders.Get(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", event.OrderID, err)
	}
	customer, err := n.customers.Get(ctx, order.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", order.CustomerID, err)
	}

	rendered := n.renderer.Render(order, customer)
	mail := domain.Mail{
		ID:         domain.OrderCreatedMailID(order.ID),
		OrderID:    order.ID,
		CustomerID: customer.ID,
		From:       n.cfg.From,
		To:         []string{customer.Email},
		Subject:    rendered.Subject,
		Text:       rendered.Text,
		HTML:       rendered.HTML,
		Locale:     rendered.Locale,
		CreatedAt:  n.now().UTC(),
	}

	if err := n.mails.Create(ctx, mail); err != nil {
		if errors.Is(err, domain.ErrMailAlreadyExists) {
			logger.Debug("order mail already queued")
			return nil
		}
		return fmt.Errorf("create mail: %w", err)
	}

	n.metrics.RecordMailCreated()
	n.events.Record(ctx, order, domain.TimelineMailQueued, "", mail.ID, mail.CreatedAt)
	logger.WithFields(log.Fields{
		"mail_id": mail.ID,
		"locale":  mail.Locale,
	}).Info("order mail queued")
	return nil
}

var _ domain.OutboxPublisher = (*Notifier)(nil)
