package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/cart"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/notification"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/payment"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
	"github.com/vladislavdragonenkov/coffeeshop/internal/transport/httpapi"
)

// storefront — собранные сервисы витрины поверх выбранного хранилища.
type storefront struct {
	accounts *account.Service
	catalog  *catalog.Service
	cart     *cart.Service
	checkout *checkout.Service
	orders   *orders.Service
	payments *payment.Service
	notifier *notification.Notifier
	mails    domain.MailRepository
}

func (s *storefront) httpServices() httpapi.Services {
	return httpapi.Services{
		Accounts: s.accounts,
		Catalog:  s.catalog,
		Cart:     s.cart,
		Checkout: s.checkout,
		Orders:   s.orders,
		Payments: s.payments,
		Mails:    s.mails,
	}
}

func deliveryPolicy(cfg Config) domain.DeliveryPolicy {
	return domain.DeliveryPolicy{FeeMinor: cfg.DeliveryFeeMinor, FreeThresholdMinor: cfg.FreeDeliveryThresholdMinor}
}

// buildStorefront связывает сервисы; gateway nil означает платёжную форму из конфига за circuit breaker.
func buildStorefront(cfg Config, deps *runtimeDependencies, gateway domain.PaymentGateway, m *metrics.StorefrontMetrics, logger *log.Entry) (*storefront, error) {
	tokens, err := account.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	if gateway == nil {
		hosted, err := payment.NewHostedGateway(cfg.PaymentGatewayURL, cfg.DeepLinkScheme)
		if err != nil {
			return nil, err
		}
		breaker := retry.NewCircuitBreaker(cfg.PaymentBreakerFailures, cfg.PaymentBreakerReset,
			logger.WithField("component", "payment-breaker"),
			retry.OnStateChange(func(state retry.CircuitState) { m.SetPaymentBreakerState(int(state)) }),
		)
		gateway = payment.NewBreakerGateway(hosted, breaker)
	}

	recorder := orders.NewRecorder(deps.outbox, deps.timeline, m, logger.WithField("component", "order-events"))
	notifier, err := notification.NewNotifier(deps.orders, deps.customers, deps.mails, recorder, notification.Config{
		From:          cfg.MailFrom,
		StoreName:     cfg.StoreName,
		DefaultLocale: cfg.DefaultLocale,
	}, m, logger.WithField("component", "notification"))
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	delivery := deliveryPolicy(cfg)
	return &storefront{
		accounts: account.NewService(deps.customers, tokens, cfg.BcryptCost, logger.WithField("component", "account")),
		catalog:  catalog.NewService(deps.products, logger.WithField("component", "catalog")),
		cart: cart.NewService(deps.customers, deps.products,
			cart.Config{Currency: cfg.Currency, Delivery: delivery}, m, logger.WithField("component", "cart")),
		checkout: checkout.NewService(deps.customers, deps.products, deps.orders, gateway, recorder,
			checkout.Config{Currency: cfg.Currency, Delivery: delivery}, m, logger.WithField("component", "checkout")),
		orders:   orders.NewService(deps.orders, deps.timeline, recorder, m, logger.WithField("component", "orders")),
		payments: payment.NewService(deps.customers, deps.orders, recorder, cfg.DeepLinkScheme, m, logger.WithField("component", "payment")),
		notifier: notifier,
		mails:    deps.mails,
	}, nil
}
