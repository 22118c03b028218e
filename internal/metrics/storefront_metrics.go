package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics содержит метрики витрины: оформление заказов, корзина, кеш каталога.
type StorefrontMetrics struct {
	// Счётчики заказов
	ordersPlaced   *prometheus.CounterVec
	ordersCanceled prometheus.Counter
	statusChanges  *prometheus.CounterVec
	checkoutFailed prometheus.Counter

	// Время оформления
	checkoutDuration prometheus.Histogram

	cartMutations *prometheus.CounterVec
	deepLinks     *prometheus.CounterVec
	mailsCreated  prometheus.Counter

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Доставка outbox
	outboxDeliveries *prometheus.CounterVec
	outboxBacklog    prometheus.Gauge
	outboxOldestAge  prometheus.Gauge

	cacheLookups *prometheus.CounterVec

	// 0 closed, 1 open, 2 half-open
	paymentBreaker prometheus.Gauge
	dependencyUp   *prometheus.GaugeVec

	// Очистка ключей идемпотентности
	keySweeps      *prometheus.CounterVec
	keysExpired    prometheus.Counter
	lastSweepCount prometheus.Gauge

	// HTTP API
	httpRequests *prometheus.CounterVec
	rateLimited  prometheus.Counter

	// Gauge для оформлений в процессе
	activeCheckouts prometheus.Gauge
}

// NewStorefrontMetrics создаёт метрики в default registry.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer создаёт метрики в указанном registry (тесты используют отдельный).
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		ordersPlaced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed by payment method",
		}, []string{"payment_method"}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_canceled_total",
			Help: "Total number of orders canceled",
		}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_changes_total",
			Help: "Total number of order status transitions by target status",
		}, []string{"status"}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of checkout attempts that failed",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of cart mutations by operation",
		}, []string{"operation"}),
		deepLinks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_deeplinks_total",
			Help: "Total number of payment deep links applied by status",
		}, []string{"status"}),
		mailsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_mails_created_total",
			Help: "Total number of mail documents created by the order trigger",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		outboxDeliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_deliveries_total",
			Help: "Outbox delivery attempts by result",
		}, []string{"result"}),
		outboxBacklog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Pending records in the transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record",
		}),
		cacheLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_catalog_cache_lookups_total",
			Help: "Catalog cache lookups by kind and result",
		}, []string{"kind", "result"}),
		paymentBreaker: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_payment_breaker_state",
			Help: "Payment gateway circuit breaker state: 0 closed, 1 open, 2 half-open",
		}),
		dependencyUp: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "storefront_dependency_up",
			Help: "Result of the last health check per dependency: 1 healthy, 0 failing",
		}, []string{"check"}),
		keySweeps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_sweeps_total",
			Help: "Idempotency key sweeps by result",
		}, []string{"result"}),
		keysExpired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_keys_expired_total",
			Help: "Expired idempotency keys removed by the sweeper",
		}),
		lastSweepCount: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_last_sweep_keys",
			Help: "Keys removed by the most recent sweep",
		}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP API requests by route template, method and status code",
		}, []string{"route", "method", "code"}),
		rateLimited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_http_rate_limited_total",
			Help: "HTTP API requests rejected by the rate limiter",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of checkouts currently in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderPlaced увеличивает счётчик оформленных заказов.
func (m *StorefrontMetrics) RecordOrderPlaced(paymentMethod string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(paymentMethod).Inc()
}

// RecordOrderCanceled увеличивает счётчик отменённых заказов.
func (m *StorefrontMetrics) RecordOrderCanceled() {
	if m == nil {
		return
	}
	m.ordersCanceled.Inc()
}

// RecordStatusChange учитывает переход заказа в статус.
func (m *StorefrontMetrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordCheckoutFailed увеличивает счётчик неудачных оформлений.
func (m *StorefrontMetrics) RecordCheckoutFailed() {
	if m == nil {
		return
	}
	m.checkoutFailed.Inc()
}

// RecordCheckoutStarted увеличивает количество оформлений в процессе.
func (m *StorefrontMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished уменьшает количество оформлений в процессе и пишет длительность.
func (m *StorefrontMetrics) RecordCheckoutFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCartMutation учитывает изменение корзины (add, update, remove, clear).
func (m *StorefrontMetrics) RecordCartMutation(operation string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(operation).Inc()
}

// RecordDeepLink учитывает применённый результат оплаты.
func (m *StorefrontMetrics) RecordDeepLink(status string) {
	if m == nil {
		return
	}
	m.deepLinks.WithLabelValues(status).Inc()
}

// RecordMailCreated увеличивает счётчик созданных писем.
func (m *StorefrontMetrics) RecordMailCreated() {
	if m == nil {
		return
	}
	m.mailsCreated.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *StorefrontMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *StorefrontMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordOutboxDelivery учитывает попытку доставки: sent, retry, failed, dead_letter, dead_letter_failed.
func (m *StorefrontMetrics) RecordOutboxDelivery(result string) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(result).Inc()
}

// SetOutboxBacklog выставляет размер backlog и возраст самого старого сообщения.
func (m *StorefrontMetrics) SetOutboxBacklog(pending int, oldest time.Duration) {
	if m == nil {
		return
	}
	if oldest < 0 {
		oldest = 0
	}
	m.outboxBacklog.Set(float64(pending))
	m.outboxOldestAge.Set(oldest.Seconds())
}

// RecordCacheLookup учитывает попадание или промах кеша каталога.
func (m *StorefrontMetrics) RecordCacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordKeySweep учитывает проход очистки ключей идемпотентности.
func (m *StorefrontMetrics) RecordKeySweep(removed int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.keySweeps.WithLabelValues("error").Inc()
	} else {
		m.keySweeps.WithLabelValues("ok").Inc()
	}
	if removed > 0 {
		m.keysExpired.Add(float64(removed))
	}
	m.lastSweepCount.Set(float64(removed))
}

// RecordHTTPRequest учитывает обработанный HTTP-запрос.
func (m *StorefrontMetrics) RecordHTTPRequest(route, method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// RecordRateLimited учитывает запрос, отклонённый лимитером.
func (m *StorefrontMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// SetPaymentBreakerState публикует состояние breaker'а платёжного шлюза.
func (m *StorefrontMetrics) SetPaymentBreakerState(state int) {
	if m == nil {
		return
	}
	m.paymentBreaker.Set(float64(state))
}

// SetDependencyUp публикует результат health-проверки.
func (m *StorefrontMetrics) SetDependencyUp(check string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.dependencyUp.WithLabelValues(check).Set(value)
}
