package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewStorefrontMetrics(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewStorefrontMetricsWithRegisterer should not return nil")
	}
	if metrics.ordersPlaced == nil {
		t.Error("ordersPlaced counter should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.cacheLookups == nil {
		t.Error("cacheLookups counter vec should not be nil")
	}
	if metrics.activeCheckouts == nil {
		t.Error("activeCheckouts gauge should not be nil")
	}
}

func TestNewStorefrontMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewStorefrontMetricsWithRegisterer(reg)
	second := NewStorefrontMetricsWithRegisterer(reg)

	first.RecordOrderCanceled()
	second.RecordOrderCanceled()

	if got := counterValue(t, first.ordersCanceled); got != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", got)
	}
}

func TestRecordOrderPlaced(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderPlaced("cash")
	metrics.RecordOrderPlaced("card")
	metrics.RecordOrderPlaced("card")

	if got := counterValue(t, metrics.ordersPlaced.WithLabelValues("card")); got != 2.0 {
		t.Errorf("expected 2 card orders, got %f", got)
	}
	if got := counterValue(t, metrics.ordersPlaced.WithLabelValues("cash")); got != 1.0 {
		t.Errorf("expected 1 cash order, got %f", got)
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutFinished(100 * time.Millisecond)

	gauge := &dto.Metric{}
	if err := metrics.activeCheckouts.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active checkout, got %f", gauge.Gauge.GetValue())
	}

	hist := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(hist); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if hist.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample, got %d", hist.Histogram.GetSampleCount())
	}
}

func TestRecordCacheLookup(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCacheLookup("product", true)
	metrics.RecordCacheLookup("product", false)
	metrics.RecordCacheLookup("product", false)

	if got := counterValue(t, metrics.cacheLookups.WithLabelValues("product", "miss")); got != 2.0 {
		t.Errorf("expected 2 misses, got %f", got)
	}
	if got := counterValue(t, metrics.cacheLookups.WithLabelValues("product", "hit")); got != 1.0 {
		t.Errorf("expected 1 hit, got %f", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var metrics *StorefrontMetrics

	metrics.RecordOrderPlaced("cash")
	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutFinished(time.Second)
	metrics.RecordCacheLookup("list", true)
	metrics.RecordMailCreated()
	metrics.RecordHTTPRequest("/v1/orders", "GET", 200)
	metrics.RecordRateLimited()
	metrics.RecordKeySweep(3, false)
	metrics.SetPaymentBreakerState(1)
	metrics.SetDependencyUp("postgres", true)
}

func TestRecordHTTPRequest(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordHTTPRequest("/v1/cart", "GET", 200)
	metrics.RecordHTTPRequest("/v1/cart", "GET", 200)
	metrics.RecordHTTPRequest("/v1/checkout", "POST", 409)
	metrics.RecordRateLimited()

	if got := counterValue(t, metrics.httpRequests.WithLabelValues("/v1/cart", "GET", "200")); got != 2.0 {
		t.Errorf("expected 2 cart requests, got %f", got)
	}
	if got := counterValue(t, metrics.httpRequests.WithLabelValues("/v1/checkout", "POST", "409")); got != 1.0 {
		t.Errorf("expected 1 checkout conflict, got %f", got)
	}
	if got := counterValue(t, metrics.rateLimited); got != 1.0 {
		t.Errorf("expected 1 rate-limited request, got %f", got)
	}
}

func TestRecordKeySweep(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordKeySweep(4, false)
	metrics.RecordKeySweep(0, true)

	if got := counterValue(t, metrics.keysExpired); got != 4.0 {
		t.Errorf("expected 4 expired keys, got %f", got)
	}
	if got := counterValue(t, metrics.keySweeps.WithLabelValues("error")); got != 1.0 {
		t.Errorf("expected 1 failed sweep, got %f", got)
	}
	gauge := &dto.Metric{}
	if err := metrics.lastSweepCount.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if got := gauge.Gauge.GetValue(); got != 0 {
		t.Errorf("expected last sweep gauge reset to 0, got %f", got)
	}
}

func TestOutboxDeliveryMetrics(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOutboxDelivery("retry")
	metrics.RecordOutboxDelivery("sent")
	metrics.RecordOutboxDelivery("sent")
	metrics.SetOutboxBacklog(4, -time.Second)

	if got := counterValue(t, metrics.outboxDeliveries.WithLabelValues("sent")); got != 2.0 {
		t.Errorf("expected 2 sent deliveries, got %f", got)
	}
	gauge := &dto.Metric{}
	if err := metrics.outboxOldestAge.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if got := gauge.Gauge.GetValue(); got != 0 {
		t.Errorf("negative age must clamp to 0, got %f", got)
	}
}

func TestSetPaymentBreakerState(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	metrics.SetPaymentBreakerState(2)

	gauge := &dto.Metric{}
	if err := metrics.paymentBreaker.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if got := gauge.Gauge.GetValue(); got != 2 {
		t.Errorf("expected half-open (2), got %f", got)
	}
}

func TestSetDependencyUp(t *testing.T) {
	metrics := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	metrics.SetDependencyUp("kafka", true)
	metrics.SetDependencyUp("kafka", false)
	metrics.SetDependencyUp("postgres", true)

	for check, want := range map[string]float64{"kafka": 0, "postgres": 1} {
		gauge := &dto.Metric{}
		if err := metrics.dependencyUp.WithLabelValues(check).Write(gauge); err != nil {
			t.Fatalf("failed to write gauge: %v", err)
		}
		if got := gauge.Gauge.GetValue(); got != want {
			t.Errorf("%s: expected %v, got %v", check, want, got)
		}
	}
}
