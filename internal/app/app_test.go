package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/cart"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/payment"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

func newTestStorefront(t *testing.T) (*storefront, *runtimeDependencies, Config) {
	t.Helper()

	cfg := DefaultConfig()
	logger := log.WithField("test", t.Name())
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	m := metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	sf, err := buildStorefront(cfg, deps, payment.NewMockGateway(), m, logger)
	require.NoError(t, err)
	return sf, deps, cfg
}

func TestBuildStorefront_OrderMailFlowsThroughOutbox(t *testing.T) {
	sf, deps, cfg := newTestStorefront(t)
	ctx := context.Background()

	require.NoError(t, seedCatalog(ctx, sf.catalog, log.WithField("test", "seed")))

	session, err := sf.accounts.Register(ctx, account.RegisterInput{
		Email:    "ada@example.com",
		Password: "correct-horse",
		Name:     "Ada",
		Phone:    "+1 555 010 0200",
	})
	require.NoError(t, err)
	customerID := session.Customer.ID

	summary, err := sf.cart.AddItem(ctx, customerID, cart.AddItemInput{ProductID: "latte", Size: "grande", Quantity: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1040, summary.SubtotalMinor)
	assert.EqualValues(t, cfg.DeliveryFeeMinor, summary.DeliveryFeeMinor)

	order, err := sf.checkout.PlaceOrder(ctx, customerID, checkout.Request{
		Address: domain.Address{
			Line1:      "12 Roast Street",
			City:       "Portland",
			PostalCode: "97201",
			Phone:      "+1 555 010 0200",
		},
		PaymentMethod: domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, order.Status)

	pipeline := buildEventPipeline(cfg, nil, sf.notifier)
	require.False(t, pipeline.viaKafka)
	m := metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())
	relay := newOutboxRelay(cfg, deps.outbox, pipeline, m, log.WithField("test", "outbox"))
	report := relay.Drain(ctx)
	assert.Equal(t, 1, report.Sent)

	mails, err := deps.mails.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, mails, 1)
	assert.Equal(t, []string{"ada@example.com"}, mails[0].To)
	assert.Equal(t, cfg.MailFrom, mails[0].From)

	stats, err := deps.outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
}

func TestBuildStorefront_RejectsEmptySecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = " "
	deps, err := initRuntimeDependencies(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, err = buildStorefront(cfg, deps, nil, nil, log.WithField("test", "secret"))
	require.ErrorContains(t, err, "token issuer")
}

func TestBuildStorefront_DefaultGatewayUsesConfiguredForm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PaymentGatewayURL = "::not a url"
	deps, err := initRuntimeDependencies(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, err = buildStorefront(cfg, deps, nil, nil, log.WithField("test", "gateway"))
	require.Error(t, err)
}

func TestOutboxBacklogCheck(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()

	check := outboxBacklogCheck(repo, 1)
	require.NoError(t, check(ctx))

	for i := 0; i < 2; i++ {
		msg, err := domain.NewOrderEvent(domain.EventOrderCreated, domain.Order{ID: fmt.Sprintf("order-%d", i)}, "", time.Now()).OutboxMessage()
		require.NoError(t, err)
		_, err = repo.Enqueue(ctx, msg)
		require.NoError(t, err)
	}
	require.ErrorContains(t, check(ctx), "exceeds 1")

	require.NoError(t, outboxBacklogCheck(repo, 0)(ctx), "zero threshold disables the check")
}

func TestStartWorkers_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var stopped atomic.Int32

	run := func(ctx context.Context) {
		<-ctx.Done()
		stopped.Add(1)
	}
	startWorkers(ctx, &wg, run, run, run)

	cancel()
	wg.Wait()
	assert.EqualValues(t, 3, stopped.Load())
}
