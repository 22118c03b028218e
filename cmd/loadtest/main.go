// Команда loadtest нагружает REST API витрины сценариями просмотра каталога и оформления заказа.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type loadMode string

const (
	modeBrowse         loadMode = "browse"
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
)

// errScenariosFailed — прогон завершился, но часть сценариев упала; код выхода 1.
var errScenariosFailed = errors.New("some scenarios failed")

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	rps         float64
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	productID   string
	size        string
	quantity    int
	customerTag string
	outputPath  string
}

// bindFlags вешает флаги на команду; mode разбирается отдельно в validate.
func (c *config) bindFlags(cmd *cobra.Command, mode *string) {
	f := cmd.Flags()
	f.StringVar(&c.baseURL, "url", "http://localhost:8080", "storefront REST API base URL")
	f.IntVar(&c.total, "total", 400, "scenarios to run; with --duration acts as an upper bound only when set")
	f.DurationVar(&c.duration, "duration", 0, "run for a fixed time instead of a fixed count (e.g. 10m)")
	f.IntVar(&c.concurrency, "concurrency", 40, "parallel workers")
	f.Float64Var(&c.rps, "rps", 0, "scenario start rate limit, 0 = unlimited")
	f.DurationVar(&c.timeout, "timeout", 5*time.Second, "per-request timeout")
	f.StringVar(mode, "mode", string(modeCheckout), "browse | checkout | checkout-cancel")
	f.IntVar(&c.cancelRate, "cancel-rate", 0, "percent of checkout scenarios that cancel the order")
	f.StringVar(&c.productID, "product", "latte", "product to browse or order")
	f.StringVar(&c.size, "size", "tall", "drink size")
	f.IntVar(&c.quantity, "quantity", 1, "cart line quantity")
	f.StringVar(&c.customerTag, "customer-tag", "load", "email prefix of generated customers")
	f.StringVar(&c.outputPath, "output", "", "write the JSON report to this file")
}

func (c *config) validate(cmd *cobra.Command, mode string) error {
	c.totalSet = cmd.Flags().Changed("total")
	c.baseURL = strings.TrimRight(strings.TrimSpace(c.baseURL), "/")

	switch m := loadMode(strings.TrimSpace(mode)); m {
	case modeBrowse, modeCheckout, modeCheckoutCancel:
		c.mode = m
	default:
		return fmt.Errorf("unsupported mode %q", mode)
	}

	var problems []string
	check := func(bad bool, msg string) {
		if bad {
			problems = append(problems, msg)
		}
	}
	check(c.baseURL == "", "url is required")
	check(c.duration < 0, "duration must be >= 0")
	check((c.duration == 0 || c.totalSet) && c.total <= 0, "total must be > 0")
	check(c.concurrency <= 0, "concurrency must be > 0")
	check(c.rps < 0, "rps must be >= 0")
	check(c.timeout <= 0, "timeout must be > 0")
	check(c.cancelRate < 0 || c.cancelRate > 100, "cancel-rate must be within 0..100")
	check(c.quantity <= 0, "quantity must be > 0")
	check(strings.TrimSpace(c.productID) == "", "product is required")
	check(strings.TrimSpace(c.customerTag) == "", "customer-tag is required")
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// limit возвращает nil, если темп не ограничен.
func (c config) limit() *rate.Limiter {
	if c.rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.rps), max(1, c.concurrency))
}

func newRootCmd(onRun func(cmd *cobra.Command, cfg config) error) *cobra.Command {
	var (
		cfg  config
		mode string
	)
	cmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Drive browse and checkout scenarios against the storefront REST API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(cmd, mode); err != nil {
				return err
			}
			return onRun(cmd, cfg)
		},
	}
	cfg.bindFlags(cmd, &mode)
	return cmd
}

// parseConfig разбирает аргументы так же, как main, но ничего не запускает.
func parseConfig(args []string) (config, error) {
	var parsed config
	cmd := newRootCmd(func(_ *cobra.Command, cfg config) error {
		parsed = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(discard{})
	cmd.SetErr(discard{})
	err := cmd.Execute()
	return parsed, err
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(func(cmd *cobra.Command, cfg config) error {
		log.WithFields(log.Fields{
			"url":         cfg.baseURL,
			"mode":        cfg.mode,
			"target":      runTarget(cfg),
			"concurrency": cfg.concurrency,
		}).Info("load test started")

		result := run(cmd.Context(), cfg, &http.Client{})
		printReport(cmd.OutOrStdout(), result, cfg)
		if cfg.outputPath != "" {
			if err := writeJSONReport(cfg.outputPath, result); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
		if result.FailedScenarios > 0 {
			return errScenariosFailed
		}
		return nil
	})

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("load test failed")
		if errors.Is(err, errScenariosFailed) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

// run гоняет сценарии пулом из cfg.concurrency воркеров и собирает отчёт.
func run(ctx context.Context, cfg config, httpClient *http.Client) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	client := &storefrontClient{base: cfg.baseURL, http: httpClient, timeout: cfg.timeout, col: col}

	ids := make(chan int)
	var wg sync.WaitGroup
	wg.Add(cfg.concurrency)
	for range cfg.concurrency {
		go func() {
			defer wg.Done()
			for id := range ids {
				_ = runScenario(ctx, client, cfg, id, runID)
			}
		}()
	}

	feed(ctx, ids, cfg)
	wg.Wait()
	return col.snapshot(startedAt, time.Since(startedAt))
}

// feed раздаёт номера сценариев, пока не кончится счёт, время или контекст.
func feed(ctx context.Context, ids chan<- int, cfg config) {
	defer close(ids)

	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}
	bounded := cfg.duration <= 0 || cfg.totalSet
	limiter := cfg.limit()

	for id := 0; !bounded || id < cfg.total; id++ {
		if limiter != nil && limiter.Wait(ctx) != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case ids <- id:
		}
	}
}
