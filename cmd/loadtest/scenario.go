package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/cart"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/checkout"
)

const idempotencyHeader = "Idempotency-Key"

// Шаги сценариев; имена попадают в отчёт.
const (
	stepListProducts = "ListProducts"
	stepGetProduct   = "GetProduct"
	stepQuote        = "Quote"
	stepRegister     = "Register"
	stepAddToCart    = "AddToCart"
	stepCheckout     = "Checkout"
	stepCancelOrder  = "CancelOrder"
)

// errUnexpectedStatus — ответ не 2xx.
var errUnexpectedStatus = errors.New("unexpected status")

// storefrontClient ходит в REST API витрины и пишет каждый вызов в collector.
type storefrontClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

type call struct {
	step           string
	method         string
	path           string
	token          string
	idempotencyKey string
	body           any
	out            any
}

func (c *storefrontClient) do(ctx context.Context, in call) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in.body != nil {
		raw, err := json.Marshal(in.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, c.base+in.path, body)
	if err != nil {
		return err
	}
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if in.token != "" {
		req.Header.Set("Authorization", "Bearer "+in.token)
	}
	if in.idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, in.idempotencyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(in.step, time.Since(start), 0, false)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && in.out != nil {
		err = json.NewDecoder(resp.Body).Decode(in.out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	c.col.record(in.step, time.Since(start), resp.StatusCode, ok && err == nil)

	if !ok {
		return fmt.Errorf("%s: %w %d", in.step, errUnexpectedStatus, resp.StatusCode)
	}
	return err
}

// runScenario выполняет один сценарий режима cfg.mode и учитывает его целиком как шаг "scenario".
func runScenario(ctx context.Context, client *storefrontClient, cfg config, index int, runID string) error {
	start := time.Now()
	var err error
	defer func() {
		client.col.record(scenarioStep, time.Since(start), 0, err == nil)
	}()

	switch cfg.mode {
	case modeBrowse:
		err = browse(ctx, client, cfg)
	default:
		err = placeOrder(ctx, client, cfg, index, runID)
	}
	return err
}

func browse(ctx context.Context, client *storefrontClient, cfg config) error {
	var list struct {
		Items []domain.Product `json:"items"`
	}
	if err := client.do(ctx, call{step: stepListProducts, method: http.MethodGet, path: "/v1/catalog/products?category=beverage", out: &list}); err != nil {
		return err
	}
	if err := client.do(ctx, call{step: stepGetProduct, method: http.MethodGet, path: "/v1/catalog/products/" + url.PathEscape(cfg.productID)}); err != nil {
		return err
	}
	return client.do(ctx, call{
		step:   stepQuote,
		method: http.MethodPost,
		path:   "/v1/catalog/products/" + url.PathEscape(cfg.productID) + "/quote",
		body:   map[string]any{"size": cfg.size, "quantity": 1},
	})
}

func placeOrder(ctx context.Context, client *storefrontClient, cfg config, index int, runID string) error {
	var session account.Session
	err := client.do(ctx, call{
		step:   stepRegister,
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body: account.RegisterInput{
			Email:    fmt.Sprintf("%s-%s-%d@loadtest.example", cfg.customerTag, runID, index),
			Password: "load-test-password",
			Name:     "Load Test",
			Phone:    "+1 555 010 0000",
		},
		out: &session,
	})
	if err != nil {
		return err
	}
	token := session.Token.AccessToken

	err = client.do(ctx, call{
		step:   stepAddToCart,
		method: http.MethodPost,
		path:   "/v1/cart/items",
		token:  token,
		body:   cart.AddItemInput{ProductID: cfg.productID, Size: cfg.size, Quantity: cfg.quantity},
	})
	if err != nil {
		return err
	}

	var order domain.Order
	err = client.do(ctx, call{
		step:           stepCheckout,
		method:         http.MethodPost,
		path:           "/v1/checkout",
		token:          token,
		idempotencyKey: uuid.NewString(),
		body: checkout.Request{
			Address: domain.Address{
				Line1:      "1 Load Test Avenue",
				City:       "Portland",
				PostalCode: "97201",
				Phone:      "+1 555 010 0000",
			},
			PaymentMethod: domain.PaymentMethodCash,
		},
		out: &order,
	})
	if err != nil {
		return err
	}
	if order.ID == "" {
		return errors.New("checkout returned empty order id")
	}

	if cfg.mode == modeCheckoutCancel || shouldCancelScenario(index, cfg.cancelRate) {
		return client.do(ctx, call{
			step:   stepCancelOrder,
			method: http.MethodPost,
			path:   "/v1/orders/" + url.PathEscape(order.ID) + "/cancel",
			token:  token,
			body:   map[string]string{"reason": "load-cancel"},
		})
	}
	return nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
