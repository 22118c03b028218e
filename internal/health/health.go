// Package health собирает проверки зависимостей витрины и отдаёт их на /healthz, /livez и /readyz.
//
// Проверка бывает критичной (хранилище) и некритичной (Kafka, кеш, backlog outbox).
// Упавшая некритичная проверка переводит сервис в degraded, но не снимает его с балансировки.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	Critical   bool   `json:"critical"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

type CheckFunc func(ctx context.Context) error

// Observer получает результат каждой проверки, например для gauge в Prometheus.
type Observer func(name string, healthy bool)

type probe struct {
	name     string
	critical bool
	fn       CheckFunc
}

type Option func(*Handler)

// WithTimeout ограничивает время одной проверки.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(h *Handler) { h.observe = o }
}

type Handler struct {
	mu      sync.RWMutex
	probes  []probe // отсортированы по имени
	version string
	started time.Time
	timeout time.Duration
	observe Observer
	now     func() time.Time
}

func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		version: version,
		started: time.Now(),
		timeout: defaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register добавляет проверку; повторная регистрация имени заменяет прежнюю.
func (h *Handler) Register(name string, critical bool, fn CheckFunc) {
	p := probe{name: name, critical: critical, fn: fn}

	h.mu.Lock()
	defer h.mu.Unlock()
	i, found := slices.BinarySearchFunc(h.probes, name, func(p probe, name string) int {
		return strings.Compare(p.name, name)
	})
	if found {
		h.probes[i] = p
		return
	}
	h.probes = slices.Insert(h.probes, i, p)
}

// Run выполняет все проверки параллельно, каждую со своим таймаутом.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	probes := slices.Clone(h.probes)
	h.mu.RUnlock()

	results := make(chan Check, len(probes))
	for _, p := range probes {
		go func() { results <- h.probe(ctx, p) }()
	}

	resp := Response{
		Status:  StatusHealthy,
		Checks:  make(map[string]Check, len(probes)),
		Version: h.version,
	}
	for range probes {
		c := <-results
		resp.Checks[c.Name] = c
		resp.Status = worst(resp.Status, c)
	}

	now := h.now()
	resp.Timestamp = now.UTC()
	resp.UptimeSeconds = int64(now.Sub(h.started).Seconds())
	return resp
}

func worst(current Status, c Check) Status {
	switch {
	case c.Status == StatusHealthy:
		return current
	case c.Critical:
		return StatusUnhealthy
	case current == StatusHealthy:
		return StatusDegraded
	default:
		return current
	}
}

func (h *Handler) probe(ctx context.Context, p probe) Check {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	began := time.Now()
	err := p.fn(ctx)
	c := Check{
		Name:       p.name,
		Status:     StatusHealthy,
		Critical:   p.critical,
		DurationMs: time.Since(began).Milliseconds(),
	}
	if err != nil {
		c.Status = StatusUnhealthy
		c.Message = err.Error()
	}
	if h.observe != nil {
		h.observe(p.name, err == nil)
	}
	return c
}

// ServeHTTP отдаёт подробный отчёт; 503 только при упавшей критичной проверке.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(resp.Status))
	_ = json.NewEncoder(w).Encode(resp)
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// ReadinessHandler отвечает 503, пока не готов хоть один критичный компонент.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	code := statusCode(h.Run(r.Context()).Status)
	if code != http.StatusOK {
		writeText(w, code, "not ready")
		return
	}
	writeText(w, code, "ready")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) Mount(mux *http.ServeMux) {
	mux.Handle("/healthz", h)
	mux.HandleFunc("/livez", LivenessHandler)
	mux.HandleFunc("/readyz", h.ReadinessHandler)
}
