package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
)

type principalKey struct{}

// PrincipalFrom возвращает клиента, аутентифицированного middleware.
func PrincipalFrom(ctx context.Context) (account.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(account.Principal)
	return p, ok
}

// Authenticator проверяет bearer token.
type Authenticator interface {
	Authenticate(token string) (account.Principal, error)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authMiddleware требует валидный access token; staffOnly дополнительно проверяет роль.
func authMiddleware(auth Authenticator, staffOnly bool, logger *log.Entry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, logger, domain.ErrUnauthorized)
				return
			}
			principal, err := auth.Authenticate(token)
			if err != nil {
				logger.WithError(err).WithField("path", r.URL.Path).Debug("token rejected")
				writeError(w, logger, domain.ErrUnauthorized)
				return
			}
			if staffOnly && !principal.IsStaff() {
				writeError(w, logger, domain.ErrForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimiter ограничивает частоту запросов на клиента (или IP для анонимных запросов).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter создаёт лимитер; rps <= 0 отключает ограничение.
func NewRateLimiter(rps float64, burst int, m *metrics.StorefrontMetrics, logger *log.Entry) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = log.WithField("component", "http-ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
		metrics:  m,
		logger:   logger,
	}
}

// Allow сообщает, можно ли пропустить запрос с данным ключом.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Cleanup удаляет лимитеры клиентов, не обращавшихся дольше idleTTL.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Run периодически чистит лимитеры до отмены ctx.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := rl.Cleanup(); removed > 0 {
				rl.logger.WithField("removed", removed).Debug("rate limiters cleaned up")
			}
		}
	}
}

// Middleware применяет лимит. Ключом служит клиент из проверенного токена,
// для анонимных запросов и неверных токенов используется IP.
func (rl *RateLimiter) Middleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(limitKey(r, auth)) {
				rl.metrics.RecordRateLimited()
				rl.logger.WithFields(log.Fields{
					"path":   r.URL.Path,
					"method": r.Method,
				}).Warn("rate limit exceeded")
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests, please slow down"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitKey(r *http.Request, auth Authenticator) string {
	if token := bearerToken(r); token != "" && auth != nil {
		if p, err := auth.Authenticate(token); err == nil {
			return "customer:" + p.CustomerID
		}
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observeMiddleware логирует запросы и учитывает их в метриках по шаблону маршрута.
// Оборачивает роутер целиком, поэтому шаблон ищется через router.Match.
func observeMiddleware(router *mux.Router, m *metrics.StorefrontMetrics, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					logger.WithField("panic", p).WithField("path", r.URL.Path).Error("handler panicked")
					writeJSON(rec, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
				}

				route := routeTemplate(router, r)
				m.RecordHTTPRequest(route, r.Method, rec.status)

				entry := logger.WithFields(log.Fields{
					"method":      r.Method,
					"route":       route,
					"status":      rec.status,
					"duration_ms": time.Since(start).Milliseconds(),
				})
				if rec.status >= http.StatusInternalServerError {
					entry.Warn("http request")
				} else {
					entry.Debug("http request")
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// routeTemplate возвращает шаблон пути; для 404 и 405 это "unmatched".
func routeTemplate(router *mux.Router, r *http.Request) string {
	var match mux.RouteMatch
	if !router.Match(r, &match) || match.MatchErr != nil || match.Route == nil {
		return "unmatched"
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
