// Package httpapi — JSON API мобильного приложения кофейни.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/cart"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/payment"
)

const maxBodyBytes = 1 << 20

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Accounts *account.Service
	Catalog  *catalog.Service
	Cart     *cart.Service
	Checkout *checkout.Service
	Orders   *orders.Service
	Payments *payment.Service
	Mails    domain.MailRepository
}

// Options — инфраструктура HTTP-слоя.
type Options struct {
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	RateLimiter    *RateLimiter
	Metrics        *metrics.StorefrontMetrics
	Logger         *log.Entry
}

// Server связывает маршруты с сервисами.
type Server struct {
	svc     Services
	guard   *idempotency.Guard
	logger  *log.Entry
	handler http.Handler
}

// NewServer собирает маршруты /v1.
func NewServer(svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	s := &Server{
		svc:    svc,
		guard:  idempotency.NewGuard(opts.Idempotency, opts.IdempotencyTTL, logger.WithField("layer", "idempotency")),
		logger: logger,
	}

	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	// Без вложенных subrouter'ов: иначе несовпадение метода даёт 404 вместо 405.
	public := func(method, path string, h http.HandlerFunc) {
		root.Handle("/v1"+path, h).Methods(method)
	}
	guarded := func(auth mux.MiddlewareFunc) func(method, path string, h http.HandlerFunc) {
		return func(method, path string, h http.HandlerFunc) {
			root.Handle("/v1"+path, auth(h)).Methods(method)
		}
	}
	me := guarded(authMiddleware(svc.Accounts, false, logger))
	admin := guarded(authMiddleware(svc.Accounts, true, logger))

	public(http.MethodPost, "/auth/register", s.register)
	public(http.MethodPost, "/auth/login", s.login)
	public(http.MethodGet, "/catalog/categories", s.listCategories)
	public(http.MethodGet, "/catalog/products", s.listProducts)
	public(http.MethodGet, "/catalog/products/{id}", s.getProduct)
	public(http.MethodPost, "/catalog/products/{id}/quote", s.quote)

	me(http.MethodGet, "/profile", s.getProfile)
	me(http.MethodPatch, "/profile", s.updateProfile)
	me(http.MethodGet, "/cart", s.getCart)
	me(http.MethodDelete, "/cart", s.clearCart)
	me(http.MethodPost, "/cart/items", s.addCartItem)
	me(http.MethodPatch, "/cart/items/{id}", s.updateCartItem)
	me(http.MethodDelete, "/cart/items/{id}", s.removeCartItem)
	me(http.MethodPost, "/checkout", s.checkout)
	me(http.MethodGet, "/orders", s.listOrders)
	me(http.MethodGet, "/orders/{id}", s.getOrder)
	me(http.MethodGet, "/orders/{id}/timeline", s.orderTimeline)
	me(http.MethodPost, "/orders/{id}/cancel", s.cancelOrder)
	me(http.MethodPost, "/payments/deeplink", s.applyDeepLink)

	admin(http.MethodPut, "/admin/products/{id}", s.upsertProduct)
	admin(http.MethodPut, "/admin/subcategories/{id}", s.upsertSubCategory)
	admin(http.MethodGet, "/admin/orders/{id}", s.adminGetOrder)
	admin(http.MethodPost, "/admin/orders/{id}/status", s.adminUpdateStatus)
	admin(http.MethodGet, "/admin/orders/{id}/mails", s.adminOrderMails)

	// Лимит и наблюдение оборачивают весь роутер, чтобы 404 и 405 тоже учитывались.
	var handler http.Handler = root
	if opts.RateLimiter != nil {
		handler = opts.RateLimiter.Middleware(svc.Accounts)(handler)
	}
	s.handler = observeMiddleware(root, opts.Metrics, logger)(handler)
	return s
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// customerID возвращает ID клиента из контекста; маршрут уже прошёл authMiddleware.
func customerID(r *http.Request) string {
	p, _ := PrincipalFrom(r.Context())
	return p.CustomerID
}
