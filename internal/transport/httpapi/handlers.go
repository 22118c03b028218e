package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/cart"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/checkout"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type quoteRequest struct {
	Size     string                   `json:"size"`
	Options  []domain.OptionSelection `json:"options"`
	Quantity int                      `json:"quantity"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
	Reason string             `json:"reason"`
}

type deepLinkRequest struct {
	URL string `json:"url"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in account.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	session, err := s.svc.Accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	session, err := s.svc.Accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.CategoryGroup]{Items: groups})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Category:      domain.Category(strings.TrimSpace(q.Get("category"))),
		SubCategoryID: strings.TrimSpace(q.Get("sub_category")),
		Query:         q.Get("q"),
		OnlyAvailable: q.Get("available") == "true",
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, s.logger, domain.ValidationErrors{{Field: "limit", Message: "must be a non-negative integer"}})
			return
		}
		filter.Limit = limit
	}

	products, err := s.svc.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Product]{Items: products})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.svc.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var in quoteRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	quote, err := s.svc.Catalog.Quote(r.Context(), mux.Vars(r)["id"], in.Size, in.Options, in.Quantity)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	customer, err := s.svc.Accounts.GetProfile(r.Context(), customerID(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in account.ProfileUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	customer, err := s.svc.Accounts.UpdateProfile(r.Context(), customerID(r), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Cart.GetCart(r.Context(), customerID(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var in cart.AddItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	summary, err := s.svc.Cart.AddItem(r.Context(), customerID(r), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var in cart.UpdateItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	summary, err := s.svc.Cart.UpdateItem(r.Context(), customerID(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Cart.RemoveItem(r.Context(), customerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Cart.Clear(r.Context(), customerID(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, s.logger, domain.ValidationErrors{{Field: "body", Message: "is too large"}})
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var req checkout.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}

	id := customerID(r)
	s.withIdempotency(w, r, id+":checkout", body, func() (int, any, error) {
		order, err := s.svc.Checkout.PlaceOrder(r.Context(), id, req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, order, nil
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, s.logger, domain.ValidationErrors{{Field: "limit", Message: "must be a non-negative integer"}})
			return
		}
		limit = parsed
	}
	list, err := s.svc.Orders.ListOrders(r.Context(), customerID(r), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Order]{Items: list})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.Orders.GetOrder(r.Context(), customerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) orderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Orders.Timeline(r.Context(), customerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.TimelineEvent]{Items: events})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var in reasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}
	order, err := s.svc.Orders.Cancel(r.Context(), customerID(r), mux.Vars(r)["id"], in.Reason)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) applyDeepLink(w http.ResponseWriter, r *http.Request) {
	var in deepLinkRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	order, err := s.svc.Payments.ApplyDeepLink(r.Context(), customerID(r), in.URL)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) upsertProduct(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if err := decodeJSON(w, r, &product); err != nil {
		writeError(w, s.logger, err)
		return
	}
	product.ID = mux.Vars(r)["id"]
	saved, err := s.svc.Catalog.UpsertProduct(r.Context(), product)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) upsertSubCategory(w http.ResponseWriter, r *http.Request) {
	var sub domain.SubCategory
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, s.logger, err)
		return
	}
	sub.ID = mux.Vars(r)["id"]
	if err := s.svc.Catalog.UpsertSubCategory(r.Context(), sub); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.Orders.GetAnyOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.logger, err)
		return
	}
	order, err := s.svc.Orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], in.Status, in.Reason)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) adminOrderMails(w http.ResponseWriter, r *http.Request) {
	if s.svc.Mails == nil {
		writeJSON(w, http.StatusOK, listResponse[domain.Mail]{Items: []domain.Mail{}})
		return
	}
	mails, err := s.svc.Mails.ListByOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if mails == nil {
		mails = []domain.Mail{}
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Mail]{Items: mails})
}
