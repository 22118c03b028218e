package grpcapi

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
)

// OrderDesk реализует OrderDeskServer поверх сервиса заказов.
type OrderDesk struct {
	orders *orders.Service
	guard  *idempotency.Guard
	logger *log.Entry
}

var _ OrderDeskServer = (*OrderDesk)(nil)

// NewOrderDesk конструирует сервис; keys может быть nil, тогда повторы не отсекаются.
func NewOrderDesk(svc *orders.Service, keys domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *OrderDesk {
	if logger == nil {
		logger = log.WithField("component", "order-desk")
	}
	return &OrderDesk{
		orders: svc,
		guard:  idempotency.NewGuard(keys, ttl, logger.WithField("layer", "idempotency")),
		logger: logger,
	}
}

// GetOrder возвращает любой заказ с хронологией.
func (d *OrderDesk) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := d.orders.GetAnyOrder(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	timeline, err := d.orders.OrderTimeline(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetOrderResponse{Order: order, Timeline: timeline}, nil
}

// ListCustomerOrders возвращает историю заказов клиента.
func (d *OrderDesk) ListCustomerOrders(ctx context.Context, req *ListCustomerOrdersRequest) (*ListCustomerOrdersResponse, error) {
	if req == nil || strings.TrimSpace(req.CustomerID) == "" {
		return nil, status.Error(codes.InvalidArgument, "customer_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListCustomerOrderLimit
	}
	list, err := d.orders.ListOrders(ctx, req.CustomerID, limit)
	if err != nil {
		d.logger.WithError(err).WithField("customer_id", req.CustomerID).Error("failed to list orders")
		return nil, toStatus(err)
	}
	return &ListCustomerOrdersResponse{Orders: list}, nil
}

// UpdateOrderStatus переводит заказ по таблице статусов; требует idempotency-key.
func (d *OrderDesk) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	if !req.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
	}

	return withIdempotency(d, ctx, MethodUpdateOrderStatus, req,
		func(ctx context.Context) (*UpdateOrderStatusResponse, error) {
			order, err := d.orders.UpdateStatus(ctx, req.OrderID, req.Status, req.Reason)
			if err != nil {
				return nil, toStatus(err)
			}
			d.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"status":   order.Status,
			}).Info("order status updated from order desk")
			return &UpdateOrderStatusResponse{Order: order}, nil
		},
	)
}
