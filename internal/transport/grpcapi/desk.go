package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// Полные имена методов OrderDesk.
const (
	ServiceName                   = "coffeeshop.v1.OrderDesk"
	MethodGetOrder                = "/" + ServiceName + "/GetOrder"
	MethodListCustomerOrders      = "/" + ServiceName + "/ListCustomerOrders"
	MethodUpdateOrderStatus       = "/" + ServiceName + "/UpdateOrderStatus"
	IdempotencyKeyMetadata        = "idempotency-key"
	authorizationMetadata         = "authorization"
	defaultListCustomerOrderLimit = 50
)

// GetOrderRequest — запрос карточки заказа.
type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

// GetOrderResponse — заказ вместе с хронологией.
type GetOrderResponse struct {
	Order    domain.Order           `json:"order"`
	Timeline []domain.TimelineEvent `json:"timeline"`
}

// ListCustomerOrdersRequest — история заказов клиента.
type ListCustomerOrdersRequest struct {
	CustomerID string `json:"customer_id"`
	Limit      int    `json:"limit,omitempty"`
}

// ListCustomerOrdersResponse — заказы, новые первыми.
type ListCustomerOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// UpdateOrderStatusRequest — перевод заказа в следующий статус сотрудником.
type UpdateOrderStatusRequest struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Reason  string             `json:"reason,omitempty"`
}

// UpdateOrderStatusResponse — заказ после перехода.
type UpdateOrderStatusResponse struct {
	Order domain.Order `json:"order"`
}

// OrderDeskServer — серверная сторона сервиса для инструментов кофейни.
type OrderDeskServer interface {
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListCustomerOrders(context.Context, *ListCustomerOrdersRequest) (*ListCustomerOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
}

// RegisterOrderDeskServer регистрирует реализацию на gRPC сервере.
func RegisterOrderDeskServer(s grpc.ServiceRegistrar, srv OrderDeskServer) {
	s.RegisterService(&orderDeskServiceDesc, srv)
}

var orderDeskServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderDeskServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(MethodGetOrder, OrderDeskServer.GetOrder),
		},
		{
			MethodName: "ListCustomerOrders",
			Handler:    unaryHandler(MethodListCustomerOrders, OrderDeskServer.ListCustomerOrders),
		},
		{
			MethodName: "UpdateOrderStatus",
			Handler:    unaryHandler(MethodUpdateOrderStatus, OrderDeskServer.UpdateOrderStatus),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coffeeshop/v1/order_desk",
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(OrderDeskServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderDeskServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderDeskServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderDeskClient — клиент OrderDesk (используется storefrontctl и тестами).
type OrderDeskClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderDeskClient создаёт клиента поверх соединения.
func NewOrderDeskClient(cc grpc.ClientConnInterface) *OrderDeskClient {
	return &OrderDeskClient{cc: cc}
}

// GetOrder возвращает заказ с хронологией.
func (c *OrderDeskClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.invoke(ctx, MethodGetOrder, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCustomerOrders возвращает историю заказов клиента.
func (c *OrderDeskClient) ListCustomerOrders(ctx context.Context, in *ListCustomerOrdersRequest, opts ...grpc.CallOption) (*ListCustomerOrdersResponse, error) {
	out := new(ListCustomerOrdersResponse)
	if err := c.invoke(ctx, MethodListCustomerOrders, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateOrderStatus переводит заказ в новый статус.
func (c *OrderDeskClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error) {
	out := new(UpdateOrderStatusResponse)
	if err := c.invoke(ctx, MethodUpdateOrderStatus, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderDeskClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, callOpts...)
}
