package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
)

const OrderServiceName = "storefront.order.v1.OrderService"

type PlaceOrderRPCRequest struct {
	Items          []PlaceOrderItemRequest `json:"items"`
	Address        domain.ShippingAddress  `json:"address"`
	PaymentMethod  string                  `json:"paymentMethod"`
	IdempotencyKey string                  `json:"idempotencyKey,omitempty"`
}

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type ListOrdersRequest struct {
	Mine          bool   `json:"mine"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

type ListOrdersResponse struct {
	Orders []OrderView `json:"orders"`
}

type UpdateStatusRPCRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// OrderServiceServer is the internal RPC surface over the order and payment
// services. The caller identity travels in metadata (x-user-id and friends).
type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRPCRequest) (*OrderView, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderView, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRPCRequest) (*OrderView, error)
	InitiatePayment(context.Context, *InitiatePaymentRequest) (*domain.PaymentRedirect, error)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PlaceOrder", OrderServiceServer.PlaceOrder),
		unary("GetOrder", OrderServiceServer.GetOrder),
		unary("ListOrders", OrderServiceServer.ListOrders),
		unary("UpdateStatus", OrderServiceServer.UpdateStatus),
		unary("InitiatePayment", OrderServiceServer.InitiatePayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/order/v1",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + OrderServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(OrderServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(OrderServiceServer), ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	logger   *zap.Logger
}

func NewGRPCHandler(orders *service.OrderService, payments *service.PaymentService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orders: orders, payments: payments, logger: logger}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRPCRequest) (*OrderView, error) {
	in := service.PlaceOrderInput{
		Items:          make([]service.PlaceOrderItem, len(req.Items)),
		Address:        req.Address,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	}
	for i, item := range req.Items {
		in.Items[i] = service.PlaceOrderItem{ProductID: item.Product, Quantity: item.Quantity}
	}

	order, err := h.orders.PlaceOrder(ctx, principalFromContext(ctx), in)
	if err != nil {
		return nil, h.grpcError(err)
	}
	view := newOrderView(order)
	return &view, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderView, error) {
	order, err := h.orders.GetOrder(ctx, principalFromContext(ctx), req.OrderID)
	if err != nil {
		return nil, h.grpcError(err)
	}
	view := newOrderView(order)
	return &view, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	caller := principalFromContext(ctx)

	var (
		orders []domain.Order
		err    error
	)
	if req.Mine {
		orders, err = h.orders.ListMyOrders(ctx, caller)
	} else {
		var filter domain.OrderFilter
		if filter, err = rpcFilter(req); err == nil {
			orders, err = h.orders.ListOrders(ctx, caller, filter)
		}
	}
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &ListOrdersResponse{Orders: newOrderViews(orders)}, nil
}

func (h *GRPCHandler) UpdateStatus(ctx context.Context, req *UpdateStatusRPCRequest) (*OrderView, error) {
	order, err := h.orders.UpdateFulfillmentStatus(ctx, principalFromContext(ctx), req.OrderID, req.Status)
	if err != nil {
		return nil, h.grpcError(err)
	}
	view := newOrderView(order)
	return &view, nil
}

func (h *GRPCHandler) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*domain.PaymentRedirect, error) {
	if h.payments == nil {
		return nil, status.Error(codes.Unavailable, "payments are not configured")
	}

	redirect, err := h.payments.InitiatePayment(ctx, principalFromContext(ctx), req.OrderID)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return &redirect, nil
}

func rpcFilter(req *ListOrdersRequest) (domain.OrderFilter, error) {
	var filter domain.OrderFilter
	if req.Status != "" {
		s, err := domain.ParseFulfillmentStatus(req.Status)
		if err != nil {
			return filter, err
		}
		filter.FulfillmentStatus = s
	}
	if req.PaymentStatus != "" {
		s, err := domain.ParsePaymentStatus(req.PaymentStatus)
		if err != nil {
			return filter, err
		}
		filter.PaymentStatus = s
	}
	return filter, nil
}

func principalFromContext(ctx context.Context) domain.Principal {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Principal{}
	}
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return newPrincipal(first("x-user-id"), first("x-user-name"), first("x-user-email"), first("x-user-role"))
}

func (h *GRPCHandler) grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrUpstream):
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrOptimisticLock):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	h.logger.Error("rpc failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}
