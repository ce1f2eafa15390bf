package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

// OrderServiceClient calls OrderServiceServer over a connection using the
// JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRPCRequest, opts ...grpc.CallOption) (*OrderView, error) {
	out := new(OrderView)
	if err := c.invoke(ctx, "PlaceOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderView, error) {
	out := new(OrderView)
	if err := c.invoke(ctx, "GetOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.invoke(ctx, "ListOrders", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) UpdateStatus(ctx context.Context, in *UpdateStatusRPCRequest, opts ...grpc.CallOption) (*OrderView, error) {
	out := new(OrderView)
	if err := c.invoke(ctx, "UpdateStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) InitiatePayment(ctx context.Context, in *InitiatePaymentRequest, opts ...grpc.CallOption) (*domain.PaymentRedirect, error) {
	out := new(domain.PaymentRedirect)
	if err := c.invoke(ctx, "InitiatePayment", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+OrderServiceName+"/"+method, in, out, opts...)
}
