package port

import (
	"context"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type OrderRepository interface {
	// PlaceOrder persists a new order and decrements stock for every line item as one unit
	PlaceOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order by ID, nil if absent
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrdersByOwner returns the owner's orders, newest first
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]domain.Order, error)

	// ListOrders returns all orders matching filter, newest first
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// UpdateFulfillmentStatus moves the order from one status to another, ErrOptimisticLock if it is no longer in from
	UpdateFulfillmentStatus(ctx context.Context, orderID string, from, to domain.FulfillmentStatus) error

	// UpdatePaymentStatus settles a PENDING payment, ErrOptimisticLock if it is already settled
	UpdatePaymentStatus(ctx context.Context, orderID string, to domain.PaymentStatus) error
}
