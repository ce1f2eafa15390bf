package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

type PlaceOrderItem struct {
	ProductID string
	Quantity  int
}

type PlaceOrderInput struct {
	Items          []PlaceOrderItem
	Address        domain.ShippingAddress
	PaymentMethod  string
	IdempotencyKey string
}

type OrderService struct {
	catalog port.CatalogReader
	orders  port.OrderRepository
	cache   port.CacheRepository
	pricing PricingPolicy
	events  *EventQueue
	logger  *zap.Logger
	now     func() time.Time
}

func NewOrderService(
	catalog port.CatalogReader,
	orders port.OrderRepository,
	cache port.CacheRepository,
	pricing PricingPolicy,
	events *EventQueue,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		catalog: catalog,
		orders:  orders,
		cache:   cache,
		pricing: pricing,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *OrderService) PlaceOrder(ctx context.Context, caller domain.Principal, in PlaceOrderInput) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	method, err := validatePlacement(in)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey == "" {
		return s.placeOrder(ctx, caller, in.Items, in.Address, method)
	}

	idempotencyKey := fmt.Sprintf("order:%s:%s", caller.ID, in.IdempotencyKey)

	existing, ok, err := s.cache.ClaimIdempotency(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency check failed: %w", domain.ErrUpstream, err)
	}
	if !ok {
		if existing == "" {
			return nil, domain.ErrDuplicateRequest
		}
		return s.replayOrder(ctx, existing)
	}

	order, err := s.placeOrder(ctx, caller, in.Items, in.Address, method)
	if err != nil {
		if releaseErr := s.cache.ReleaseIdempotency(ctx, idempotencyKey); releaseErr != nil {
			s.logger.Error("failed to release idempotency key",
				zap.String("key", idempotencyKey), zap.Error(releaseErr))
		}
		return nil, err
	}

	if err := s.cache.CompleteIdempotency(ctx, idempotencyKey, order.ID); err != nil {
		s.logger.Error("failed to record idempotency outcome",
			zap.String("key", idempotencyKey), zap.String("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) placeOrder(
	ctx context.Context,
	caller domain.Principal,
	items []PlaceOrderItem,
	address domain.ShippingAddress,
	method domain.PaymentMethod,
) (*domain.Order, error) {
	lines := make([]domain.LineItem, 0, len(items))

	for _, item := range items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: get product %s: %w", domain.ErrUpstream, item.ProductID, err)
		}
		if !product.Purchasable() {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		if item.Quantity > product.Stock {
			return nil, &domain.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   product.Stock,
			}
		}

		lines = append(lines, domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
	}

	totals := s.pricing.Quote(lines)
	now := s.now().UTC()

	order := domain.Order{
		ID:                uuid.NewString(),
		Owner:             caller.Customer(),
		Items:             lines,
		ItemsTotal:        totals.ItemsTotal,
		DeliveryFee:       totals.DeliveryFee,
		GrandTotal:        totals.GrandTotal,
		ShippingAddress:   address,
		PaymentMethod:     method,
		PaymentStatus:     domain.PaymentPending,
		FulfillmentStatus: domain.FulfillmentPlaced,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.orders.PlaceOrder(ctx, order); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("order rejected at stock decrement",
				zap.String("owner_id", caller.ID), zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("%w: persist order: %w", domain.ErrUpstream, err)
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("owner_id", caller.ID),
		zap.Int("line_items", len(order.Items)),
		zap.String("grand_total", order.GrandTotal.StringFixed(2)))

	s.events.Enqueue(domain.EventOrderPlaced, order.ID, map[string]any{
		"owner_id":       order.Owner.ID,
		"grand_total":    order.GrandTotal.StringFixed(2),
		"payment_method": string(order.PaymentMethod),
	})

	return &order, nil
}

func (s *OrderService) replayOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: get order %s: %w", domain.ErrUpstream, orderID, err)
	}
	if order == nil {
		return nil, domain.ErrDuplicateRequest
	}
	s.logger.Info("replayed idempotent order placement", zap.String("order_id", orderID))
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, caller domain.Principal, orderID string) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return s.loadAccessible(ctx, caller, orderID)
}

func (s *OrderService) ListMyOrders(ctx context.Context, caller domain.Principal) ([]domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	orders, err := s.orders.ListOrdersByOwner(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrUpstream, err)
	}
	return orders, nil
}

func (s *OrderService) ListOrders(ctx context.Context, caller domain.Principal, filter domain.OrderFilter) ([]domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !caller.Operator {
		return nil, domain.ErrForbidden
	}

	orders, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrUpstream, err)
	}
	return orders, nil
}

// UpdateFulfillmentStatus is the operator-driven side of the order state
// machine. Setting the current status again is a no-op.
func (s *OrderService) UpdateFulfillmentStatus(ctx context.Context, caller domain.Principal, orderID, status string) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !caller.Operator {
		return nil, domain.ErrForbidden
	}

	next, err := domain.ParseFulfillmentStatus(status)
	if err != nil {
		return nil, err
	}

	order, err := s.loadAccessible(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}

	current := order.FulfillmentStatus
	if current == next {
		return order, nil
	}
	if !current.CanTransitionTo(next) {
		return nil, &domain.TransitionError{Field: "fulfillment", From: string(current), To: string(next)}
	}

	if err := s.orders.UpdateFulfillmentStatus(ctx, order.ID, current, next); err != nil {
		if errors.Is(err, domain.ErrOptimisticLock) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update status: %w", domain.ErrUpstream, err)
	}

	s.logger.Info("fulfillment status updated",
		zap.String("order_id", order.ID),
		zap.String("from", string(current)),
		zap.String("to", string(next)),
		zap.String("operator_id", caller.ID))

	s.events.Enqueue(domain.EventOrderStatusChanged, order.ID, map[string]any{
		"from": string(current),
		"to":   string(next),
	})

	return s.loadAccessible(ctx, caller, order.ID)
}

func (s *OrderService) loadAccessible(ctx context.Context, caller domain.Principal, orderID string) (*domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: get order %s: %w", domain.ErrUpstream, orderID, err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !caller.CanAccess(order) {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func validatePlacement(in PlaceOrderInput) (domain.PaymentMethod, error) {
	if len(in.Items) == 0 {
		return "", fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return "", fmt.Errorf("%w: item %d: product id is required", domain.ErrValidation, i)
		}
		if item.Quantity < 1 {
			return "", fmt.Errorf("%w: item %d: quantity must be at least 1, got %d", domain.ErrValidation, i, item.Quantity)
		}
	}
	if err := in.Address.Validate(); err != nil {
		return "", err
	}
	return domain.ParsePaymentMethod(in.PaymentMethod)
}
