package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

const (
	defaultPayerName  = "Customer"
	defaultPayerEmail = "test@example.com"
	defaultPayerPhone = "9999999999"
)

type PaymentService struct {
	orders  port.OrderRepository
	gateway port.PaymentGateway
	cache   port.CacheRepository
	events  *EventQueue
	logger  *zap.Logger
	now     func() time.Time
}

func NewPaymentService(
	orders port.OrderRepository,
	gateway port.PaymentGateway,
	cache port.CacheRepository,
	events *EventQueue,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		orders:  orders,
		gateway: gateway,
		cache:   cache,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// InitiatePayment prepares the signed hosted-form parameters for an online
// order. Nothing is sent to the gateway from here.
func (s *PaymentService) InitiatePayment(ctx context.Context, caller domain.Principal, orderID string) (domain.PaymentRedirect, error) {
	if !caller.Authenticated() {
		return domain.PaymentRedirect{}, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.PaymentRedirect{}, fmt.Errorf("%w: orderId is required", domain.ErrValidation)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return domain.PaymentRedirect{}, err
	}
	if !caller.CanAccess(order) {
		return domain.PaymentRedirect{}, domain.ErrForbidden
	}
	if order.PaymentMethod != domain.PaymentMethodOnline {
		return domain.PaymentRedirect{}, fmt.Errorf("%w: order %s is not payable online", domain.ErrValidation, order.ID)
	}
	if order.FulfillmentStatus == domain.FulfillmentCancelled {
		return domain.PaymentRedirect{}, fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidTransition, order.ID)
	}
	if order.PaymentStatus != domain.PaymentPending {
		return domain.PaymentRedirect{}, &domain.TransitionError{
			Field: "payment", From: string(order.PaymentStatus), To: string(domain.PaymentPending),
		}
	}

	req := domain.PaymentRequest{
		OrderID:     order.ID,
		TxnID:       fmt.Sprintf("txn_%s_%d", order.ID, s.now().UnixMilli()),
		Amount:      order.GrandTotal,
		ProductInfo: "Order-" + order.ID,
		FirstName:   firstNonBlank(order.ShippingAddress.Name, order.Owner.Name, defaultPayerName),
		Email:       firstNonBlank(order.Owner.Email, defaultPayerEmail),
		Phone:       firstNonBlank(order.ShippingAddress.Phone, defaultPayerPhone),
	}

	redirect, err := s.gateway.BuildPaymentRequest(req)
	if err != nil {
		return domain.PaymentRedirect{}, fmt.Errorf("%w: build payment request: %w", domain.ErrUpstream, err)
	}

	s.logger.Info("payment initiated",
		zap.String("order_id", order.ID),
		zap.String("txn_id", req.TxnID),
		zap.String("amount", req.Amount.StringFixed(2)))

	return redirect, nil
}

// HandleCallback verifies a gateway callback and settles the order's payment
// status. Replays of an already applied outcome are acknowledged without
// touching the order.
func (s *PaymentService) HandleCallback(ctx context.Context, cb domain.PaymentCallback) (domain.CallbackResult, error) {
	if cb.TxnID == "" || cb.Key == "" || cb.Hash == "" {
		return domain.CallbackResult{}, fmt.Errorf("%w: txnid, key and hash are required", domain.ErrMalformedCallback)
	}

	status, err := s.gateway.VerifyCallback(cb)
	if err != nil {
		s.logger.Warn("rejected payment callback", zap.String("txn_id", cb.TxnID), zap.Error(err))
		return domain.CallbackResult{}, err
	}

	orderID := cb.OrderID()
	if orderID == "" {
		return domain.CallbackResult{}, fmt.Errorf("%w: correlation field is empty", domain.ErrMalformedCallback)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return domain.CallbackResult{}, err
	}

	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil {
		return domain.CallbackResult{}, fmt.Errorf("%w: amount %q", domain.ErrMalformedCallback, cb.Amount)
	}
	// the gateway is asked to charge the total at two decimal places
	charged := order.GrandTotal.Round(2)
	if !amount.Equal(charged) {
		s.logger.Warn("payment callback amount mismatch",
			zap.String("order_id", order.ID),
			zap.String("txn_id", cb.TxnID),
			zap.String("claimed", cb.Amount),
			zap.String("expected", charged.StringFixed(2)))
		return domain.CallbackResult{}, fmt.Errorf("%w: claimed %s, order total %s",
			domain.ErrAmountMismatch, cb.Amount, charged.StringFixed(2))
	}

	if status == domain.PaymentPending {
		return domain.CallbackResult{Order: order, Status: order.PaymentStatus}, nil
	}

	replayKey := "callback:" + cb.TxnID
	existing, claimed, err := s.cache.ClaimIdempotency(ctx, replayKey)
	if err != nil {
		return domain.CallbackResult{}, fmt.Errorf("%w: callback replay check: %w", domain.ErrUpstream, err)
	}
	if !claimed {
		if existing == "" {
			return domain.CallbackResult{}, domain.ErrDuplicateRequest
		}
		s.logger.Info("payment callback replayed", zap.String("txn_id", cb.TxnID), zap.String("outcome", existing))
		return domain.CallbackResult{Order: order, Status: order.PaymentStatus}, nil
	}

	result, err := s.settle(ctx, order, status)
	if err != nil {
		if releaseErr := s.cache.ReleaseIdempotency(ctx, replayKey); releaseErr != nil {
			s.logger.Error("failed to release callback claim", zap.String("txn_id", cb.TxnID), zap.Error(releaseErr))
		}
		return domain.CallbackResult{}, err
	}

	if err := s.cache.CompleteIdempotency(ctx, replayKey, string(result.Status)); err != nil {
		s.logger.Error("failed to record callback outcome", zap.String("txn_id", cb.TxnID), zap.Error(err))
	}

	return result, nil
}

func (s *PaymentService) settle(ctx context.Context, order *domain.Order, status domain.PaymentStatus) (domain.CallbackResult, error) {
	if order.PaymentStatus == status {
		return domain.CallbackResult{Order: order, Status: status}, nil
	}
	if !order.PaymentStatus.CanTransitionTo(status) {
		return domain.CallbackResult{}, &domain.TransitionError{
			Field: "payment", From: string(order.PaymentStatus), To: string(status),
		}
	}

	if err := s.orders.UpdatePaymentStatus(ctx, order.ID, status); err != nil {
		if !errors.Is(err, domain.ErrOptimisticLock) {
			return domain.CallbackResult{}, fmt.Errorf("%w: update payment status: %w", domain.ErrUpstream, err)
		}

		// Another callback settled the order first.
		current, getErr := s.getOrder(ctx, order.ID)
		if getErr != nil {
			return domain.CallbackResult{}, getErr
		}
		if current.PaymentStatus == status {
			return domain.CallbackResult{Order: current, Status: status}, nil
		}
		return domain.CallbackResult{}, &domain.TransitionError{
			Field: "payment", From: string(current.PaymentStatus), To: string(status),
		}
	}

	updated, err := s.getOrder(ctx, order.ID)
	if err != nil {
		return domain.CallbackResult{}, err
	}

	s.logger.Info("payment status settled",
		zap.String("order_id", order.ID),
		zap.String("status", string(status)))

	s.events.Enqueue(domain.EventPaymentStatusChanged, order.ID, map[string]any{
		"from": string(order.PaymentStatus),
		"to":   string(status),
	})

	return domain.CallbackResult{Order: updated, Status: status, Applied: true}, nil
}

func (s *PaymentService) getOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: get order %s: %w", domain.ErrUpstream, orderID, err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
