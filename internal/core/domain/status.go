package domain

import (
	"fmt"
	"strings"
)

type FulfillmentStatus string

const (
	FulfillmentPlaced    FulfillmentStatus = "PLACED"
	FulfillmentPacked    FulfillmentStatus = "PACKED"
	FulfillmentShipped   FulfillmentStatus = "SHIPPED"
	FulfillmentDelivered FulfillmentStatus = "DELIVERED"
	FulfillmentCancelled FulfillmentStatus = "CANCELLED"
)

// fulfillmentRank orders the shipping lifecycle. CANCELLED sits outside it.
var fulfillmentRank = map[FulfillmentStatus]int{
	FulfillmentPlaced:    0,
	FulfillmentPacked:    1,
	FulfillmentShipped:   2,
	FulfillmentDelivered: 3,
}

// FulfillmentStatuses is the single list of accepted fulfillment values.
func FulfillmentStatuses() []FulfillmentStatus {
	return []FulfillmentStatus{
		FulfillmentPlaced,
		FulfillmentPacked,
		FulfillmentShipped,
		FulfillmentDelivered,
		FulfillmentCancelled,
	}
}

func ParseFulfillmentStatus(s string) (FulfillmentStatus, error) {
	candidate := FulfillmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range FulfillmentStatuses() {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s FulfillmentStatus) Terminal() bool {
	return s == FulfillmentDelivered || s == FulfillmentCancelled
}

// CanTransitionTo allows forward moves along PLACED→PACKED→SHIPPED→DELIVERED
// and cancellation from any non-terminal state.
func (s FulfillmentStatus) CanTransitionTo(next FulfillmentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == FulfillmentCancelled {
		return true
	}
	from, ok := fulfillmentRank[s]
	if !ok {
		return false
	}
	to, ok := fulfillmentRank[next]
	return ok && to > from
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

// CanTransitionTo only permits settling a pending payment.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && next.Terminal()
}

type TransitionError struct {
	Field string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: cannot move from %s to %s", e.Field, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
