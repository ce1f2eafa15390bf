package port

import "github.com/rl1809/storefront-orders/internal/core/domain"

type PaymentGateway interface {
	// BuildPaymentRequest signs the hosted-form parameters for one payment attempt
	BuildPaymentRequest(req domain.PaymentRequest) (domain.PaymentRedirect, error)

	// VerifyCallback checks the callback signature and maps the reported status
	VerifyCallback(cb domain.PaymentCallback) (domain.PaymentStatus, error)
}
