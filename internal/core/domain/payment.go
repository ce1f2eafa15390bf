package domain

import "github.com/shopspring/decimal"

// PaymentRequest is what the gateway needs to sign a hosted-form payment.
type PaymentRequest struct {
	OrderID     string
	TxnID       string
	Amount      decimal.Decimal
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
}

// PaymentRedirect is handed to the client, which posts Params to ActionURL.
type PaymentRedirect struct {
	ActionURL string            `json:"actionUrl"`
	Params    map[string]string `json:"formParams"`
}

// PaymentCallback carries the fields the gateway posts back, verbatim.
type PaymentCallback struct {
	Status            string
	TxnID             string
	GatewayPaymentID  string
	Hash              string
	Key               string
	Amount            string
	ProductInfo       string
	FirstName         string
	Email             string
	UDF1              string
	UDF2              string
	UDF3              string
	UDF4              string
	UDF5              string
	AdditionalCharges string
}

// OrderID is the correlation field echoed back by the gateway.
func (c PaymentCallback) OrderID() string {
	return c.UDF1
}

type CallbackResult struct {
	Order   *Order
	Status  PaymentStatus
	Applied bool // false when the callback was a replay or left the order pending
}
