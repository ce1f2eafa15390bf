package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

const (
	SandboxActionURL    = "https://test.payu.in/_payment"
	ProductionActionURL = "https://secure.payu.in/_payment"
)

// PayU signs hosted-checkout requests and verifies the reverse hash the
// gateway posts back. The salt never leaves this type.
type PayU struct {
	key        string
	salt       string
	actionURL  string
	successURL string
	failureURL string
}

func NewPayU(key, salt, env, successURL, failureURL string) (*PayU, error) {
	if key == "" || salt == "" {
		return nil, errors.New("payu: merchant key and salt are required")
	}

	actionURL := SandboxActionURL
	switch strings.ToLower(env) {
	case "", "test", "sandbox":
	case "prod", "production":
		actionURL = ProductionActionURL
	default:
		return nil, fmt.Errorf("payu: unknown environment %q", env)
	}

	return &PayU{
		key:        key,
		salt:       salt,
		actionURL:  actionURL,
		successURL: successURL,
		failureURL: failureURL,
	}, nil
}

func (p *PayU) BuildPaymentRequest(req domain.PaymentRequest) (domain.PaymentRedirect, error) {
	if req.TxnID == "" || req.OrderID == "" {
		return domain.PaymentRedirect{}, fmt.Errorf("%w: txnid and order id are required", domain.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return domain.PaymentRedirect{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	amount := req.Amount.StringFixed(2)

	return domain.PaymentRedirect{
		ActionURL: p.actionURL,
		Params: map[string]string{
			"key":         p.key,
			"txnid":       req.TxnID,
			"amount":      amount,
			"productinfo": req.ProductInfo,
			"firstname":   req.FirstName,
			"email":       req.Email,
			"phone":       req.Phone,
			"surl":        p.successURL,
			"furl":        p.failureURL,
			"udf1":        req.OrderID,
			"hash":        p.RequestHash(req.TxnID, amount, req.ProductInfo, req.FirstName, req.Email, req.OrderID),
		},
	}, nil
}

// RequestHash is sha512(key|txnid|amount|productinfo|firstname|email|udf1|udf2..udf10|salt)
// with udf2 through udf10 empty.
func (p *PayU) RequestHash(txnID, amount, productInfo, firstName, email, udf1 string) string {
	fields := []string{p.key, txnID, amount, productInfo, firstName, email, udf1}
	fields = append(fields, make([]string, 9)...)
	fields = append(fields, p.salt)
	return sha512Hex(strings.Join(fields, "|"))
}

// ResponseHash is the reverse hash the gateway signs its callback with:
// [additionalCharges|]salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key
func (p *PayU) ResponseHash(cb domain.PaymentCallback) string {
	fields := []string{p.salt, cb.Status, "", "", "", "", "",
		cb.UDF5, cb.UDF4, cb.UDF3, cb.UDF2, cb.UDF1,
		cb.Email, cb.FirstName, cb.ProductInfo, cb.Amount, cb.TxnID, cb.Key,
	}
	if cb.AdditionalCharges != "" {
		fields = append([]string{cb.AdditionalCharges}, fields...)
	}
	return sha512Hex(strings.Join(fields, "|"))
}

func (p *PayU) VerifyCallback(cb domain.PaymentCallback) (domain.PaymentStatus, error) {
	if cb.TxnID == "" || cb.Hash == "" || cb.Key == "" {
		return "", fmt.Errorf("%w: txnid, key and hash are required", domain.ErrMalformedCallback)
	}
	if subtle.ConstantTimeCompare([]byte(cb.Key), []byte(p.key)) != 1 {
		return "", fmt.Errorf("%w: merchant key mismatch", domain.ErrInvalidSignature)
	}

	expected := p.ResponseHash(cb)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(cb.Hash)), []byte(expected)) != 1 {
		return "", fmt.Errorf("%w: hash mismatch for %s", domain.ErrInvalidSignature, cb.TxnID)
	}

	return MapStatus(cb.Status), nil
}

// MapStatus translates the gateway's status word. Anything it does not
// recognise leaves the payment pending.
func MapStatus(status string) domain.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return domain.PaymentPaid
	case "failure", "failed":
		return domain.PaymentFailed
	}
	return domain.PaymentPending
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
