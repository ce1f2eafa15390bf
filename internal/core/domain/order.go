package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodOnline         PaymentMethod = "ONLINE"
)

// ParsePaymentMethod accepts the canonical names and the storefront's legacy
// "COD" / "ONLINE_TEST" spellings.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PaymentMethodCashOnDelivery), "COD":
		return PaymentMethodCashOnDelivery, nil
	case string(PaymentMethodOnline), "ONLINE_TEST":
		return PaymentMethodOnline, nil
	}
	return "", fmt.Errorf("%w: invalid payment method %q", ErrValidation, s)
}

type ShippingAddress struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postalCode"`
	Line       string `json:"line"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// UnmarshalJSON also accepts the storefront's older pincode and addressLine
// keys.
func (a *ShippingAddress) UnmarshalJSON(data []byte) error {
	type plain ShippingAddress
	var in struct {
		plain
		Pincode     string `json:"pincode"`
		AddressLine string `json:"addressLine"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*a = ShippingAddress(in.plain)
	if a.PostalCode == "" {
		a.PostalCode = in.Pincode
	}
	if a.Line == "" {
		a.Line = in.AddressLine
	}
	return nil
}

func (a ShippingAddress) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"phone", a.Phone},
		{"postalCode", a.PostalCode},
		{"line", a.Line},
		{"city", a.City},
		{"state", a.State},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: address missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Customer is the placing principal as it looked when the order was created.
type Customer struct {
	ID    string
	Name  string
	Email string
}

type LineItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal // snapshotted at creation
}

func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID                string
	Owner             Customer
	Items             []LineItem
	ItemsTotal        decimal.Decimal
	DeliveryFee       decimal.Decimal
	GrandTotal        decimal.Decimal
	ShippingAddress   ShippingAddress
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderFilter narrows operator listings. Zero values match everything.
type OrderFilter struct {
	FulfillmentStatus FulfillmentStatus
	PaymentStatus     PaymentStatus
}

func (f OrderFilter) Matches(o Order) bool {
	if f.FulfillmentStatus != "" && o.FulfillmentStatus != f.FulfillmentStatus {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	return true
}
