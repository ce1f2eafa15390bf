package service

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

var defaultDeliveryFee = decimal.NewFromInt(50)

// PricingPolicy computes authoritative order totals.
type PricingPolicy struct {
	DeliveryFee decimal.Decimal
	// FreeDeliveryThreshold waives the delivery fee when the items total
	// reaches it. Zero disables the waiver.
	FreeDeliveryThreshold decimal.Decimal
}

type Totals struct {
	ItemsTotal  decimal.Decimal
	DeliveryFee decimal.Decimal
	GrandTotal  decimal.Decimal
}

func DefaultPricing() PricingPolicy {
	return PricingPolicy{DeliveryFee: defaultDeliveryFee}
}

func (p PricingPolicy) Quote(lines []domain.LineItem) Totals {
	itemsTotal := decimal.Zero
	for _, line := range lines {
		itemsTotal = itemsTotal.Add(line.Total())
	}

	fee := p.DeliveryFee
	if p.FreeDeliveryThreshold.IsPositive() && itemsTotal.GreaterThanOrEqual(p.FreeDeliveryThreshold) {
		fee = decimal.Zero
	}

	return Totals{
		ItemsTotal:  itemsTotal,
		DeliveryFee: fee,
		GrandTotal:  itemsTotal.Add(fee),
	}
}
