package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog's view of a sellable item. Only Stock is ever
// written by order placement.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	IsActive  bool
	Version   int // bumped on every write to the row
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Product) Purchasable() bool {
	return p != nil && p.IsActive
}
