package handler

import (
	"time"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type lineItemView struct {
	Product     string `json:"product"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
}

type customerView struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type OrderView struct {
	ID              string                 `json:"id"`
	User            customerView           `json:"user"`
	Items           []lineItemView         `json:"items"`
	ItemsTotal      string                 `json:"itemsTotal"`
	DeliveryFee     string                 `json:"deliveryFee"`
	GrandTotal      string                 `json:"grandTotal"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	PaymentStatus   string                 `json:"paymentStatus"`
	Status          string                 `json:"status"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func newOrderView(o *domain.Order) OrderView {
	items := make([]lineItemView, len(o.Items))
	for i, item := range o.Items {
		items[i] = lineItemView{
			Product:     item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
		}
	}

	return OrderView{
		ID:              o.ID,
		User:            customerView{ID: o.Owner.ID, Name: o.Owner.Name, Email: o.Owner.Email},
		Items:           items,
		ItemsTotal:      o.ItemsTotal.StringFixed(2),
		DeliveryFee:     o.DeliveryFee.StringFixed(2),
		GrandTotal:      o.GrandTotal.StringFixed(2),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		PaymentStatus:   string(o.PaymentStatus),
		Status:          string(o.FulfillmentStatus),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func newOrderViews(orders []domain.Order) []OrderView {
	views := make([]OrderView, len(orders))
	for i := range orders {
		views[i] = newOrderView(&orders[i])
	}
	return views
}

type PlaceOrderItemRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items         []PlaceOrderItemRequest `json:"items"`
	Address       domain.ShippingAddress  `json:"address"`
	PaymentMethod string                  `json:"paymentMethod"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type InitiatePaymentRequest struct {
	OrderID string `json:"orderId"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
