package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the order status machine allows s -> next.
// pending -> processing -> shipped -> delivered, and pending|processing -> cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	}
	return false
}

// PaymentMethod is how an order is paid
type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash || m == PaymentMethodTransfer
}

// PaymentStatus tracks the payment state of an order
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ShippingAddress is where an order is delivered
type ShippingAddress struct {
	Street     string `json:"street" db:"ship_street"`
	City       string `json:"city" db:"ship_city"`
	PostalCode string `json:"postal_code" db:"ship_postal_code"`
	Country    string `json:"country" db:"ship_country"`
}

// OrderItem is one line of an order. Price and Name are snapshots taken at
// order-creation time so later product edits do not alter historical orders.
type OrderItem struct {
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"product_name"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Price     float64   `json:"price" db:"unit_price"`
}

// Order is the order aggregate; it exclusively owns its items.
type Order struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	Items         []OrderItem     `json:"items"`
	Shipping      ShippingAddress `json:"shipping_address"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status" db:"payment_status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	TotalItems    int             `json:"total_items" db:"total_items"`
	TotalPrice    float64         `json:"total_price" db:"total_price"`
	Status        OrderStatus     `json:"status" db:"status"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// ComputeTotals derives total item count and total price from order lines.
// Price is rounded to 2 decimals to match the DECIMAL(10,2) column.
func ComputeTotals(items []OrderItem) (totalItems int, totalPrice float64) {
	for _, item := range items {
		totalItems += item.Quantity
		totalPrice += float64(item.Quantity) * item.Price
	}
	totalPrice = math.Round(totalPrice*100) / 100
	return totalItems, totalPrice
}
