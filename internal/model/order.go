package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

// orderTransitions is the complete table of allowed order status changes.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderCompleted, OrderCancelled},
	OrderCompleted:  {OrderRefunded},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderCompleted, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// Active reports whether the order is still awaiting payment.
func (s OrderStatus) Active() bool {
	return s == OrderPending || s == OrderProcessing
}

// CanTransition reports whether from -> to is in the allowed table.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DeliveryMethod describes how credentials reach the buyer.
type DeliveryMethod string

const (
	DeliveryInstant DeliveryMethod = "INSTANT"
	DeliveryEmail   DeliveryMethod = "EMAIL"
)

// Order is a purchase of one account by one buyer.
type Order struct {
	ID             string         `json:"id"`
	OrderNumber    string         `json:"order_number"`
	BuyerID        string         `json:"buyer_id"`
	CustomerName   string         `json:"customer_name"`
	CustomerEmail  string         `json:"customer_email"`
	AccountID      string         `json:"account_id"`
	BlindBoxID     string         `json:"blind_box_id,omitempty"`
	Amount         int64          `json:"amount"`
	Status         OrderStatus    `json:"status"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// ActiveKey is the uniqueness key held by a non-terminal order, so that a
// buyer has at most one open order per account.
func (o *Order) ActiveKey() *string {
	if !o.Status.Active() {
		return nil
	}
	k := o.BuyerID + "|" + o.AccountID
	return &k
}
