package model

import "time"

// PaymentStatus is the internal payment state; gateway vocabulary is
// translated into it at the gateway boundary.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// paymentAdvances lists the forward moves a payment may make. A transfer that
// settles after the attempt failed or expired still counts as paid.
var paymentAdvances = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentSuccess, PaymentFailed, PaymentCancelled},
	PaymentFailed:    {PaymentSuccess},
	PaymentCancelled: {PaymentSuccess},
	PaymentSuccess:   {PaymentRefunded},
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// DuplicatePaymentReason marks a second settled transfer for an already paid
// order. Such a FAILED payment may still move to REFUNDED.
const DuplicatePaymentReason = "duplicate payment; refund required"

// CanAdvance reports whether a payment in from may move to to.
// Repeats and regressions are never allowed.
func CanAdvance(from, to PaymentStatus) bool {
	for _, next := range paymentAdvances[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAdvance reports whether p may move to to. A duplicate transfer held as
// FAILED can additionally be refunded.
func (p *Payment) CanAdvance(to PaymentStatus) bool {
	if p.Status == PaymentFailed && to == PaymentRefunded {
		return p.FailureReason == DuplicatePaymentReason
	}
	return CanAdvance(p.Status, to)
}

// PaymentMethod identifies how the buyer pays.
type PaymentMethod string

const PaymentMethodBankQR PaymentMethod = "BANK_QR"

// Payment is one attempt to pay for an order.
type Payment struct {
	ID                   string        `json:"id"`
	OrderID              string        `json:"order_id"`
	Amount               int64         `json:"amount"`
	Method               PaymentMethod `json:"method"`
	Status               PaymentStatus `json:"status"`
	GatewayTransactionID string        `json:"gateway_transaction_id"`
	QRURL                string        `json:"qr_url"`
	ExpiresAt            time.Time     `json:"expires_at"`
	PaidAt               *time.Time    `json:"paid_at,omitempty"`
	RefundedAt           *time.Time    `json:"refunded_at,omitempty"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	RefundAmount         int64         `json:"refund_amount,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// ActiveKey is held by the single open payment attempt of an order.
func (p *Payment) ActiveKey() *string {
	if p.Status != PaymentPending {
		return nil
	}
	k := p.OrderID
	return &k
}

// StatusExtra carries the optional fields of a payment status update.
type StatusExtra struct {
	PaidAt        *time.Time
	FailureReason string
	RefundAmount  int64
	Source        string
}
