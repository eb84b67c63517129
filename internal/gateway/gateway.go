// Package gateway talks to the payment provider. Provider vocabulary stops
// here: callers only ever see Result kinds and model.PaymentStatus.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gameshop-api/internal/model"
	"gameshop-api/pkg/uid"
)

var (
	// ErrUnauthorizedCallback is returned when a callback fails authentication.
	ErrUnauthorizedCallback = errors.New("gateway: callback not authenticated")

	// ErrIgnoredCallback marks callbacks that carry nothing to apply, such as
	// outgoing transfers or transfers without a payment reference.
	ErrIgnoredCallback = errors.New("gateway: callback ignored")
)

// Kind is the provider-independent outcome of a transaction.
type Kind int

const (
	KindPending Kind = iota
	KindPaid
	KindFailed
	KindExpired
	KindRefunded
)

func (k Kind) String() string {
	switch k {
	case KindPaid:
		return "paid"
	case KindFailed:
		return "failed"
	case KindExpired:
		return "expired"
	case KindRefunded:
		return "refunded"
	}
	return "pending"
}

// Result is what the provider reports about one transaction.
type Result struct {
	Provider      string
	TransactionID string
	Kind          Kind
	Amount        int64
	PaidAt        *time.Time
	Reason        string
	RefundAmount  int64
	Raw           string
}

// PaymentStatus maps the result onto the internal payment status.
func (r Result) PaymentStatus() model.PaymentStatus {
	switch r.Kind {
	case KindPaid:
		return model.PaymentSuccess
	case KindFailed:
		return model.PaymentFailed
	case KindExpired:
		return model.PaymentCancelled
	case KindRefunded:
		return model.PaymentRefunded
	}
	return model.PaymentPending
}

// Extra returns the optional fields of the status update.
func (r Result) Extra(source string) model.StatusExtra {
	return model.StatusExtra{
		PaidAt:        r.PaidAt,
		FailureReason: r.Reason,
		RefundAmount:  r.RefundAmount,
		Source:        source,
	}
}

// QRTransaction is a payable transaction the buyer settles by scanning a QR code.
type QRTransaction struct {
	QRURL         string
	TransactionID string
	ExpiresAt     time.Time
}

// Gateway is a payment provider.
type Gateway interface {
	// Name identifies the provider in logs and the event log.
	Name() string

	// CreateQRTransaction opens a transaction for amount. reference must end
	// up in the transfer so the payment can be matched later.
	CreateQRTransaction(ctx context.Context, amount int64, reference string) (*QRTransaction, error)

	// LookupTransaction asks the provider for the current state.
	// Network failures return model.ErrGatewayUnavailable.
	LookupTransaction(ctx context.Context, transactionID string) (*Result, error)

	// ParseCallback authenticates and decodes an asynchronous notification.
	ParseCallback(r *http.Request) (*Result, error)
}

// ReferenceLength is the number of random characters after the prefix.
const ReferenceLength = 10

// NewReference returns prefix followed by ReferenceLength random characters.
// Bank transfer descriptions only keep letters and digits.
func NewReference(prefix string) string {
	return prefix + uid.Code(ReferenceLength)
}
