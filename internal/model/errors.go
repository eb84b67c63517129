package model

// Error is a domain error. Wrap with fmt.Errorf("...: %w", ErrX) to add
// context and match with errors.Is.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound Error = "not found"

	// ErrInvalidTransition indicates a status change outside the allowed table.
	ErrInvalidTransition Error = "invalid status transition"

	// ErrPoolExhausted indicates a blind box has no accounts remaining.
	ErrPoolExhausted Error = "no accounts remaining"

	// ErrDuplicateReservation indicates the caller lost a race for a pool member.
	ErrDuplicateReservation Error = "account already reserved by another buyer"

	// ErrStaleGatewayUpdate indicates an out-of-order or duplicate gateway update.
	ErrStaleGatewayUpdate Error = "stale gateway update"

	// ErrGatewayUnavailable indicates a transient payment gateway failure.
	ErrGatewayUnavailable Error = "payment gateway unavailable"

	// ErrAccountUnavailable indicates the account cannot be sold to this buyer.
	ErrAccountUnavailable Error = "account is not available"

	// ErrConflict indicates a conditional write lost to a concurrent writer.
	ErrConflict Error = "concurrent modification"

	// ErrForbidden indicates the caller does not own the resource.
	ErrForbidden Error = "forbidden"

	// ErrPaymentNotConfirmed indicates reconciliation was asked about a payment
	// that has not succeeded.
	ErrPaymentNotConfirmed Error = "payment not confirmed"

	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput Error = "invalid input"

	// ErrUndeletable indicates an order that may no longer be deleted.
	ErrUndeletable Error = "order cannot be deleted"
)
