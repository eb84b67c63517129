package repository

import (
	"context"
	"time"

	"gameshop-api/internal/model"
)

// AccountRepository defines account data access methods.
type AccountRepository interface {
	// CreateAccount inserts a new account.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount returns an account by ID or model.ErrNotFound.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// ListAccounts returns accounts with the given status, or all when status is empty.
	ListAccounts(ctx context.Context, status model.AccountStatus) ([]*model.Account, error)

	// SetAccountStatus moves an account to status to only if its current
	// status is one of from. Returns model.ErrConflict otherwise.
	SetAccountStatus(ctx context.Context, id string, from []model.AccountStatus, to model.AccountStatus) error

	// GetCredentials returns the sealed credentials of an account.
	GetCredentials(ctx context.Context, id string) ([]byte, error)
}

// BlindBoxRepository defines blind box and pool data access methods.
type BlindBoxRepository interface {
	// CreateBlindBox inserts a new, empty blind box.
	CreateBlindBox(ctx context.Context, b *model.BlindBox) error

	// GetBlindBox returns a blind box with its remaining pool size.
	GetBlindBox(ctx context.Context, id string) (*model.BlindBox, error)

	// AddToPool puts an account in a box's pool. An account may sit in at
	// most one pool; a second add returns model.ErrConflict.
	AddToPool(ctx context.Context, blindBoxID, accountID string) error

	// PoolMembers lists the undrawn account IDs of a box in insertion order.
	PoolMembers(ctx context.Context, blindBoxID string) ([]string, error)

	// RemoveFromPool removes the member if present and reports whether this
	// call was the one that removed it.
	RemoveFromPool(ctx context.Context, blindBoxID, accountID string) (bool, error)
}

// ReservationRepository defines blind box reservation data access methods.
type ReservationRepository interface {
	// CreateReservation records a draw, replacing a previously released one.
	CreateReservation(ctx context.Context, r *model.Reservation) error

	// GetReservation returns the reservation of an account or model.ErrNotFound.
	GetReservation(ctx context.Context, accountID string) (*model.Reservation, error)

	// FindActiveReservation returns the buyer's RESERVED draw in a box.
	FindActiveReservation(ctx context.Context, blindBoxID, buyerID string) (*model.Reservation, error)

	// UpdateReservationStatus is a compare-and-set on the reservation status.
	UpdateReservationStatus(ctx context.Context, accountID string, from, to model.ReservationStatus) error

	// ListExpiredReservations returns RESERVED rows whose expiry is before now.
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error)
}

// OrderRepository defines order data access methods.
type OrderRepository interface {
	// CreateOrder inserts an order. A second open order for the same buyer
	// and account, or a duplicate order number, returns model.ErrConflict.
	CreateOrder(ctx context.Context, o *model.Order) error

	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)

	// FindActiveOrder returns the PENDING or PROCESSING order of a buyer for an account.
	FindActiveOrder(ctx context.Context, buyerID, accountID string) (*model.Order, error)

	// ListActiveOrdersByAccount returns every open order on an account.
	ListActiveOrdersByAccount(ctx context.Context, accountID string) ([]*model.Order, error)

	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*model.Order, error)

	// ListOrdersByStatus returns orders in a status, most recently updated first.
	ListOrdersByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.Order, error)

	// UpdateOrderStatus writes o's status, notes and delivery time if the
	// stored status is still from. Returns model.ErrConflict otherwise.
	UpdateOrderStatus(ctx context.Context, o *model.Order, from model.OrderStatus) error

	DeleteOrder(ctx context.Context, id string) error
}

// PaymentRepository defines payment data access methods.
type PaymentRepository interface {
	// CreatePayment inserts a payment. A second PENDING payment for the same
	// order returns model.ErrConflict.
	CreatePayment(ctx context.Context, p *model.Payment) error

	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetPaymentByTransaction(ctx context.Context, gatewayTransactionID string) (*model.Payment, error)

	// FindOpenPayment returns the PENDING payment of an order.
	FindOpenPayment(ctx context.Context, orderID string) (*model.Payment, error)

	ListPaymentsByOrder(ctx context.Context, orderID string) ([]*model.Payment, error)
	ListPaymentsByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]*model.Payment, error)

	// UpdatePayment writes p's mutable fields if the stored status is still from.
	UpdatePayment(ctx context.Context, p *model.Payment, from model.PaymentStatus) error
}

// Store is the inventory store: every repository plus the transactional
// boundary that makes multi-entity writes commit together.
type Store interface {
	AccountRepository
	BlindBoxRepository
	ReservationRepository
	OrderRepository
	PaymentRepository

	// InTx runs fn with a Store bound to one transaction. The transaction
	// commits if fn returns nil and rolls back otherwise. Calling InTx on a
	// transactional Store runs fn in the same transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// GetStats returns statistics about the store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the underlying connection.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}

// EventLogRepository stores the gateway callback audit trail.
type EventLogRepository interface {
	InsertGatewayEvent(ctx context.Context, e *model.GatewayEvent) error
	ListGatewayEvents(ctx context.Context, limit, offset int) ([]model.GatewayEvent, int64, error)
	Close() error
}
