package model

import "time"

// BlindBox is a purchasable bundle that reveals one random account.
type BlindBox struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     *int64    `json:"price,omitempty"`
	Remaining int       `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

// ReservationStatus tracks a drawn pool member.
// An undrawn member has no reservation and is still in the pool.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationSold     ReservationStatus = "SOLD"
	ReservationReleased ReservationStatus = "RELEASED"
)

// Reservation binds a drawn account to a buyer until payment or expiry.
type Reservation struct {
	AccountID  string            `json:"account_id"`
	BlindBoxID string            `json:"blind_box_id"`
	BuyerID    string            `json:"buyer_id"`
	Status     ReservationStatus `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Expired reports whether an active reservation has outlived its TTL.
func (r *Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationReserved && now.After(r.ExpiresAt)
}
