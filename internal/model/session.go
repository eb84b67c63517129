package model

import "time"

// Session is the authenticated buyer behind a request.
type Session struct {
	Token         string    `json:"token,omitempty"`
	BuyerID       string    `json:"buyer_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}
