package model

import "time"

// GatewayEvent records a gateway callback or lookup and what became of it.
type GatewayEvent struct {
	ID            string        `json:"id" bson:"_id"`
	Provider      string        `json:"provider" bson:"provider"`
	Source        string        `json:"source" bson:"source"` // "webhook" or "lookup"
	TransactionID string        `json:"transaction_id" bson:"transaction_id"`
	Status        PaymentStatus `json:"status" bson:"status"`
	Amount        int64         `json:"amount" bson:"amount"`
	Outcome       string        `json:"outcome" bson:"outcome"` // applied, stale, unmatched, error
	Error         string        `json:"error,omitempty" bson:"error,omitempty"`
	Raw           string        `json:"raw,omitempty" bson:"raw,omitempty"`
	ReceivedAt    time.Time     `json:"received_at" bson:"received_at"`
}
