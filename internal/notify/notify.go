// Package notify tells the outside world that an order was delivered.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"gameshop-api/internal/model"

	"github.com/cenkalti/backoff/v4"
)

// Delivery is the payload sent when an order completes. Account carries the
// sold account's revealed attributes and Credentials its opened login; either
// is nil when it could not be read after the order committed.
type Delivery struct {
	Event         string             `json:"event"`
	OrderNumber   string             `json:"order_number"`
	OrderID       string             `json:"order_id"`
	BuyerID       string             `json:"buyer_id"`
	CustomerEmail string             `json:"customer_email"`
	AccountID     string             `json:"account_id"`
	Amount        int64              `json:"amount"`
	DeliveredAt   time.Time          `json:"delivered_at"`
	Account       *model.Account     `json:"account,omitempty"`
	Credentials   *model.Credentials `json:"credentials,omitempty"`
}

// NewDelivery builds the payload for a completed order.
func NewDelivery(o *model.Order, acc *model.Account, creds *model.Credentials) Delivery {
	d := Delivery{
		Event:         "order.completed",
		OrderNumber:   o.OrderNumber,
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		CustomerEmail: o.CustomerEmail,
		AccountID:     o.AccountID,
		Amount:        o.Amount,
		Account:       acc,
		Credentials:   creds,
	}
	if o.DeliveredAt != nil {
		d.DeliveredAt = *o.DeliveredAt
	}
	return d
}

// Notifier delivers order notifications. Implementations must not block
// the caller on slow receivers.
type Notifier interface {
	OrderDelivered(ctx context.Context, d Delivery) error
}

// LogNotifier only writes the delivery to the log. Credentials are never logged.
type LogNotifier struct{}

func (LogNotifier) OrderDelivered(ctx context.Context, d Delivery) error {
	log.Printf("[Notify] Order %s delivered to buyer %s (%s), account %s, credentials=%t",
		d.OrderNumber, d.BuyerID, d.CustomerEmail, d.AccountID, d.Credentials != nil)
	return nil
}

// WebhookNotifier posts deliveries as JSON to a URL, retrying with backoff
// in the background.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	maxElapsed time.Duration
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout, maxElapsed time.Duration) *WebhookNotifier {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if maxElapsed == 0 {
		maxElapsed = time.Minute
	}
	return &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
	}
}

// OrderDelivered queues the webhook and returns immediately.
func (n *WebhookNotifier) OrderDelivered(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.maxElapsed+n.client.Timeout)
		defer cancel()

		if err := n.Send(ctx, payload); err != nil {
			log.Printf("[Notify] Giving up on order %s: %v", d.OrderNumber, err)
			return
		}
		log.Printf("[Notify] Delivered webhook for order %s", d.OrderNumber)
	}()
	return nil
}

// Send posts payload, retrying transient failures.
func (n *WebhookNotifier) Send(ctx context.Context, payload []byte) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "GameShop-Webhook/1.0")

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("receiver returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("receiver returned %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(n.maxElapsed))
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

var (
	_ Notifier = LogNotifier{}
	_ Notifier = (*WebhookNotifier)(nil)
)
