package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"gameshop-api/internal/model"
)

type sandboxTx struct {
	amount int64
	result Result
}

// Sandbox is an in-process gateway for development and tests. Transactions
// stay pending until Settle, Fail, Expire or Refund is called.
type Sandbox struct {
	mu          sync.Mutex
	txs         map[string]*sandboxTx
	ttl         time.Duration
	callbackKey string
	unavailable bool
	lookups     int
}

// NewSandbox creates a sandbox gateway. Callbacks must carry callbackKey in
// the X-Sandbox-Key header.
func NewSandbox(ttl time.Duration, callbackKey string) *Sandbox {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Sandbox{txs: make(map[string]*sandboxTx), ttl: ttl, callbackKey: callbackKey}
}

func (g *Sandbox) Name() string { return "sandbox" }

func (g *Sandbox) CreateQRTransaction(ctx context.Context, amount int64, reference string) (*QRTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unavailable {
		return nil, fmt.Errorf("sandbox create: %w", model.ErrGatewayUnavailable)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("sandbox: invalid amount %d", amount)
	}
	if _, ok := g.txs[reference]; ok {
		return nil, fmt.Errorf("sandbox: duplicate reference %s", reference)
	}

	g.txs[reference] = &sandboxTx{
		amount: amount,
		result: Result{Provider: g.Name(), TransactionID: reference, Kind: KindPending},
	}
	q := url.Values{}
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("des", reference)
	return &QRTransaction{
		QRURL:         "https://sandbox.invalid/qr?" + q.Encode(),
		TransactionID: reference,
		ExpiresAt:     time.Now().UTC().Add(g.ttl),
	}, nil
}

func (g *Sandbox) LookupTransaction(ctx context.Context, transactionID string) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lookups++
	if g.unavailable {
		return nil, fmt.Errorf("sandbox lookup: %w", model.ErrGatewayUnavailable)
	}
	tx, ok := g.txs[transactionID]
	if !ok {
		return nil, fmt.Errorf("sandbox transaction %s: %w", transactionID, model.ErrNotFound)
	}
	r := tx.result
	return &r, nil
}

type sandboxCallback struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

// ParseCallback decodes {"transactionId","status","amount","reason"}.
func (g *Sandbox) ParseCallback(r *http.Request) (*Result, error) {
	if g.callbackKey == "" || r.Header.Get("X-Sandbox-Key") != g.callbackKey {
		return nil, ErrUnauthorizedCallback
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	var cb sandboxCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("sandbox: decode callback: %w", err)
	}

	res := &Result{Provider: g.Name(), TransactionID: cb.TransactionID, Amount: cb.Amount, Reason: cb.Reason, Raw: string(raw)}
	switch cb.Status {
	case "paid":
		now := time.Now().UTC()
		res.Kind, res.PaidAt = KindPaid, &now
	case "failed":
		res.Kind = KindFailed
	case "expired":
		res.Kind = KindExpired
	case "refunded":
		res.Kind, res.RefundAmount = KindRefunded, cb.Amount
	case "pending":
		res.Kind = KindPending
	default:
		return nil, fmt.Errorf("status %q: %w", cb.Status, ErrIgnoredCallback)
	}
	return res, nil
}

func (g *Sandbox) set(transactionID string, fn func(tx *sandboxTx)) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.txs[transactionID]
	if !ok {
		return nil, fmt.Errorf("sandbox transaction %s: %w", transactionID, model.ErrNotFound)
	}
	fn(tx)
	r := tx.result
	return &r, nil
}

// Settle marks a transaction paid in full and returns the resulting callback.
func (g *Sandbox) Settle(transactionID string) (*Result, error) {
	return g.SettleAmount(transactionID, 0)
}

// SettleAmount marks a transaction paid with amount, or in full when amount is zero.
func (g *Sandbox) SettleAmount(transactionID string, amount int64) (*Result, error) {
	return g.set(transactionID, func(tx *sandboxTx) {
		now := time.Now().UTC()
		tx.result.Kind = KindPaid
		tx.result.Amount = tx.amount
		if amount > 0 {
			tx.result.Amount = amount
		}
		tx.result.PaidAt = &now
	})
}

// Fail marks a transaction failed.
func (g *Sandbox) Fail(transactionID, reason string) (*Result, error) {
	return g.set(transactionID, func(tx *sandboxTx) {
		tx.result.Kind = KindFailed
		tx.result.Reason = reason
	})
}

// Expire marks a transaction expired.
func (g *Sandbox) Expire(transactionID string) (*Result, error) {
	return g.set(transactionID, func(tx *sandboxTx) {
		tx.result.Kind = KindExpired
	})
}

// SetUnavailable makes every call fail with model.ErrGatewayUnavailable.
func (g *Sandbox) SetUnavailable(down bool) {
	g.mu.Lock()
	g.unavailable = down
	g.mu.Unlock()
}

// Lookups returns how many lookups were served.
func (g *Sandbox) Lookups() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookups
}

var _ Gateway = (*Sandbox)(nil)
