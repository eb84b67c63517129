package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/gateway"
	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
	"gameshop-api/pkg/uid"
)

// Callback and lookup outcomes recorded in the gateway event log.
const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeUnmatched = "unmatched"
	OutcomeUnderpaid = "underpaid"
	OutcomeIgnored   = "ignored"
	OutcomeError     = "error"
)

// DuplicatePaymentReason marks a second settled transfer for an already paid order.
const DuplicatePaymentReason = model.DuplicatePaymentReason

// underpaidPrefix starts the note left on a pending payment that received
// less than its amount.
const underpaidPrefix = "underpaid: "

// PaymentConfig holds configuration for the payment service.
type PaymentConfig struct {
	// ReferencePrefix starts every transfer reference.
	// Default: "GS"
	ReferencePrefix string

	// LookupCacheTTL is how long a gateway lookup answer is reused.
	// Default: 5 seconds
	LookupCacheTTL time.Duration

	// ExpiryGrace is how long past its expiry a pending payment is still
	// looked up before it is cancelled locally.
	// Default: 2 minutes
	ExpiryGrace time.Duration
}

// PaymentConfirmer is told when a payment reaches SUCCESS.
type PaymentConfirmer interface {
	OnPaymentConfirmed(ctx context.Context, paymentID string) (*model.Order, bool, error)
}

// PaymentService drives payments through the gateway. Every status change
// goes through ApplyStatusUpdate, which only moves a payment forward.
type PaymentService struct {
	store     repository.Store
	gw        gateway.Gateway
	cache     cache.Cache
	events    repository.EventLogRepository
	ledger    *OrderLedger
	confirmer PaymentConfirmer
	config    PaymentConfig
	now       func() time.Time
}

// NewPaymentService creates a new payment service. c and events may be nil.
func NewPaymentService(store repository.Store, gw gateway.Gateway, c cache.Cache, events repository.EventLogRepository, ledger *OrderLedger, config PaymentConfig) *PaymentService {
	if config.ReferencePrefix == "" {
		config.ReferencePrefix = "GS"
	}
	if config.LookupCacheTTL == 0 {
		config.LookupCacheTTL = 5 * time.Second
	}
	if config.ExpiryGrace == 0 {
		config.ExpiryGrace = 2 * time.Minute
	}
	return &PaymentService{
		store:  store,
		gw:     gw,
		cache:  c,
		events: events,
		ledger: ledger,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetConfirmer registers the reconciler.
func (s *PaymentService) SetConfirmer(c PaymentConfirmer) {
	s.confirmer = c
}

// IssueTransaction returns the order's payable QR transaction, opening a new
// one at the gateway when there is no unexpired attempt.
func (s *PaymentService) IssueTransaction(ctx context.Context, o *model.Order) (*model.Payment, error) {
	if o.Status != model.OrderPending {
		payments, err := s.store.ListPaymentsByOrder(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if len(payments) == 0 {
			return nil, fmt.Errorf("order %s is %s: %w", o.OrderNumber, o.Status, model.ErrInvalidTransition)
		}
		return payments[len(payments)-1], nil
	}

	open, err := s.store.FindOpenPayment(ctx, o.ID)
	switch {
	case err == nil && s.now().Before(open.ExpiresAt):
		return open, nil
	case err == nil:
		_, err := s.ApplyStatusUpdate(ctx, open.ID, model.PaymentCancelled,
			model.StatusExtra{FailureReason: "expired", Source: "expiry"})
		if err != nil && !errors.Is(err, model.ErrStaleGatewayUpdate) {
			return nil, err
		}
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	// The gateway call happens outside any store transaction.
	qr, err := s.gw.CreateQRTransaction(ctx, o.Amount, gateway.NewReference(s.config.ReferencePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction for %s: %w", o.OrderNumber, err)
	}

	now := s.now()
	p := &model.Payment{
		ID:                   uid.New(),
		OrderID:              o.ID,
		Amount:               o.Amount,
		Method:               model.PaymentMethodBankQR,
		Status:               model.PaymentPending,
		GatewayTransactionID: qr.TransactionID,
		QRURL:                qr.QRURL,
		ExpiresAt:            qr.ExpiresAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		current, err := tx.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if current.Status != model.OrderPending {
			return fmt.Errorf("order %s is %s: %w", current.OrderNumber, current.Status, model.ErrInvalidTransition)
		}
		return tx.CreatePayment(ctx, p)
	})
	if errors.Is(err, model.ErrConflict) {
		// A concurrent request opened the attempt first; ours is abandoned
		// at the gateway and simply expires there.
		return s.store.FindOpenPayment(ctx, o.ID)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[PaymentService] Issued %s for order %s: amount=%d, expires=%v",
		p.GatewayTransactionID, o.OrderNumber, p.Amount, p.ExpiresAt)
	return p, nil
}

// LookupStatus returns the gateway's view of a transaction.
func (s *PaymentService) LookupStatus(ctx context.Context, gatewayTransactionID string) (model.PaymentStatus, error) {
	res, err := s.lookup(ctx, gatewayTransactionID)
	if err != nil {
		return "", err
	}
	return res.PaymentStatus(), nil
}

// lookup asks the gateway, sharing answers between pollers for a short while.
func (s *PaymentService) lookup(ctx context.Context, txID string) (*gateway.Result, error) {
	if s.cache == nil {
		return s.gw.LookupTransaction(ctx, txID)
	}

	data, err := s.cache.GetOrSet(ctx, gatewayLookupKey(txID), s.config.LookupCacheTTL, func() ([]byte, error) {
		res, err := s.gw.LookupTransaction(ctx, txID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	})
	if err != nil {
		return nil, err
	}

	var res gateway.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached lookup: %w", err)
	}
	return &res, nil
}

// ApplyStatusUpdate moves a payment to status to. Repeated, regressing and
// lost-race updates return model.ErrStaleGatewayUpdate and change nothing.
func (s *PaymentService) ApplyStatusUpdate(ctx context.Context, paymentID string, to model.PaymentStatus, extra model.StatusExtra) (*model.Payment, error) {
	var (
		payment *model.Payment
		from    model.PaymentStatus
		order   *model.Order
	)

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		from = p.Status
		if !p.CanAdvance(to) {
			return fmt.Errorf("payment %s %s -> %s: %w", p.ID, from, to, model.ErrStaleGatewayUpdate)
		}

		now := s.now()
		p.UpdatedAt = now

		switch to {
		case model.PaymentSuccess:
			paid, err := s.settledPayment(ctx, tx, p)
			if err != nil {
				return err
			}
			p.PaidAt = extra.PaidAt
			if p.PaidAt == nil {
				p.PaidAt = &now
			}
			if paid != nil {
				if from == model.PaymentFailed {
					return fmt.Errorf("payment %s already failed: %w", p.ID, model.ErrStaleGatewayUpdate)
				}
				p.Status = model.PaymentFailed
				p.FailureReason = DuplicatePaymentReason
				log.Printf("[PaymentService] Order %s already paid by %s; payment %s needs a refund",
					p.OrderID, paid.ID, p.ID)
			} else {
				p.Status = model.PaymentSuccess
				p.FailureReason = ""
				if err := s.supersedeOpen(ctx, tx, p, now); err != nil {
					return err
				}
			}

		case model.PaymentFailed, model.PaymentCancelled:
			p.Status = to
			p.FailureReason = extra.FailureReason

		case model.PaymentRefunded:
			p.Status = to
			p.RefundedAt = &now
			p.RefundAmount = extra.RefundAmount
			if p.RefundAmount == 0 {
				p.RefundAmount = p.Amount
			}
		}

		if err := tx.UpdatePayment(ctx, p, from); err != nil {
			if errors.Is(err, model.ErrConflict) {
				return fmt.Errorf("payment %s: %w", p.ID, model.ErrStaleGatewayUpdate)
			}
			return err
		}

		// A refunded duplicate leaves the order with the payment that paid it.
		if p.Status == model.PaymentRefunded && from == model.PaymentSuccess {
			o, err := tx.GetOrder(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if o.Status == model.OrderCompleted {
				if o, _, err = s.ledger.TransitionTx(ctx, tx, o.ID, model.OrderRefunded, "refunded by gateway"); err != nil {
					return err
				}
				order = o
			}
		}

		payment = p
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrStaleGatewayUpdate) {
			log.Printf("[PaymentService] Discarded update of payment %s to %s: %v", paymentID, to, err)
		}
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, gatewayLookupKey(payment.GatewayTransactionID))
	}
	if order != nil {
		s.ledger.Invalidate(ctx, order)
	}

	source := extra.Source
	if source == "" {
		source = "manual"
	}
	log.Printf("[PaymentService] Payment %s: %s -> %s (source=%s)", payment.ID, from, payment.Status, source)
	return payment, nil
}

// settledPayment returns another payment of the same order that already
// settled, if any.
func (s *PaymentService) settledPayment(ctx context.Context, tx repository.Store, p *model.Payment) (*model.Payment, error) {
	payments, err := tx.ListPaymentsByOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	for _, other := range payments {
		if other.ID == p.ID {
			continue
		}
		if other.Status == model.PaymentSuccess || other.Status == model.PaymentRefunded {
			return other, nil
		}
	}
	return nil, nil
}

// supersedeOpen cancels a newer open attempt once an older one settles.
func (s *PaymentService) supersedeOpen(ctx context.Context, tx repository.Store, paid *model.Payment, now time.Time) error {
	open, err := tx.FindOpenPayment(ctx, paid.OrderID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if open.ID == paid.ID {
		return nil
	}
	open.Status = model.PaymentCancelled
	open.FailureReason = "superseded by " + paid.ID
	open.UpdatedAt = now
	return tx.UpdatePayment(ctx, open, model.PaymentPending)
}

// HandleCallback applies an authenticated gateway notification and records
// it. Failures are logged for the operator and never returned.
func (s *PaymentService) HandleCallback(ctx context.Context, res *gateway.Result) string {
	outcome, err := s.applyResult(ctx, res, "webhook")
	if err != nil {
		log.Printf("[PaymentService] Callback for %s failed: %v", res.TransactionID, err)
	}
	s.recordEvent(ctx, res, "webhook", outcome, err)
	return outcome
}

func (s *PaymentService) applyResult(ctx context.Context, res *gateway.Result, source string) (string, error) {
	p, err := s.store.GetPaymentByTransaction(ctx, res.TransactionID)
	if errors.Is(err, model.ErrNotFound) {
		log.Printf("[PaymentService] No payment for transaction %s", res.TransactionID)
		return OutcomeUnmatched, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	status := res.PaymentStatus()
	if status == model.PaymentPending {
		return OutcomeIgnored, nil
	}
	if status == model.PaymentSuccess && res.Amount > 0 && res.Amount < p.Amount {
		log.Printf("[PaymentService] Underpaid transfer for payment %s: got %d, want %d",
			p.ID, res.Amount, p.Amount)
		if err := s.noteUnderpaid(ctx, p, res.Amount); err != nil {
			return OutcomeError, err
		}
		return OutcomeUnderpaid, nil
	}

	updated, err := s.ApplyStatusUpdate(ctx, p.ID, status, res.Extra(source))
	if errors.Is(err, model.ErrStaleGatewayUpdate) {
		return OutcomeStale, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	if updated.Status == model.PaymentSuccess && s.confirmer != nil {
		if _, _, err := s.confirmer.OnPaymentConfirmed(ctx, updated.ID); err != nil {
			log.Printf("[PaymentService] Confirmation of payment %s deferred: %v", updated.ID, err)
		}
	}
	return OutcomeApplied, nil
}

// Sync refreshes a PENDING payment from the gateway and cancels it once it
// is past expiry plus grace. It returns the payment as stored afterwards.
func (s *PaymentService) Sync(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	if p.Status != model.PaymentPending {
		return p, nil
	}

	res, err := s.lookup(ctx, p.GatewayTransactionID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return p, err
	}

	if err == nil && res.Kind != gateway.KindPending {
		noted := isUnderpaid(p)
		outcome, err := s.applyResult(ctx, res, "lookup")
		if outcome != OutcomeUnderpaid || !noted {
			s.recordEvent(ctx, res, "lookup", outcome, err)
		}
		if err != nil {
			return p, err
		}
		current, err := s.store.GetPayment(ctx, p.ID)
		if err != nil || outcome != OutcomeUnderpaid {
			return current, err
		}
		// An underpaid attempt stays open only until it expires.
		p = current
	}

	if p.Status == model.PaymentPending && s.now().After(p.ExpiresAt.Add(s.config.ExpiryGrace)) {
		return s.Expire(ctx, p)
	}
	return p, nil
}

// noteUnderpaid records a short transfer on the pending payment once.
func (s *PaymentService) noteUnderpaid(ctx context.Context, p *model.Payment, got int64) error {
	if p.Status != model.PaymentPending || isUnderpaid(p) {
		return nil
	}
	p.FailureReason = fmt.Sprintf("%sgot %d, want %d", underpaidPrefix, got, p.Amount)
	p.UpdatedAt = s.now()
	err := s.store.UpdatePayment(ctx, p, model.PaymentPending)
	if errors.Is(err, model.ErrConflict) {
		return nil
	}
	return err
}

func isUnderpaid(p *model.Payment) bool {
	return strings.HasPrefix(p.FailureReason, underpaidPrefix)
}

// Expire cancels a PENDING payment locally.
func (s *PaymentService) Expire(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	updated, err := s.ApplyStatusUpdate(ctx, p.ID, model.PaymentCancelled,
		model.StatusExtra{FailureReason: "expired", Source: "expiry"})
	if errors.Is(err, model.ErrStaleGatewayUpdate) {
		return s.store.GetPayment(ctx, p.ID)
	}
	return updated, err
}

func (s *PaymentService) recordEvent(ctx context.Context, res *gateway.Result, source, outcome string, err error) {
	if s.events == nil {
		return
	}
	e := &model.GatewayEvent{
		ID:            uid.New(),
		Provider:      res.Provider,
		Source:        source,
		TransactionID: res.TransactionID,
		Status:        res.PaymentStatus(),
		Amount:        res.Amount,
		Outcome:       outcome,
		Raw:           res.Raw,
		ReceivedAt:    s.now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if err := s.events.InsertGatewayEvent(ctx, e); err != nil {
		log.Printf("[PaymentService] Failed to record gateway event for %s: %v", res.TransactionID, err)
	}
}
