package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gameshop-api/internal/model"
	"gameshop-api/internal/notify"
	"gameshop-api/internal/repository"
)

const (
	// confirmAttempts bounds re-reads after losing a compare-and-set.
	confirmAttempts = 3

	defaultReconcileBatch = 100
)

// Reconciler turns confirmed payments into delivered orders. It is reached
// from the gateway callback, from status polling and from the periodic pass;
// all three converge on OnPaymentConfirmed, which is idempotent.
type Reconciler struct {
	store    repository.Store
	ledger   *OrderLedger
	payments *PaymentService
	notifier notify.Notifier
	batch    int
}

// NewReconciler creates a reconciler and registers it with payments.
func NewReconciler(store repository.Store, ledger *OrderLedger, payments *PaymentService, notifier notify.Notifier, batch int) *Reconciler {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	r := &Reconciler{
		store:    store,
		ledger:   ledger,
		payments: payments,
		notifier: notifier,
		batch:    batch,
	}
	payments.SetConfirmer(r)
	return r
}

// OnPaymentConfirmed completes the order of a SUCCESS payment. The bool is
// true only for the call that moved the order; that call alone notifies.
func (r *Reconciler) OnPaymentConfirmed(ctx context.Context, paymentID string) (*model.Order, bool, error) {
	for attempt := 1; attempt <= confirmAttempts; attempt++ {
		p, err := r.store.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, false, err
		}
		if p.Status != model.PaymentSuccess {
			return nil, false, fmt.Errorf("payment %s is %s: %w", p.ID, p.Status, model.ErrPaymentNotConfirmed)
		}

		o, err := r.store.GetOrder(ctx, p.OrderID)
		if err != nil {
			return nil, false, err
		}
		switch o.Status {
		case model.OrderCompleted:
			return o, false, nil
		case model.OrderCancelled, model.OrderRefunded:
			log.Printf("[Reconciler] Payment %s settled for %s order %s; refund required",
				p.ID, o.Status, o.OrderNumber)
			return o, false, fmt.Errorf("order %s is %s: %w", o.OrderNumber, o.Status, model.ErrInvalidTransition)
		}

		var done *model.Order
		err = r.store.InTx(ctx, func(tx repository.Store) error {
			if o.Status == model.OrderPending {
				if _, _, err := r.ledger.TransitionTx(ctx, tx, o.ID, model.OrderProcessing, ""); err != nil {
					return err
				}
			}
			completed, _, err := r.ledger.TransitionTx(ctx, tx, o.ID, model.OrderCompleted, "")
			if err != nil {
				return err
			}
			done = completed
			return nil
		})

		switch {
		case err == nil:
			r.ledger.Invalidate(ctx, done)
			log.Printf("[Reconciler] Order %s completed by payment %s", done.OrderNumber, p.ID)
			r.deliver(ctx, done)
			return done, true, nil

		case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
			// Another path moved the order; look again.
			continue

		case errors.Is(err, model.ErrAccountUnavailable):
			note := fmt.Sprintf("account %s unavailable; refund required for payment %s", o.AccountID, p.ID)
			cancelled, cerr := r.ledger.Transition(ctx, o.ID, model.OrderCancelled, note)
			if cerr != nil {
				log.Printf("[Reconciler] Failed to cancel order %s: %v", o.OrderNumber, cerr)
				return nil, false, err
			}
			log.Printf("[Reconciler] Order %s cancelled: %s", o.OrderNumber, note)
			return cancelled, false, err

		default:
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("payment %s after %d attempts: %w", paymentID, confirmAttempts, model.ErrConflict)
}

// ReconcilePending is the level-triggered pass. It completes orders whose
// payment settled without completing them, then refreshes open payments from
// the gateway. It stops early while the gateway is unavailable.
func (r *Reconciler) ReconcilePending(ctx context.Context) error {
	repaired := 0
	for _, status := range []model.OrderStatus{model.OrderProcessing, model.OrderPending} {
		orders, err := r.store.ListOrdersByStatus(ctx, status, r.batch)
		if err != nil {
			return fmt.Errorf("failed to list %s orders: %w", status, err)
		}
		for _, o := range orders {
			p, err := r.settledPayment(ctx, o)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			if _, changed, err := r.OnPaymentConfirmed(ctx, p.ID); err != nil {
				log.Printf("[Reconciler] Repair of order %s failed: %v", o.OrderNumber, err)
			} else if changed {
				repaired++
			}
		}
	}

	pending, err := r.store.ListPaymentsByStatus(ctx, model.PaymentPending, r.batch)
	if err != nil {
		return fmt.Errorf("failed to list pending payments: %w", err)
	}
	synced := 0
	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		updated, err := r.payments.Sync(ctx, p)
		if errors.Is(err, model.ErrGatewayUnavailable) {
			log.Printf("[Reconciler] Gateway unavailable, deferring %d payments", len(pending)-i)
			break
		}
		if err != nil {
			log.Printf("[Reconciler] Sync of payment %s failed: %v", p.ID, err)
			continue
		}
		if updated.Status != model.PaymentPending {
			synced++
		}
	}

	if repaired > 0 || synced > 0 {
		log.Printf("[Reconciler] Pass done: %d orders repaired, %d payments resolved", repaired, synced)
	}
	return nil
}

// deliver sends the delivery after commit. A credential read failure still
// sends the order so the buyer can fetch credentials from the API.
func (r *Reconciler) deliver(ctx context.Context, o *model.Order) {
	acc, creds, err := r.ledger.Delivered(ctx, o)
	if err != nil {
		log.Printf("[Reconciler] Delivery contents of %s incomplete: %v", o.OrderNumber, err)
	}
	if err := r.notifier.OrderDelivered(ctx, notify.NewDelivery(o, acc, creds)); err != nil {
		log.Printf("[Reconciler] Delivery notification for %s failed: %v", o.OrderNumber, err)
	}
}

func (r *Reconciler) settledPayment(ctx context.Context, o *model.Order) (*model.Payment, error) {
	payments, err := r.store.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if p.Status == model.PaymentSuccess {
			return p, nil
		}
	}
	return nil, nil
}
