package service

import (
	"context"
	"fmt"
	"strings"

	"gameshop-api/internal/model"
)

// PurchaseResult is an order together with the payment that settles it.
type PurchaseResult struct {
	Order   *model.Order
	Payment *model.Payment
	Reused  bool
}

// PurchaseService is the buyer-facing entry point: it opens or reuses an
// order and hands back the QR payment for it.
type PurchaseService struct {
	ledger    *OrderLedger
	payments  *PaymentService
	allocator *Allocator
}

// NewPurchaseService creates a new purchase service.
func NewPurchaseService(ledger *OrderLedger, payments *PaymentService, allocator *Allocator) *PurchaseService {
	return &PurchaseService{ledger: ledger, payments: payments, allocator: allocator}
}

// Purchase starts or resumes the purchase of an account by the session's
// buyer. Contact details default to the session's.
func (s *PurchaseService) Purchase(ctx context.Context, sess *model.Session, accountID, customerName, customerEmail string) (*PurchaseResult, error) {
	if sess == nil {
		return nil, fmt.Errorf("no session: %w", model.ErrForbidden)
	}
	if strings.TrimSpace(customerName) == "" {
		customerName = sess.CustomerName
	}
	if strings.TrimSpace(customerEmail) == "" {
		customerEmail = sess.CustomerEmail
	}

	order, reused, err := s.ledger.CreateOrReuseOrder(ctx, PurchaseRequest{
		BuyerID:       sess.BuyerID,
		AccountID:     accountID,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
	})
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.IssueTransaction(ctx, order)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Order: order, Payment: payment, Reused: reused}, nil
}

// Tear draws an account from a blind box for the session's buyer. The
// account comes back concealed; it is bought with Purchase.
func (s *PurchaseService) Tear(ctx context.Context, sess *model.Session, blindBoxID string) (*model.Account, *model.Reservation, error) {
	if sess == nil {
		return nil, nil, fmt.Errorf("no session: %w", model.ErrForbidden)
	}
	acc, r, err := s.allocator.Reserve(ctx, blindBoxID, sess.BuyerID)
	if err != nil {
		return nil, nil, err
	}
	return acc.Concealed(), r, nil
}
