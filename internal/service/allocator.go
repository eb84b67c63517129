package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
)

// AllocatorConfig holds configuration for the blind-box allocator.
type AllocatorConfig struct {
	// ReservationTTL is how long a drawn account stays reserved for its buyer.
	// Default: 30 minutes
	ReservationTTL time.Duration

	// MaxAttempts bounds redraws after losing a race.
	// Default: 8
	MaxAttempts int
}

// Allocator draws accounts out of blind-box pools. Each pool member moves
// UNDRAWN -> RESERVED -> SOLD, or back from RESERVED to UNDRAWN on release.
type Allocator struct {
	store  repository.Store
	config AllocatorConfig
	now    func() time.Time
	intn   func(n int) (int, error)
}

// NewAllocator creates a new allocator.
func NewAllocator(store repository.Store, config AllocatorConfig) *Allocator {
	if config.ReservationTTL == 0 {
		config.ReservationTTL = 30 * time.Minute
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 8
	}
	return &Allocator{
		store:  store,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
		intn:   cryptoIntn,
	}
}

// cryptoIntn returns a uniform integer in [0, n).
func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

var errLostDraw = errors.New("pool member taken by a concurrent draw")

// Reserve draws one account uniformly at random from the box for buyerID.
// A buyer holding an unexpired reservation in the box gets it back.
func (a *Allocator) Reserve(ctx context.Context, blindBoxID, buyerID string) (*model.Account, *model.Reservation, error) {
	if buyerID == "" {
		return nil, nil, fmt.Errorf("buyer id required: %w", model.ErrInvalidInput)
	}
	if _, err := a.store.GetBlindBox(ctx, blindBoxID); err != nil {
		return nil, nil, err
	}

	for attempt := 1; attempt <= a.config.MaxAttempts; attempt++ {
		var (
			account     *model.Account
			reservation *model.Reservation
			stale       string
		)

		err := a.store.InTx(ctx, func(tx repository.Store) error {
			now := a.now()

			if held, err := tx.FindActiveReservation(ctx, blindBoxID, buyerID); err == nil && !held.Expired(now) {
				acc, err := tx.GetAccount(ctx, held.AccountID)
				if err != nil {
					return err
				}
				account, reservation = acc, held
				return nil
			} else if err != nil && !errors.Is(err, model.ErrNotFound) {
				return err
			}

			members, err := tx.PoolMembers(ctx, blindBoxID)
			if err != nil {
				return err
			}
			if len(members) == 0 {
				return fmt.Errorf("blind box %s: %w", blindBoxID, model.ErrPoolExhausted)
			}

			i, err := a.intn(len(members))
			if err != nil {
				return fmt.Errorf("failed to draw: %w", err)
			}
			pick := members[i]

			removed, err := tx.RemoveFromPool(ctx, blindBoxID, pick)
			if err != nil {
				return err
			}
			if !removed {
				return errLostDraw
			}

			// A pooled account sold directly leaves a stale member behind;
			// commit its removal and draw again.
			err = tx.SetAccountStatus(ctx, pick, []model.AccountStatus{model.AccountAvailable}, model.AccountReserved)
			if errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrNotFound) {
				stale = pick
				return nil
			}
			if err != nil {
				return err
			}

			r := &model.Reservation{
				AccountID:  pick,
				BlindBoxID: blindBoxID,
				BuyerID:    buyerID,
				Status:     model.ReservationReserved,
				ExpiresAt:  now.Add(a.config.ReservationTTL),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.CreateReservation(ctx, r); err != nil {
				return err
			}

			acc, err := tx.GetAccount(ctx, pick)
			if err != nil {
				return err
			}
			account, reservation = acc, r
			return nil
		})

		switch {
		case err == nil && stale != "":
			log.Printf("[Allocator] Dropped unavailable account %s from box %s", stale, blindBoxID)
			continue
		case err == nil:
			log.Printf("[Allocator] Box %s: account %s reserved for buyer %s until %v",
				blindBoxID, account.ID, buyerID, reservation.ExpiresAt)
			return account, reservation, nil
		case errors.Is(err, errLostDraw), errors.Is(err, model.ErrDuplicateReservation), errors.Is(err, model.ErrConflict):
			log.Printf("[Allocator] Box %s: lost draw (attempt %d/%d)", blindBoxID, attempt, a.config.MaxAttempts)
			continue
		default:
			return nil, nil, err
		}
	}

	return nil, nil, fmt.Errorf("blind box %s after %d attempts: %w", blindBoxID, a.config.MaxAttempts, model.ErrDuplicateReservation)
}

// Confirm makes a reservation permanent.
func (a *Allocator) Confirm(ctx context.Context, accountID, buyerID string) error {
	return a.store.InTx(ctx, func(tx repository.Store) error {
		return a.ConfirmTx(ctx, tx, accountID, buyerID)
	})
}

// ConfirmTx moves the buyer's reservation and its account to SOLD inside tx.
func (a *Allocator) ConfirmTx(ctx context.Context, tx repository.Store, accountID, buyerID string) error {
	r, err := tx.GetReservation(ctx, accountID)
	if err != nil {
		return err
	}
	if r.BuyerID != buyerID || r.Status != model.ReservationReserved {
		return fmt.Errorf("account %s is %s for buyer %s: %w", accountID, r.Status, r.BuyerID, model.ErrAccountUnavailable)
	}
	if err := tx.UpdateReservationStatus(ctx, accountID, model.ReservationReserved, model.ReservationSold); err != nil {
		return err
	}
	if err := tx.SetAccountStatus(ctx, accountID, []model.AccountStatus{model.AccountReserved}, model.AccountSold); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return fmt.Errorf("account %s: %w", accountID, model.ErrAccountUnavailable)
		}
		return err
	}
	return nil
}

// Release returns a reserved account to its pool.
func (a *Allocator) Release(ctx context.Context, accountID string) error {
	err := a.store.InTx(ctx, func(tx repository.Store) error {
		return a.ReleaseTx(ctx, tx, accountID)
	})
	if err == nil {
		log.Printf("[Allocator] Released account %s back to its pool", accountID)
	}
	return err
}

// ReleaseTx moves a RESERVED draw back to UNDRAWN inside tx.
func (a *Allocator) ReleaseTx(ctx context.Context, tx repository.Store, accountID string) error {
	r, err := tx.GetReservation(ctx, accountID)
	if err != nil {
		return err
	}
	if err := tx.UpdateReservationStatus(ctx, accountID, model.ReservationReserved, model.ReservationReleased); err != nil {
		return err
	}
	if err := tx.SetAccountStatus(ctx, accountID, []model.AccountStatus{model.AccountReserved}, model.AccountAvailable); err != nil {
		return err
	}
	return tx.AddToPool(ctx, r.BlindBoxID, accountID)
}
