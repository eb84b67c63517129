package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
)

const (
	orderStatusKeyPrefix   = "order-status:"
	gatewayLookupKeyPrefix = "gateway-lookup:"

	// DefaultStatusCacheTTL bounds how long a terminal status view is served
	// from cache.
	DefaultStatusCacheTTL = time.Minute
)

func orderStatusKey(orderNumber string) string {
	return orderStatusKeyPrefix + orderNumber
}

func gatewayLookupKey(txID string) string {
	return gatewayLookupKeyPrefix + txID
}

// StatusView is what a polling client learns about an order.
type StatusView struct {
	Found  bool              `json:"found"`
	Status model.OrderStatus `json:"status,omitempty"`
}

type cachedStatus struct {
	BuyerID string            `json:"buyer_id"`
	Status  model.OrderStatus `json:"status"`
}

// StatusService answers order status polls. A poll on an unpaid order also
// asks the gateway, so a missed callback is repaired by the next poll.
type StatusService struct {
	store      repository.Store
	payments   *PaymentService
	reconciler *Reconciler
	cache      cache.Cache
	ttl        time.Duration
}

// NewStatusService creates a new status service. c may be nil.
func NewStatusService(store repository.Store, payments *PaymentService, reconciler *Reconciler, c cache.Cache, ttl time.Duration) *StatusService {
	if ttl == 0 {
		ttl = DefaultStatusCacheTTL
	}
	return &StatusService{
		store:      store,
		payments:   payments,
		reconciler: reconciler,
		cache:      c,
		ttl:        ttl,
	}
}

// CheckStatus returns the status of the buyer's order. Orders of other
// buyers are reported as not found. Gateway trouble is logged and the last
// known status returned.
func (s *StatusService) CheckStatus(ctx context.Context, buyerID, orderNumber string) (StatusView, error) {
	if cs, ok := s.cached(ctx, orderNumber); ok {
		if cs.BuyerID != buyerID {
			return StatusView{}, nil
		}
		return StatusView{Found: true, Status: cs.Status}, nil
	}

	o, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if errors.Is(err, model.ErrNotFound) {
		return StatusView{}, nil
	}
	if err != nil {
		return StatusView{}, err
	}
	if o.BuyerID != buyerID {
		return StatusView{}, nil
	}

	if o.Status.Active() {
		o = s.advance(ctx, o)
	}

	if !o.Status.Active() {
		s.remember(ctx, o)
	}
	return StatusView{Found: true, Status: o.Status}, nil
}

// advance tries to move an open order forward and returns it as stored.
func (s *StatusService) advance(ctx context.Context, o *model.Order) *model.Order {
	paid, err := s.reconciler.settledPayment(ctx, o)
	if err != nil {
		log.Printf("[StatusService] Failed to read payments of %s: %v", o.OrderNumber, err)
		return o
	}

	if paid == nil && o.Status == model.OrderPending {
		open, err := s.store.FindOpenPayment(ctx, o.ID)
		if errors.Is(err, model.ErrNotFound) {
			return o
		}
		if err != nil {
			log.Printf("[StatusService] Failed to read open payment of %s: %v", o.OrderNumber, err)
			return o
		}
		// Sync confirms through the reconciler when the gateway reports paid.
		if _, err := s.payments.Sync(ctx, open); err != nil {
			log.Printf("[StatusService] Gateway check for %s failed: %v", o.OrderNumber, err)
			return o
		}
	} else if paid != nil {
		if _, _, err := s.reconciler.OnPaymentConfirmed(ctx, paid.ID); err != nil {
			log.Printf("[StatusService] Confirmation of %s failed: %v", o.OrderNumber, err)
		}
	}

	current, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return o
	}
	return current
}

func (s *StatusService) cached(ctx context.Context, orderNumber string) (*cachedStatus, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, orderStatusKey(orderNumber))
	if err != nil {
		return nil, false
	}
	var cs cachedStatus
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, false
	}
	return &cs, true
}

// remember caches settled statuses. Open orders are never cached so the
// next poll still reaches the gateway. The order is read again after the
// write: a transition that committed in between has already invalidated the
// key, so the entry is dropped here instead of serving the old status.
func (s *StatusService) remember(ctx context.Context, o *model.Order) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cachedStatus{BuyerID: o.BuyerID, Status: o.Status})
	if err != nil {
		return
	}
	key := orderStatusKey(o.OrderNumber)
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		log.Printf("[StatusService] Failed to cache status of %s: %v", o.OrderNumber, err)
		return
	}

	current, err := s.store.GetOrder(ctx, o.ID)
	if err == nil && current.Status == o.Status {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Printf("[StatusService] Failed to drop status of %s: %v", o.OrderNumber, err)
	}
}
