package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/gateway"
	"gameshop-api/internal/model"
	"gameshop-api/internal/notify"
	"gameshop-api/internal/repository"
	"gameshop-api/internal/secrets"

	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []notify.Delivery
}

func (n *recordingNotifier) OrderDelivered(ctx context.Context, d notify.Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

func (n *recordingNotifier) last() notify.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deliveries[len(n.deliveries)-1]
}

type harness struct {
	store      repository.Store
	cache      *cache.MemoryCache
	gw         *gateway.Sandbox
	events     *repository.MemoryEventLogRepository
	notifier   *recordingNotifier
	inventory  *InventoryService
	allocator  *Allocator
	ledger     *OrderLedger
	payments   *PaymentService
	reconciler *Reconciler
	status     *StatusService
	sweeper    *ReservationSweeper
	purchases  *PurchaseService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, repository.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, store repository.Store) *harness {
	t.Helper()

	sealer, err := secrets.NewSealer("test-credentials-secret")
	require.NoError(t, err)

	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })

	h := &harness{
		store:    store,
		cache:    c,
		gw:       gateway.NewSandbox(0, "sandbox-key"),
		events:   repository.NewMemoryEventLogRepository(),
		notifier: &recordingNotifier{},
	}
	h.inventory = NewInventoryService(store, sealer)
	h.allocator = NewAllocator(store, AllocatorConfig{})
	h.ledger = NewOrderLedger(store, h.allocator, sealer, c)
	h.payments = NewPaymentService(store, h.gw, c, h.events, h.ledger, PaymentConfig{})
	h.reconciler = NewReconciler(store, h.ledger, h.payments, h.notifier, 0)
	h.status = NewStatusService(store, h.payments, h.reconciler, c, 0)
	h.sweeper = NewReservationSweeper(store, h.ledger, h.allocator, 0)
	h.purchases = NewPurchaseService(h.ledger, h.payments, h.allocator)
	return h
}

func session(buyerID string) *model.Session {
	return &model.Session{
		BuyerID:       buyerID,
		CustomerName:  "Buyer " + buyerID,
		CustomerEmail: buyerID + "@example.com",
	}
}

func (h *harness) account(t *testing.T, price int64) *model.Account {
	t.Helper()
	a, err := h.inventory.CreateAccount(t.Context(), NewAccountInput{
		Title:       "Mythic account",
		Price:       price,
		Rank:        "Mythic",
		HeroCount:   100,
		Skins:       []string{"Aurora", "Zephyr"},
		Credentials: model.Credentials{Username: "player", Password: "hunter2"},
	})
	require.NoError(t, err)
	return a
}

func (h *harness) box(t *testing.T, price *int64, size int) (*model.BlindBox, []string) {
	t.Helper()
	ctx := t.Context()

	b, err := h.inventory.CreateBlindBox(ctx, "Lucky box", price)
	require.NoError(t, err)

	ids := make([]string, size)
	for i := range ids {
		ids[i] = h.account(t, int64(100000+i*1000)).ID
	}
	_, err = h.inventory.AddToPool(ctx, b.ID, ids)
	require.NoError(t, err)
	return b, ids
}

func (h *harness) purchase(t *testing.T, buyerID, accountID string) *PurchaseResult {
	t.Helper()
	res, err := h.purchases.Purchase(t.Context(), session(buyerID), accountID, "", "")
	require.NoError(t, err)
	return res
}

// pay settles the transaction at the sandbox and delivers the callback.
func (h *harness) pay(t *testing.T, p *model.Payment) string {
	t.Helper()
	res, err := h.gw.Settle(p.GatewayTransactionID)
	require.NoError(t, err)
	return h.payments.HandleCallback(t.Context(), res)
}

func (h *harness) order(t *testing.T, id string) *model.Order {
	t.Helper()
	o, err := h.store.GetOrder(t.Context(), id)
	require.NoError(t, err)
	return o
}

func (h *harness) accountStatus(t *testing.T, id string) model.AccountStatus {
	t.Helper()
	a, err := h.store.GetAccount(t.Context(), id)
	require.NoError(t, err)
	return a.Status
}

func buyer(i int) string {
	return fmt.Sprintf("buyer-%d", i)
}
