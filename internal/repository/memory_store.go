package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gameshop-api/internal/model"
)

type poolEntry struct {
	blindBoxID string
	seq        int64
}

type memData struct {
	accounts     map[string]model.Account
	credentials  map[string][]byte
	boxes        map[string]model.BlindBox
	pool         map[string]poolEntry
	poolSeq      int64
	reservations map[string]model.Reservation
	orders       map[string]model.Order
	payments     map[string]model.Payment
}

func newMemData() *memData {
	return &memData{
		accounts:     make(map[string]model.Account),
		credentials:  make(map[string][]byte),
		boxes:        make(map[string]model.BlindBox),
		pool:         make(map[string]poolEntry),
		reservations: make(map[string]model.Reservation),
		orders:       make(map[string]model.Order),
		payments:     make(map[string]model.Payment),
	}
}

// clone copies the maps. Values are stored by value, so a shallow copy of
// each map is a full snapshot.
func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.credentials {
		c.credentials[k] = v
	}
	for k, v := range d.boxes {
		c.boxes[k] = v
	}
	for k, v := range d.pool {
		c.pool[k] = v
	}
	c.poolSeq = d.poolSeq
	for k, v := range d.reservations {
		c.reservations[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	return c
}

type memState struct {
	mu   sync.Mutex
	data *memData
}

// MemoryStore implements Store in memory. Transactions are serialized and
// roll back by restoring a snapshot. Used in development and tests.
type MemoryStore struct {
	st   *memState
	inTx bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memState{data: newMemData()}}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

// InTx runs fn while holding the store lock and discards its writes on error.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	snapshot := s.st.data.clone()
	if err := fn(&MemoryStore{st: s.st, inTx: true}); err != nil {
		s.st.data = snapshot
		return err
	}
	return nil
}

// ---- accounts ----

func copyAccount(a model.Account) *model.Account {
	if a.Skins != nil {
		a.Skins = append([]string(nil), a.Skins...)
	}
	a.Credentials = nil
	return &a
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *model.Account) error {
	defer s.lock()()
	d := s.st.data
	if _, ok := d.accounts[a.ID]; ok {
		return fmt.Errorf("account %s: %w", a.ID, model.ErrConflict)
	}
	stored := *copyAccount(*a)
	d.accounts[a.ID] = stored
	d.credentials[a.ID] = append([]byte(nil), a.Credentials...)
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	defer s.lock()()
	a, ok := s.st.data.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	return copyAccount(a), nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, status model.AccountStatus) ([]*model.Account, error) {
	defer s.lock()()
	var out []*model.Account
	for _, a := range s.st.data.accounts {
		if status == "" || a.Status == status {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetAccountStatus(ctx context.Context, id string, from []model.AccountStatus, to model.AccountStatus) error {
	defer s.lock()()
	d := s.st.data
	a, ok := d.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	for _, st := range from {
		if a.Status == st {
			a.Status = to
			a.UpdatedAt = time.Now().UTC()
			d.accounts[id] = a
			return nil
		}
	}
	return fmt.Errorf("account %s not in %v: %w", id, from, model.ErrConflict)
}

func (s *MemoryStore) GetCredentials(ctx context.Context, id string) ([]byte, error) {
	defer s.lock()()
	c, ok := s.st.data.credentials[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	return append([]byte(nil), c...), nil
}

// ---- blind boxes ----

func (s *MemoryStore) CreateBlindBox(ctx context.Context, b *model.BlindBox) error {
	defer s.lock()()
	d := s.st.data
	if _, ok := d.boxes[b.ID]; ok {
		return fmt.Errorf("blind box %s: %w", b.ID, model.ErrConflict)
	}
	stored := *b
	stored.Remaining = 0
	d.boxes[b.ID] = stored
	return nil
}

func (s *MemoryStore) GetBlindBox(ctx context.Context, id string) (*model.BlindBox, error) {
	defer s.lock()()
	d := s.st.data
	b, ok := d.boxes[id]
	if !ok {
		return nil, fmt.Errorf("blind box %s: %w", id, model.ErrNotFound)
	}
	for _, e := range d.pool {
		if e.blindBoxID == id {
			b.Remaining++
		}
	}
	return &b, nil
}

func (s *MemoryStore) AddToPool(ctx context.Context, blindBoxID, accountID string) error {
	defer s.lock()()
	d := s.st.data
	if _, ok := d.pool[accountID]; ok {
		return fmt.Errorf("account %s already pooled: %w", accountID, model.ErrConflict)
	}
	d.poolSeq++
	d.pool[accountID] = poolEntry{blindBoxID: blindBoxID, seq: d.poolSeq}
	return nil
}

func (s *MemoryStore) PoolMembers(ctx context.Context, blindBoxID string) ([]string, error) {
	defer s.lock()()
	type member struct {
		id  string
		seq int64
	}
	var members []member
	for id, e := range s.st.data.pool {
		if e.blindBoxID == blindBoxID {
			members = append(members, member{id, e.seq})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.id
	}
	return ids, nil
}

func (s *MemoryStore) RemoveFromPool(ctx context.Context, blindBoxID, accountID string) (bool, error) {
	defer s.lock()()
	d := s.st.data
	e, ok := d.pool[accountID]
	if !ok || e.blindBoxID != blindBoxID {
		return false, nil
	}
	delete(d.pool, accountID)
	return true, nil
}

// ---- reservations ----

func (s *MemoryStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	defer s.lock()()
	d := s.st.data
	if existing, ok := d.reservations[r.AccountID]; ok && existing.Status != model.ReservationReleased {
		return fmt.Errorf("account %s: %w", r.AccountID, model.ErrDuplicateReservation)
	}
	d.reservations[r.AccountID] = *r
	return nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, accountID string) (*model.Reservation, error) {
	defer s.lock()()
	r, ok := s.st.data.reservations[accountID]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", accountID, model.ErrNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) FindActiveReservation(ctx context.Context, blindBoxID, buyerID string) (*model.Reservation, error) {
	defer s.lock()()
	var found *model.Reservation
	for _, r := range s.st.data.reservations {
		if r.BlindBoxID != blindBoxID || r.BuyerID != buyerID || r.Status != model.ReservationReserved {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			r := r
			found = &r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("reservation for %s in %s: %w", buyerID, blindBoxID, model.ErrNotFound)
	}
	return found, nil
}

func (s *MemoryStore) UpdateReservationStatus(ctx context.Context, accountID string, from, to model.ReservationStatus) error {
	defer s.lock()()
	d := s.st.data
	r, ok := d.reservations[accountID]
	if !ok {
		return fmt.Errorf("reservation %s: %w", accountID, model.ErrNotFound)
	}
	if r.Status != from {
		return fmt.Errorf("reservation %s not %s: %w", accountID, from, model.ErrConflict)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	d.reservations[accountID] = r
	return nil
}

func (s *MemoryStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	defer s.lock()()
	var out []*model.Reservation
	for _, r := range s.st.data.reservations {
		if r.Status == model.ReservationReserved && r.ExpiresAt.Before(now) {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- orders ----

func copyOrder(o model.Order) *model.Order {
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	return &o
}

func (d *memData) activeOrderHolder(key string, exceptID string) bool {
	for _, o := range d.orders {
		if o.ID == exceptID {
			continue
		}
		if k := o.ActiveKey(); k != nil && *k == key {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o *model.Order) error {
	defer s.lock()()
	d := s.st.data
	if _, ok := d.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, model.ErrConflict)
	}
	for _, other := range d.orders {
		if other.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order number %s: %w", o.OrderNumber, model.ErrConflict)
		}
	}
	if k := o.ActiveKey(); k != nil && d.activeOrderHolder(*k, o.ID) {
		return fmt.Errorf("order for %s/%s: %w", o.BuyerID, o.AccountID, model.ErrConflict)
	}
	d.orders[o.ID] = *copyOrder(*o)
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	defer s.lock()()
	o, ok := s.st.data.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	defer s.lock()()
	for _, o := range s.st.data.orders {
		if o.OrderNumber == orderNumber {
			return copyOrder(o), nil
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderNumber, model.ErrNotFound)
}

func (s *MemoryStore) FindActiveOrder(ctx context.Context, buyerID, accountID string) (*model.Order, error) {
	defer s.lock()()
	for _, o := range s.st.data.orders {
		if o.BuyerID == buyerID && o.AccountID == accountID && o.Status.Active() {
			return copyOrder(o), nil
		}
	}
	return nil, fmt.Errorf("open order for %s/%s: %w", buyerID, accountID, model.ErrNotFound)
}

func (s *MemoryStore) sortedOrders(match func(model.Order) bool, newestFirst bool) []*model.Order {
	var out []*model.Order
	for _, o := range s.st.data.orders {
		if match(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) ListActiveOrdersByAccount(ctx context.Context, accountID string) ([]*model.Order, error) {
	defer s.lock()()
	return s.sortedOrders(func(o model.Order) bool {
		return o.AccountID == accountID && o.Status.Active()
	}, false), nil
}

func (s *MemoryStore) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*model.Order, error) {
	defer s.lock()()
	return s.sortedOrders(func(o model.Order) bool { return o.BuyerID == buyerID }, true), nil
}

func (s *MemoryStore) ListOrdersByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.Order, error) {
	defer s.lock()()
	out := s.sortedOrders(func(o model.Order) bool { return o.Status == status }, true)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, o *model.Order, from model.OrderStatus) error {
	defer s.lock()()
	d := s.st.data
	stored, ok := d.orders[o.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("order %s no longer %s: %w", o.ID, from, model.ErrConflict)
	}
	stored.Status = o.Status
	stored.Notes = o.Notes
	stored.UpdatedAt = o.UpdatedAt
	stored.DeliveredAt = o.DeliveredAt
	d.orders[o.ID] = *copyOrder(stored)
	return nil
}

func (s *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	defer s.lock()()
	d := s.st.data
	if _, ok := d.orders[id]; !ok {
		return fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	delete(d.orders, id)
	for pid, p := range d.payments {
		if p.OrderID == id {
			delete(d.payments, pid)
		}
	}
	return nil
}

// ---- payments ----

func copyPayment(p model.Payment) *model.Payment {
	if p.PaidAt != nil {
		t := *p.PaidAt
		p.PaidAt = &t
	}
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		p.RefundedAt = &t
	}
	return &p
}

func (d *memData) openPaymentHolder(orderID, exceptID string) bool {
	for _, p := range d.payments {
		if p.ID != exceptID && p.OrderID == orderID && p.Status == model.PaymentPending {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	defer s.lock()()
	d := s.st.data
	if _, ok := d.payments[p.ID]; ok {
		return fmt.Errorf("payment %s: %w", p.ID, model.ErrConflict)
	}
	for _, other := range d.payments {
		if other.GatewayTransactionID == p.GatewayTransactionID {
			return fmt.Errorf("transaction %s: %w", p.GatewayTransactionID, model.ErrConflict)
		}
	}
	if p.Status == model.PaymentPending && d.openPaymentHolder(p.OrderID, p.ID) {
		return fmt.Errorf("payment for order %s: %w", p.OrderID, model.ErrConflict)
	}
	d.payments[p.ID] = *copyPayment(*p)
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	defer s.lock()()
	p, ok := s.st.data.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, model.ErrNotFound)
	}
	return copyPayment(p), nil
}

func (s *MemoryStore) GetPaymentByTransaction(ctx context.Context, gatewayTransactionID string) (*model.Payment, error) {
	defer s.lock()()
	for _, p := range s.st.data.payments {
		if p.GatewayTransactionID == gatewayTransactionID {
			return copyPayment(p), nil
		}
	}
	return nil, fmt.Errorf("payment for transaction %s: %w", gatewayTransactionID, model.ErrNotFound)
}

func (s *MemoryStore) FindOpenPayment(ctx context.Context, orderID string) (*model.Payment, error) {
	defer s.lock()()
	for _, p := range s.st.data.payments {
		if p.OrderID == orderID && p.Status == model.PaymentPending {
			return copyPayment(p), nil
		}
	}
	return nil, fmt.Errorf("open payment for order %s: %w", orderID, model.ErrNotFound)
}

func (s *MemoryStore) sortedPayments(match func(model.Payment) bool) []*model.Payment {
	var out []*model.Payment
	for _, p := range s.st.data.payments {
		if match(p) {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) ListPaymentsByOrder(ctx context.Context, orderID string) ([]*model.Payment, error) {
	defer s.lock()()
	return s.sortedPayments(func(p model.Payment) bool { return p.OrderID == orderID }), nil
}

func (s *MemoryStore) ListPaymentsByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]*model.Payment, error) {
	defer s.lock()()
	out := s.sortedPayments(func(p model.Payment) bool { return p.Status == status })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *model.Payment, from model.PaymentStatus) error {
	defer s.lock()()
	d := s.st.data
	stored, ok := d.payments[p.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("payment %s no longer %s: %w", p.ID, from, model.ErrConflict)
	}
	if p.Status == model.PaymentPending && d.openPaymentHolder(stored.OrderID, p.ID) {
		return fmt.Errorf("payment %s: %w", p.ID, model.ErrConflict)
	}
	stored.Status = p.Status
	stored.PaidAt = p.PaidAt
	stored.RefundedAt = p.RefundedAt
	stored.FailureReason = p.FailureReason
	stored.RefundAmount = p.RefundAmount
	stored.UpdatedAt = p.UpdatedAt
	d.payments[p.ID] = *copyPayment(stored)
	return nil
}

// ---- admin ----

func (s *MemoryStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	defer s.lock()()
	d := s.st.data

	orders := make(map[string]int64)
	for _, o := range d.orders {
		orders[string(o.Status)]++
	}
	payments := make(map[string]int64)
	for _, p := range d.payments {
		payments[string(p.Status)]++
	}
	accounts := make(map[string]int64)
	for _, a := range d.accounts {
		accounts[string(a.Status)]++
	}
	reservations := make(map[string]int64)
	for _, r := range d.reservations {
		reservations[string(r.Status)]++
	}

	return map[string]interface{}{
		"driver":          "memory",
		"orders":          orders,
		"payments":        payments,
		"accounts":        accounts,
		"reservations":    reservations,
		"pooled_accounts": int64(len(d.pool)),
	}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryEventLogRepository keeps gateway events in memory.
type MemoryEventLogRepository struct {
	mu     sync.RWMutex
	events []model.GatewayEvent
}

// NewMemoryEventLogRepository creates an empty in-memory event log.
func NewMemoryEventLogRepository() *MemoryEventLogRepository {
	return &MemoryEventLogRepository{}
}

func (r *MemoryEventLogRepository) InsertGatewayEvent(ctx context.Context, e *model.GatewayEvent) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.events = append(r.events, *e)
	r.mu.Unlock()
	return nil
}

func (r *MemoryEventLogRepository) ListGatewayEvents(ctx context.Context, limit, offset int) ([]model.GatewayEvent, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := int64(len(r.events))
	out := []model.GatewayEvent{}
	// newest first
	for i := len(r.events) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, total, nil
}

func (r *MemoryEventLogRepository) Close() error {
	return nil
}

var _ EventLogRepository = (*MemoryEventLogRepository)(nil)
