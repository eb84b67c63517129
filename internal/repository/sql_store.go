package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gameshop-api/internal/model"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// dialect captures the differences between the supported SQL engines.
type dialect struct {
	name        string
	numbered    bool // $1, $2 placeholders instead of ?
	schema      []string
	sizeQuery   string
	supportsFor bool // SELECT ... FOR UPDATE
}

// SQLStore implements Store on database/sql for SQLite, PostgreSQL and MySQL.
type SQLStore struct {
	db      *sql.DB
	q       querier
	dialect dialect
	inTx    bool
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return &SQLStore{db: db, q: db, dialect: d}, nil
}

// DB exposes the connection pool so other repositories can share it.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// rebind converts ? placeholders to $n for dialects that need it.
func (s *SQLStore) rebind(query string) string {
	return rebind(s.dialect, query)
}

func rebind(d dialect, query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// forUpdate appends a row lock where the engine supports it.
func (s *SQLStore) forUpdate(query string) string {
	if s.inTx && s.dialect.supportsFor {
		return query + " FOR UPDATE"
	}
	return query
}

// InTx runs fn inside a database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLStore{db: s.db, q: tx, dialect: s.dialect, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique/primary key violation
// from any of the supported drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr interface{ Code() int }
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == 19 // SQLITE_CONSTRAINT
	}
	return false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ---- accounts ----

const accountColumns = `id, title, price, rank_label, hero_count, skin_count, skins, status, created_at, updated_at`

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	var skins string
	if err := row.Scan(&a.ID, &a.Title, &a.Price, &a.Rank, &a.HeroCount, &a.SkinCount,
		&skins, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if skins != "" {
		if err := json.Unmarshal([]byte(skins), &a.Skins); err != nil {
			return nil, fmt.Errorf("failed to decode skins of %s: %w", a.ID, err)
		}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// CreateAccount inserts a new account.
func (s *SQLStore) CreateAccount(ctx context.Context, a *model.Account) error {
	skins, err := json.Marshal(a.Skins)
	if err != nil {
		return fmt.Errorf("failed to encode skins: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO accounts (id, title, price, rank_label, hero_count, skin_count, skins, status, credentials, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Price, a.Rank, a.HeroCount, a.SkinCount, string(skins), a.Status,
		a.Credentials, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", a.ID, model.ErrConflict)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetAccount returns an account by ID.
func (s *SQLStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.queryRow(ctx, s.forUpdate(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns accounts filtered by status.
func (s *SQLStore) ListAccounts(ctx context.Context, status model.AccountStatus) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SetAccountStatus conditionally moves an account to a new status.
func (s *SQLStore) SetAccountStatus(ctx context.Context, id string, from []model.AccountStatus, to model.AccountStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("SetAccountStatus: no source status given")
	}
	args := []interface{}{to, time.Now().UTC(), id}
	marks := make([]string, len(from))
	for i, st := range from {
		marks[i] = "?"
		args = append(args, st)
	}

	result, err := s.exec(ctx,
		`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+strings.Join(marks, ", ")+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetAccount(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("account %s not in %v: %w", id, from, model.ErrConflict)
	}
	return nil
}

// GetCredentials returns the sealed credentials of an account.
func (s *SQLStore) GetCredentials(ctx context.Context, id string) ([]byte, error) {
	var sealed []byte
	err := s.queryRow(ctx, `SELECT credentials FROM accounts WHERE id = ?`, id).Scan(&sealed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return sealed, nil
}

// ---- blind boxes ----

// CreateBlindBox inserts a new blind box.
func (s *SQLStore) CreateBlindBox(ctx context.Context, b *model.BlindBox) error {
	var price sql.NullInt64
	if b.Price != nil {
		price = sql.NullInt64{Int64: *b.Price, Valid: true}
	}
	_, err := s.exec(ctx, `INSERT INTO blind_boxes (id, name, price, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, price, b.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("blind box %s: %w", b.ID, model.ErrConflict)
		}
		return fmt.Errorf("failed to insert blind box: %w", err)
	}
	return nil
}

// GetBlindBox returns a blind box with its remaining pool size.
func (s *SQLStore) GetBlindBox(ctx context.Context, id string) (*model.BlindBox, error) {
	var b model.BlindBox
	var price sql.NullInt64
	err := s.queryRow(ctx, `SELECT id, name, price, created_at FROM blind_boxes WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &price, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("blind box %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blind box: %w", err)
	}
	if price.Valid {
		p := price.Int64
		b.Price = &p
	}
	b.CreatedAt = b.CreatedAt.UTC()

	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM blind_box_pool WHERE blind_box_id = ?`, id).Scan(&b.Remaining); err != nil {
		return nil, fmt.Errorf("failed to count pool: %w", err)
	}
	return &b, nil
}

// AddToPool puts an account into a blind box pool.
func (s *SQLStore) AddToPool(ctx context.Context, blindBoxID, accountID string) error {
	var seq int64
	if err := s.queryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM blind_box_pool`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate pool position: %w", err)
	}
	_, err := s.exec(ctx, `INSERT INTO blind_box_pool (account_id, blind_box_id, seq, added_at) VALUES (?, ?, ?, ?)`,
		accountID, blindBoxID, seq, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s already pooled: %w", accountID, model.ErrConflict)
		}
		return fmt.Errorf("failed to add to pool: %w", err)
	}
	return nil
}

// PoolMembers lists the undrawn accounts of a box.
func (s *SQLStore) PoolMembers(ctx context.Context, blindBoxID string) ([]string, error) {
	rows, err := s.query(ctx, `SELECT account_id FROM blind_box_pool WHERE blind_box_id = ? ORDER BY seq`, blindBoxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveFromPool deletes a pool member if it is still there.
func (s *SQLStore) RemoveFromPool(ctx context.Context, blindBoxID, accountID string) (bool, error) {
	result, err := s.exec(ctx, `DELETE FROM blind_box_pool WHERE blind_box_id = ? AND account_id = ?`, blindBoxID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to remove from pool: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ---- reservations ----

const reservationColumns = `account_id, blind_box_id, buyer_id, status, expires_at, created_at, updated_at`

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var r model.Reservation
	if err := row.Scan(&r.AccountID, &r.BlindBoxID, &r.BuyerID, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// CreateReservation records a draw.
func (s *SQLStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if _, err := s.exec(ctx, `DELETE FROM reservations WHERE account_id = ? AND status = ?`,
		r.AccountID, model.ReservationReleased); err != nil {
		return fmt.Errorf("failed to clear released reservation: %w", err)
	}
	_, err := s.exec(ctx, `
		INSERT INTO reservations (account_id, blind_box_id, buyer_id, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, r.BlindBoxID, r.BuyerID, r.Status, r.ExpiresAt.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", r.AccountID, model.ErrDuplicateReservation)
		}
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

// GetReservation returns the reservation of an account.
func (s *SQLStore) GetReservation(ctx context.Context, accountID string) (*model.Reservation, error) {
	r, err := scanReservation(s.queryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE account_id = ?`, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reservation %s: %w", accountID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// FindActiveReservation returns the buyer's RESERVED draw in a box.
func (s *SQLStore) FindActiveReservation(ctx context.Context, blindBoxID, buyerID string) (*model.Reservation, error) {
	r, err := scanReservation(s.queryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE blind_box_id = ? AND buyer_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`,
		blindBoxID, buyerID, model.ReservationReserved))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reservation for %s in %s: %w", buyerID, blindBoxID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return r, nil
}

// UpdateReservationStatus is a compare-and-set on the reservation status.
func (s *SQLStore) UpdateReservationStatus(ctx context.Context, accountID string, from, to model.ReservationStatus) error {
	result, err := s.exec(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE account_id = ? AND status = ?`,
		to, time.Now().UTC(), accountID, from)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetReservation(ctx, accountID); err != nil {
			return err
		}
		return fmt.Errorf("reservation %s not %s: %w", accountID, from, model.ErrConflict)
	}
	return nil
}

// ListExpiredReservations returns RESERVED rows past their expiry.
func (s *SQLStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	rows, err := s.query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = ? AND expires_at < ?
		ORDER BY expires_at LIMIT ?`,
		model.ReservationReserved, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- orders ----

const orderColumns = `id, order_number, buyer_id, customer_name, customer_email, account_id, blind_box_id,
	amount, status, delivery_method, notes, created_at, updated_at, delivered_at`

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var delivered sql.NullTime
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.BuyerID, &o.CustomerName, &o.CustomerEmail, &o.AccountID,
		&o.BlindBoxID, &o.Amount, &o.Status, &o.DeliveryMethod, &o.Notes, &o.CreatedAt, &o.UpdatedAt, &delivered); err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.DeliveredAt = timePtr(delivered)
	return &o, nil
}

func (s *SQLStore) listOrders(ctx context.Context, query string, args ...interface{}) ([]*model.Order, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CreateOrder inserts an order.
func (s *SQLStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.exec(ctx, `
		INSERT INTO orders (id, order_number, buyer_id, customer_name, customer_email, account_id, blind_box_id,
			amount, status, delivery_method, notes, active_key, created_at, updated_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderNumber, o.BuyerID, o.CustomerName, o.CustomerEmail, o.AccountID, o.BlindBoxID,
		o.Amount, o.Status, o.DeliveryMethod, o.Notes, nullString(o.ActiveKey()),
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(), nullTime(o.DeliveredAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order for %s/%s: %w", o.BuyerID, o.AccountID, model.ErrConflict)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrder returns an order by ID.
func (s *SQLStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, s.forUpdate(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// GetOrderByNumber returns an order by its order number.
func (s *SQLStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, orderNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order %s: %w", orderNumber, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// FindActiveOrder returns the open order of a buyer for an account.
func (s *SQLStore) FindActiveOrder(ctx context.Context, buyerID, accountID string) (*model.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE active_key = ?`, buyerID+"|"+accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("open order for %s/%s: %w", buyerID, accountID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return o, nil
}

// ListActiveOrdersByAccount returns every open order on an account.
func (s *SQLStore) ListActiveOrdersByAccount(ctx context.Context, accountID string) ([]*model.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE account_id = ? AND status IN (?, ?) ORDER BY created_at`,
		accountID, model.OrderPending, model.OrderProcessing)
}

// ListOrdersByBuyer returns a buyer's orders, newest first.
func (s *SQLStore) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*model.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? ORDER BY created_at DESC`, buyerID)
}

// ListOrdersByStatus returns orders in a status, most recently updated first.
func (s *SQLStore) ListOrdersByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY updated_at DESC LIMIT ?`, status, limit)
}

// UpdateOrderStatus writes the order's status fields if the stored status is still from.
func (s *SQLStore) UpdateOrderStatus(ctx context.Context, o *model.Order, from model.OrderStatus) error {
	result, err := s.exec(ctx, `
		UPDATE orders SET status = ?, notes = ?, active_key = ?, updated_at = ?, delivered_at = ?
		WHERE id = ? AND status = ?`,
		o.Status, o.Notes, nullString(o.ActiveKey()), o.UpdatedAt.UTC(), nullTime(o.DeliveredAt), o.ID, from)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s no longer %s: %w", o.ID, from, model.ErrConflict)
	}
	return nil
}

// DeleteOrder removes an order and its payment attempts.
func (s *SQLStore) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM payments WHERE order_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	result, err := s.exec(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// ---- payments ----

const paymentColumns = `id, order_id, amount, method, status, gateway_transaction_id, qr_url, expires_at,
	paid_at, refunded_at, failure_reason, refund_amount, created_at, updated_at`

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var paid, refunded sql.NullTime
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.GatewayTransactionID, &p.QRURL,
		&p.ExpiresAt, &paid, &refunded, &p.FailureReason, &p.RefundAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	p.PaidAt = timePtr(paid)
	p.RefundedAt = timePtr(refunded)
	return &p, nil
}

func (s *SQLStore) listPayments(ctx context.Context, query string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePayment inserts a payment attempt.
func (s *SQLStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := s.exec(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, gateway_transaction_id, qr_url, expires_at,
			paid_at, refunded_at, failure_reason, refund_amount, active_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.GatewayTransactionID, p.QRURL, p.ExpiresAt.UTC(),
		nullTime(p.PaidAt), nullTime(p.RefundedAt), p.FailureReason, p.RefundAmount, nullString(p.ActiveKey()),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment for order %s: %w", p.OrderID, model.ErrConflict)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetPayment returns a payment by ID.
func (s *SQLStore) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p, err := scanPayment(s.queryRow(ctx, s.forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE id = ?`), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// GetPaymentByTransaction returns a payment by gateway transaction ID.
func (s *SQLStore) GetPaymentByTransaction(ctx context.Context, gatewayTransactionID string) (*model.Payment, error) {
	p, err := scanPayment(s.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_transaction_id = ?`, gatewayTransactionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment for transaction %s: %w", gatewayTransactionID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// FindOpenPayment returns the PENDING payment of an order.
func (s *SQLStore) FindOpenPayment(ctx context.Context, orderID string) (*model.Payment, error) {
	p, err := scanPayment(s.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE active_key = ?`, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("open payment for order %s: %w", orderID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}

// ListPaymentsByOrder returns every attempt for an order, oldest first.
func (s *SQLStore) ListPaymentsByOrder(ctx context.Context, orderID string) ([]*model.Payment, error) {
	return s.listPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY created_at, id`, orderID)
}

// ListPaymentsByStatus returns payments in a status, oldest first.
func (s *SQLStore) ListPaymentsByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]*model.Payment, error) {
	return s.listPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE status = ? ORDER BY created_at LIMIT ?`, status, limit)
}

// UpdatePayment writes the mutable payment fields if the stored status is still from.
func (s *SQLStore) UpdatePayment(ctx context.Context, p *model.Payment, from model.PaymentStatus) error {
	result, err := s.exec(ctx, `
		UPDATE payments SET status = ?, paid_at = ?, refunded_at = ?, failure_reason = ?, refund_amount = ?,
			active_key = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		p.Status, nullTime(p.PaidAt), nullTime(p.RefundedAt), p.FailureReason, p.RefundAmount,
		nullString(p.ActiveKey()), p.UpdatedAt.UTC(), p.ID, from)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment %s: %w", p.ID, model.ErrConflict)
		}
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("payment %s no longer %s: %w", p.ID, from, model.ErrConflict)
	}
	return nil
}

// ---- admin ----

// GetStats returns counts per status and the database size.
func (s *SQLStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["driver"] = s.dialect.name

	for _, t := range []struct{ key, table string }{
		{"orders", "orders"},
		{"payments", "payments"},
		{"accounts", "accounts"},
		{"reservations", "reservations"},
	} {
		byStatus, err := s.countByStatus(ctx, t.table)
		if err != nil {
			return nil, err
		}
		stats[t.key] = byStatus
	}

	var pooled int64
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM blind_box_pool`).Scan(&pooled); err != nil {
		return nil, err
	}
	stats["pooled_accounts"] = pooled

	if s.dialect.sizeQuery != "" {
		var size int64
		if err := s.queryRow(ctx, s.dialect.sizeQuery).Scan(&size); err == nil {
			stats["db_size_bytes"] = size
		}
	}

	dbStats := s.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}
	return stats, nil
}

func (s *SQLStore) countByStatus(ctx context.Context, table string) (map[string]int64, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(*) FROM `+table+` GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ensure SQLStore implements Store
var _ Store = (*SQLStore)(nil)
