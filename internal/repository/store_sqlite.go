package repository

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		price INTEGER NOT NULL,
		rank_label TEXT NOT NULL DEFAULT '',
		hero_count INTEGER NOT NULL DEFAULT 0,
		skin_count INTEGER NOT NULL DEFAULT 0,
		skins TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		credentials BLOB,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts(status)`,
	`CREATE TABLE IF NOT EXISTS blind_boxes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS blind_box_pool (
		account_id TEXT PRIMARY KEY,
		blind_box_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		added_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pool_box ON blind_box_pool(blind_box_id)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		account_id TEXT PRIMARY KEY,
		blind_box_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_buyer ON reservations(blind_box_id, buyer_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(status, expires_at)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		buyer_id TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		account_id TEXT NOT NULL,
		blind_box_id TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		delivery_method TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		active_key TEXT UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		delivered_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id, status)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_transaction_id TEXT NOT NULL UNIQUE,
		qr_url TEXT NOT NULL DEFAULT '',
		expires_at DATETIME NOT NULL,
		paid_at DATETIME,
		refunded_at DATETIME,
		failure_reason TEXT NOT NULL DEFAULT '',
		refund_amount INTEGER NOT NULL DEFAULT 0,
		active_key TEXT UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status, created_at)`,
}

// NewSQLiteStore opens (or creates) an SQLite database file.
// dbPath is the path to the database file (e.g., "./data/shop.db").
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_time_format=sqlite", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store, err := newSQLStore(db, dialect{
		name:      "sqlite",
		schema:    sqliteSchema,
		sizeQuery: `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)
	return store, nil
}
