package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQL cannot index unbounded TEXT, so keys are VARCHAR(191) for utf8mb4.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR(191) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		price BIGINT NOT NULL,
		rank_label VARCHAR(64) NOT NULL DEFAULT '',
		hero_count INT NOT NULL DEFAULT 0,
		skin_count INT NOT NULL DEFAULT 0,
		skins TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		credentials BLOB,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_accounts_status (status)
	)`,
	`CREATE TABLE IF NOT EXISTS blind_boxes (
		id VARCHAR(191) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price BIGINT NULL,
		created_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS blind_box_pool (
		account_id VARCHAR(191) PRIMARY KEY,
		blind_box_id VARCHAR(191) NOT NULL,
		seq BIGINT NOT NULL,
		added_at DATETIME(6) NOT NULL,
		INDEX idx_pool_box (blind_box_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		account_id VARCHAR(191) PRIMARY KEY,
		blind_box_id VARCHAR(191) NOT NULL,
		buyer_id VARCHAR(191) NOT NULL,
		status VARCHAR(32) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_reservations_buyer (blind_box_id, buyer_id, status),
		INDEX idx_reservations_expiry (status, expires_at)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(191) PRIMARY KEY,
		order_number VARCHAR(64) NOT NULL UNIQUE,
		buyer_id VARCHAR(191) NOT NULL,
		customer_name VARCHAR(255) NOT NULL DEFAULT '',
		customer_email VARCHAR(255) NOT NULL DEFAULT '',
		account_id VARCHAR(191) NOT NULL,
		blind_box_id VARCHAR(191) NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		delivery_method VARCHAR(32) NOT NULL,
		notes TEXT NOT NULL,
		active_key VARCHAR(383) NULL UNIQUE,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		delivered_at DATETIME(6) NULL,
		INDEX idx_orders_buyer (buyer_id, created_at),
		INDEX idx_orders_account (account_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(191) PRIMARY KEY,
		order_id VARCHAR(191) NOT NULL,
		amount BIGINT NOT NULL,
		method VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		gateway_transaction_id VARCHAR(191) NOT NULL UNIQUE,
		qr_url TEXT NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		paid_at DATETIME(6) NULL,
		refunded_at DATETIME(6) NULL,
		failure_reason VARCHAR(255) NOT NULL DEFAULT '',
		refund_amount BIGINT NOT NULL DEFAULT 0,
		active_key VARCHAR(191) NULL UNIQUE,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_payments_order (order_id),
		INDEX idx_payments_status (status, created_at)
	)`,
}

// NewMySQLStore connects to MySQL. The DSN must set parseTime=true.
// dsn format: "user:password@tcp(host:3306)/dbname?parseTime=true"
func NewMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store, err := newSQLStore(db, dialect{
		name:   "mysql",
		schema: mysqlSchema,
		sizeQuery: `SELECT COALESCE(SUM(data_length + index_length), 0)
			FROM information_schema.tables WHERE table_schema = DATABASE()`,
		supportsFor: true,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[MySQLStore] Initialized with pool: max=%d, idle=%d", 25, 10)
	return store, nil
}
