package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gameshop-api/internal/model"
)

// SQLEventLogRepository keeps gateway events in the main SQL database.
type SQLEventLogRepository struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLEventLogRepository creates the gateway_events table on the store's database.
func NewSQLEventLogRepository(store *SQLStore) (*SQLEventLogRepository, error) {
	ddl := `CREATE TABLE IF NOT EXISTS gateway_events (
		id VARCHAR(191) PRIMARY KEY,
		provider VARCHAR(64) NOT NULL,
		source VARCHAR(32) NOT NULL,
		transaction_id VARCHAR(191) NOT NULL,
		status VARCHAR(32) NOT NULL,
		amount BIGINT NOT NULL,
		outcome VARCHAR(32) NOT NULL,
		error TEXT NOT NULL,
		raw TEXT NOT NULL,
		received_at TIMESTAMP NOT NULL
	)`
	if store.dialect.name == "mysql" {
		ddl = `CREATE TABLE IF NOT EXISTS gateway_events (
		id VARCHAR(191) PRIMARY KEY,
		provider VARCHAR(64) NOT NULL,
		source VARCHAR(32) NOT NULL,
		transaction_id VARCHAR(191) NOT NULL,
		status VARCHAR(32) NOT NULL,
		amount BIGINT NOT NULL,
		outcome VARCHAR(32) NOT NULL,
		error TEXT NOT NULL,
		raw TEXT NOT NULL,
		received_at DATETIME(6) NOT NULL,
		INDEX idx_gateway_events_received (received_at)
	)`
	}
	if _, err := store.db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("failed to create gateway_events: %w", err)
	}
	if store.dialect.name != "mysql" {
		if _, err := store.db.Exec(`CREATE INDEX IF NOT EXISTS idx_gateway_events_received ON gateway_events(received_at)`); err != nil {
			return nil, fmt.Errorf("failed to index gateway_events: %w", err)
		}
	}
	return &SQLEventLogRepository{db: store.db, dialect: store.dialect}, nil
}

// InsertGatewayEvent inserts a new event.
func (r *SQLEventLogRepository) InsertGatewayEvent(ctx context.Context, e *model.GatewayEvent) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, `
		INSERT INTO gateway_events (id, provider, source, transaction_id, status, amount, outcome, error, raw, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Provider, e.Source, e.TransactionID, e.Status, e.Amount, e.Outcome, e.Error, e.Raw, e.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert gateway event: %w", err)
	}
	return nil
}

// ListGatewayEvents returns events newest first with pagination.
func (r *SQLEventLogRepository) ListGatewayEvents(ctx context.Context, limit, offset int) ([]model.GatewayEvent, int64, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.dialect, `
		SELECT id, provider, source, transaction_id, status, amount, outcome, error, raw, received_at
		FROM gateway_events ORDER BY received_at DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list gateway events: %w", err)
	}
	defer rows.Close()

	events := []model.GatewayEvent{}
	for rows.Next() {
		var e model.GatewayEvent
		if err := rows.Scan(&e.ID, &e.Provider, &e.Source, &e.TransactionID, &e.Status, &e.Amount,
			&e.Outcome, &e.Error, &e.Raw, &e.ReceivedAt); err != nil {
			return nil, 0, err
		}
		e.ReceivedAt = e.ReceivedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gateway_events`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Close is a no-op; the connection pool belongs to the store.
func (r *SQLEventLogRepository) Close() error {
	return nil
}

var _ EventLogRepository = (*SQLEventLogRepository)(nil)
