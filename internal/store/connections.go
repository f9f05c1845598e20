package store

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetConnectionByID retrieves a store connection by ID
func (q *Queries) GetConnectionByID(ctx context.Context, id int64) (*models.StoreConnection, error) {
	var conn models.StoreConnection
	err := sqlx.GetContext(ctx, q.db, &conn, "SELECT * FROM store_connections WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "connection", id)
	}
	return &conn, nil
}

// ListConnections retrieves all store connections
func (q *Queries) ListConnections(ctx context.Context) ([]models.StoreConnection, error) {
	var conns []models.StoreConnection
	err := sqlx.SelectContext(ctx, q.db, &conns, "SELECT * FROM store_connections ORDER BY created_at DESC, id DESC")
	return conns, err
}

// CreateConnection inserts a store connection
func (q *Queries) CreateConnection(ctx context.Context, conn *models.StoreConnection) error {
	query := `
		INSERT INTO store_connections (name, platform, store_url, api_key_encrypted, api_secret_encrypted, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.db, conn, query,
		conn.Name, conn.Platform, conn.StoreURL, conn.APIKeyEncrypted, conn.APISecretEncrypted, conn.IsActive)
}

// SetConnectionActive enables or disables a connection
func (q *Queries) SetConnectionActive(ctx context.Context, id int64, active bool) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE store_connections SET is_active = $1 WHERE id = $2", active, id)
	return affected(res, err, "connection", id)
}

// UpdateConnectionLastSync stamps the time of the last successful sync
func (q *Queries) UpdateConnectionLastSync(ctx context.Context, id int64, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE store_connections SET last_sync = $1 WHERE id = $2", at, id)
	return affected(res, err, "connection", id)
}

// DeleteConnection removes a connection together with its products, their suggestions and events,
// and its sync logs. It returns the number of products removed. Run it inside InTx.
func (q *Queries) DeleteConnection(ctx context.Context, id int64) (int64, error) {
	steps := []struct {
		name  string
		query string
	}{
		{"events", "DELETE FROM events WHERE product_id IN (SELECT id FROM products WHERE connection_id = $1)"},
		{"suggestions", "DELETE FROM suggestions WHERE product_id IN (SELECT id FROM products WHERE connection_id = $1)"},
		{"products", "DELETE FROM products WHERE connection_id = $1"},
		{"sync logs", "DELETE FROM sync_logs WHERE connection_id = $1"},
	}

	var products int64
	for _, step := range steps {
		res, err := q.db.ExecContext(ctx, step.query, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", step.name, err)
		}
		if step.name == "products" {
			products, _ = res.RowsAffected()
		}
	}

	res, err := q.db.ExecContext(ctx, "DELETE FROM store_connections WHERE id = $1", id)
	if err := affected(res, err, "connection", id); err != nil {
		return 0, err
	}
	return products, nil
}

// CreateSyncLog records the outcome of a sync pass
func (q *Queries) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (connection_id, sync_type, status, products_synced, error_message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.db, log, query,
		log.ConnectionID, log.SyncType, log.Status, log.ProductsSynced, log.ErrorMessage)
}

// ListSyncLogs retrieves the latest sync logs of a connection
func (q *Queries) ListSyncLogs(ctx context.Context, connectionID int64, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	err := sqlx.SelectContext(ctx, q.db, &logs, `
		SELECT * FROM sync_logs
		WHERE connection_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, connectionID, limit)
	return logs, err
}
