package store

import (
	"context"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateEvent appends an event to the history
func (q *Queries) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (product_id, suggestion_id, event_type, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.db, event, query,
		event.ProductID, event.SuggestionID, event.EventType, event.Description)
}

// ListRecentEvents retrieves the latest events with their product name and SKU
func (q *Queries) ListRecentEvents(ctx context.Context, limit int) ([]models.EventView, error) {
	var events []models.EventView
	err := sqlx.SelectContext(ctx, q.db, &events, `
		SELECT e.id, e.product_id, e.suggestion_id, e.event_type, e.description, e.created_at,
		       p.name AS product_name, p.sku AS product_sku
		FROM events e
		LEFT JOIN products p ON p.id = e.product_id
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $1`, limit)
	return events, err
}

// ListEventsByProduct retrieves the latest events of a product
func (q *Queries) ListEventsByProduct(ctx context.Context, productID int64, limit int) ([]models.Event, error) {
	var events []models.Event
	err := sqlx.SelectContext(ctx, q.db, &events, `
		SELECT * FROM events
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, productID, limit)
	return events, err
}
