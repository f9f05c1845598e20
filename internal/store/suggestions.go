package store

import (
	"context"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// GetSuggestionByID retrieves a suggestion by ID
func (q *Queries) GetSuggestionByID(ctx context.Context, id int64) (*models.Suggestion, error) {
	var suggestion models.Suggestion
	err := sqlx.GetContext(ctx, q.db, &suggestion, "SELECT * FROM suggestions WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "suggestion", id)
	}
	return &suggestion, nil
}

// GetSuggestionForUpdate retrieves a suggestion and locks its row until the transaction ends
func (q *Queries) GetSuggestionForUpdate(ctx context.Context, id int64) (*models.Suggestion, error) {
	query := "SELECT * FROM suggestions WHERE id = $1"
	if q.inTx {
		query += " FOR UPDATE"
	}

	var suggestion models.Suggestion
	err := sqlx.GetContext(ctx, q.db, &suggestion, query, id)
	if err != nil {
		return nil, notFound(err, "suggestion", id)
	}
	return &suggestion, nil
}

// ListSuggestionsByProduct retrieves suggestions for a product, new ones first
func (q *Queries) ListSuggestionsByProduct(ctx context.Context, productID int64) ([]models.Suggestion, error) {
	var suggestions []models.Suggestion
	err := sqlx.SelectContext(ctx, q.db, &suggestions, `
		SELECT * FROM suggestions
		WHERE product_id = $1
		ORDER BY CASE WHEN status = 'new' THEN 0 ELSE 1 END, created_at DESC, id DESC`,
		productID)
	return suggestions, err
}

// ListAppliedSuggestions retrieves applied suggestions for a product, most recent first
func (q *Queries) ListAppliedSuggestions(ctx context.Context, productID int64) ([]models.Suggestion, error) {
	var suggestions []models.Suggestion
	err := sqlx.SelectContext(ctx, q.db, &suggestions, `
		SELECT * FROM suggestions
		WHERE product_id = $1 AND status = 'applied'
		ORDER BY applied_at DESC, id DESC`,
		productID)
	return suggestions, err
}

// ListAppliedSuggestionsForProducts retrieves applied suggestions of several products at once
func (q *Queries) ListAppliedSuggestionsForProducts(ctx context.Context, productIDs []int64) ([]models.Suggestion, error) {
	if len(productIDs) == 0 {
		return []models.Suggestion{}, nil
	}

	var suggestions []models.Suggestion
	err := sqlx.SelectContext(ctx, q.db, &suggestions, `
		SELECT * FROM suggestions
		WHERE product_id = ANY($1) AND status = 'applied'
		ORDER BY product_id, applied_at DESC, id DESC`,
		pq.Array(productIDs))
	return suggestions, err
}

// CreateSuggestion inserts a suggestion
func (q *Queries) CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error {
	query := `
		INSERT INTO suggestions (product_id, type, description, status, related_product_ids)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.db, suggestion, query,
		suggestion.ProductID, suggestion.Type, suggestion.Description, suggestion.Status, suggestion.RelatedProductIDs)
}

// MarkSuggestionApplied moves a new suggestion to applied. An already applied suggestion is left untouched.
func (q *Queries) MarkSuggestionApplied(ctx context.Context, id int64, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE suggestions SET status = $1, applied_at = $2 WHERE id = $3 AND status = $4",
		models.SuggestionStatusApplied, at, id, models.SuggestionStatusNew)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrAlreadyApplied
	}
	return nil
}
