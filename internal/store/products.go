package store

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ProductFilter narrows ListProducts; zero values match everything
type ProductFilter struct {
	Channel      models.Channel
	ConnectionID int64
	Search       string
	Limit        int
	Offset       int
}

// GetProductByID retrieves a product by ID
func (q *Queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.db, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProductBySKU retrieves a product by SKU
func (q *Queries) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.db, &product, "SELECT * FROM products WHERE sku = $1", sku)
	if err != nil {
		return nil, notFound(err, "product", sku)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs, in no particular order
func (q *Queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := sqlx.SelectContext(ctx, q.db, &products,
		"SELECT * FROM products WHERE id = ANY($1)", pq.Array(ids))
	return products, err
}

// ListProducts retrieves products, newest first
func (q *Queries) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if filter.ConnectionID != 0 {
		args = append(args, filter.ConnectionID)
		where = append(where, fmt.Sprintf("connection_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}

	query := "SELECT * FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var products []models.Product
	err := sqlx.SelectContext(ctx, q.db, &products, query, args...)
	return products, err
}

// CreateProduct inserts a product and fills its id and timestamps
func (q *Queries) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (sku, name, price, stock, status, channel, connection_id, external_id, vendor, product_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.db, product, query,
		product.SKU, product.Name, product.Price, product.Stock, product.Status, product.Channel,
		product.ConnectionID, product.ExternalID, product.Vendor, product.ProductType)
}

// UpdateProductPrice updates the price of a product
func (q *Queries) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE products SET price = $1, updated_at = NOW() WHERE id = $2",
		price, id)
	return affected(res, err, "product", id)
}

// UpdateProductStock updates stock and status of a product
func (q *Queries) UpdateProductStock(ctx context.Context, id int64, stock int, status models.ProductStatus) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE products SET stock = $1, status = $2, updated_at = NOW() WHERE id = $3",
		stock, status, id)
	return affected(res, err, "product", id)
}

// UpdateSyncedProduct overwrites the remote-owned fields of an existing product, keyed by id.
// The channel a product was first recorded under is kept.
func (q *Queries) UpdateSyncedProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, price = $2, stock = $3, status = $4, external_id = $5,
		    vendor = $6, product_type = $7, connection_id = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, q.db, &product.UpdatedAt, query,
		product.Name, product.Price, product.Stock, product.Status, product.ExternalID,
		product.Vendor, product.ProductType, product.ConnectionID, product.ID)
	if err != nil {
		return notFound(err, "product", product.ID)
	}
	return nil
}
