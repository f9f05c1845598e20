package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Catalog is the set of queries the services run, either directly or inside a transaction
type Catalog interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error
	UpdateProductStock(ctx context.Context, id int64, stock int, status models.ProductStatus) error
	UpdateSyncedProduct(ctx context.Context, product *models.Product) error

	GetSuggestionByID(ctx context.Context, id int64) (*models.Suggestion, error)
	GetSuggestionForUpdate(ctx context.Context, id int64) (*models.Suggestion, error)
	ListSuggestionsByProduct(ctx context.Context, productID int64) ([]models.Suggestion, error)
	ListAppliedSuggestions(ctx context.Context, productID int64) ([]models.Suggestion, error)
	ListAppliedSuggestionsForProducts(ctx context.Context, productIDs []int64) ([]models.Suggestion, error)
	CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error
	MarkSuggestionApplied(ctx context.Context, id int64, at time.Time) error

	CreateEvent(ctx context.Context, event *models.Event) error
	ListRecentEvents(ctx context.Context, limit int) ([]models.EventView, error)
	ListEventsByProduct(ctx context.Context, productID int64, limit int) ([]models.Event, error)

	GetConnectionByID(ctx context.Context, id int64) (*models.StoreConnection, error)
	ListConnections(ctx context.Context) ([]models.StoreConnection, error)
	CreateConnection(ctx context.Context, conn *models.StoreConnection) error
	SetConnectionActive(ctx context.Context, id int64, active bool) error
	UpdateConnectionLastSync(ctx context.Context, id int64, at time.Time) error
	DeleteConnection(ctx context.Context, id int64) (int64, error)

	CreateSyncLog(ctx context.Context, log *models.SyncLog) error
	ListSyncLogs(ctx context.Context, connectionID int64, limit int) ([]models.SyncLog, error)

	// WithSavepoint runs fn so that its failure leaves the enclosing transaction usable
	WithSavepoint(ctx context.Context, name string, fn func() error) error
}

// Repository is a Catalog that can also open transactions
type Repository interface {
	Catalog
	InTx(ctx context.Context, fn func(tx Catalog) error) error
}

// Queries implements Catalog on top of a connection pool or a transaction
type Queries struct {
	db   sqlx.ExtContext
	inTx bool
}

type Store struct {
	*Queries
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreFromDB(db), nil
}

// NewStoreFromDB wraps an existing connection pool
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{
		Queries: &Queries{db: db},
		db:      db,
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a transaction, committing when fn returns nil
func (s *Store) InTx(ctx context.Context, fn func(tx Catalog) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithSavepoint runs fn under a savepoint when inside a transaction.
// Postgres aborts the whole transaction on a failed statement unless it is rolled back to a savepoint.
func (q *Queries) WithSavepoint(ctx context.Context, name string, fn func() error) error {
	if !q.inTx {
		return fn()
	}

	if _, err := q.db.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := q.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint after %v: %w", err, rbErr)
		}
		return err
	}

	if _, err := q.db.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s not found: %v: %w", what, id, models.ErrNotFound)
	}
	return err
}

func affected(res sql.Result, err error, what string, id interface{}) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %v: %w", what, id, models.ErrNotFound)
	}
	return nil
}
