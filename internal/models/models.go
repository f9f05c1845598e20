package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Channel identifies the commerce platform a product or connection belongs to
type Channel string

const (
	ChannelShopify     Channel = "shopify"
	ChannelWooCommerce Channel = "woocommerce"
	ChannelMock        Channel = "mock"
)

// IsValid reports whether the channel is a supported platform
func (c Channel) IsValid() bool {
	switch c {
	case ChannelShopify, ChannelWooCommerce, ChannelMock:
		return true
	default:
		return false
	}
}

// ProductStatus is the lifecycle status of a catalog product
type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "active"
	ProductStatusLowStock   ProductStatus = "low_stock"
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
	ProductStatusBundled    ProductStatus = "bundled"
	ProductStatusPromoUsed  ProductStatus = "promo_used"
)

// LowStockThreshold is the stock level below which a product is low on stock
const LowStockThreshold = 10

// StatusForStock derives the status of a sellable product from its stock level
func StatusForStock(stock int) ProductStatus {
	switch {
	case stock <= 0:
		return ProductStatusOutOfStock
	case stock < LowStockThreshold:
		return ProductStatusLowStock
	default:
		return ProductStatusActive
	}
}

// Composite product types
const (
	ProductTypeBundle    = "bundle"
	ProductTypePromotion = "promotion"
)

// Product represents a product in the catalog
type Product struct {
	ID           int64           `db:"id" json:"id"`
	SKU          string          `db:"sku" json:"sku"`
	Name         string          `db:"name" json:"name"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int             `db:"stock" json:"stock"`
	Status       ProductStatus   `db:"status" json:"status"`
	Channel      Channel         `db:"channel" json:"channel"`
	ConnectionID *int64          `db:"connection_id" json:"connection_id,omitempty"`
	ExternalID   *string         `db:"external_id" json:"external_id,omitempty"`
	Vendor       string          `db:"vendor" json:"vendor"`
	ProductType  *string         `db:"product_type" json:"product_type,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsComposite reports whether the product is a bundle or promotion built from other products
func (p *Product) IsComposite() bool {
	if p.ProductType == nil {
		return false
	}
	return *p.ProductType == ProductTypeBundle || *p.ProductType == ProductTypePromotion
}

// SuggestionType is the kind of change a suggestion proposes
type SuggestionType string

const (
	SuggestionTypePrice   SuggestionType = "price"
	SuggestionTypePromo   SuggestionType = "promo"
	SuggestionTypeBundle  SuggestionType = "bundle"
	SuggestionTypeRestock SuggestionType = "restock"
)

// IsValid reports whether the suggestion type is known
func (t SuggestionType) IsValid() bool {
	switch t {
	case SuggestionTypePrice, SuggestionTypePromo, SuggestionTypeBundle, SuggestionTypeRestock:
		return true
	default:
		return false
	}
}

// SuggestionStatus moves one way: new -> applied
type SuggestionStatus string

const (
	SuggestionStatusNew     SuggestionStatus = "new"
	SuggestionStatusApplied SuggestionStatus = "applied"
)

// Suggestion is a textual recommendation for a product
type Suggestion struct {
	ID                int64            `db:"id" json:"id"`
	ProductID         int64            `db:"product_id" json:"product_id"`
	Type              SuggestionType   `db:"type" json:"type"`
	Description       string           `db:"description" json:"description"`
	Status            SuggestionStatus `db:"status" json:"status"`
	RelatedProductIDs pq.Int64Array    `db:"related_product_ids" json:"related_product_ids"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	AppliedAt         *time.Time       `db:"applied_at" json:"applied_at,omitempty"`
}

// Event types recorded in the history
const (
	EventTypeSuggestionApplied = "suggestion_applied"
	EventTypeProductsSynced    = "products_synced"
	EventTypeConnectionCreated = "connection_created"
	EventTypeConnectionDeleted = "connection_deleted"
	EventTypeConnectionToggled = "connection_toggled"
	EventTypeProductCreated    = "product_created"
	EventTypeProductUpdated    = "product_updated"
	EventTypeCouponCreated     = "coupon_created"
)

// Event is an append-only history entry
type Event struct {
	ID           int64     `db:"id" json:"id"`
	ProductID    *int64    `db:"product_id" json:"product_id,omitempty"`
	SuggestionID *int64    `db:"suggestion_id" json:"suggestion_id,omitempty"`
	EventType    string    `db:"event_type" json:"event_type"`
	Description  string    `db:"description" json:"description"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EventView is an event joined with its product for display
type EventView struct {
	Event
	ProductName *string `db:"product_name" json:"product_name,omitempty"`
	ProductSKU  *string `db:"product_sku" json:"product_sku,omitempty"`
}

// StoreConnection holds the (encrypted) credentials of a remote store
type StoreConnection struct {
	ID                 int64      `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	Platform           Channel    `db:"platform" json:"platform"`
	StoreURL           string     `db:"store_url" json:"store_url"`
	APIKeyEncrypted    string     `db:"api_key_encrypted" json:"-"`
	APISecretEncrypted *string    `db:"api_secret_encrypted" json:"-"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	LastSync           *time.Time `db:"last_sync" json:"last_sync,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// Sync log statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"

	SyncTypeProducts = "products"
)

// SyncLog records the outcome of one synchronization pass
type SyncLog struct {
	ID             int64     `db:"id" json:"id"`
	ConnectionID   int64     `db:"connection_id" json:"connection_id"`
	SyncType       string    `db:"sync_type" json:"sync_type"`
	Status         string    `db:"status" json:"status"`
	ProductsSynced int       `db:"products_synced" json:"products_synced"`
	ErrorMessage   *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
