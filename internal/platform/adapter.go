// Package platform implements the capability set the catalog needs from an external commerce
// platform. Adapters never fail on ordinary network or HTTP errors: they log the failure and
// return a falsy or empty result, and the caller decides whether that is fatal.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var (
	ErrUnsupportedPlatform = errors.New("platform: unsupported platform")
	ErrMissingCredentials  = errors.New("platform: missing credentials")
)

// Adapter is the capability interface every platform implements
type Adapter interface {
	Platform() models.Channel
	TestConnection(ctx context.Context) bool
	FetchProducts(ctx context.Context, limit int) []RemoteProduct
	CreateProduct(ctx context.Context, spec ProductSpec) *RemoteProduct
	UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) bool
	UpdateStock(ctx context.Context, externalID string, qty int) bool
	CreateCoupon(ctx context.Context, spec CouponSpec) CouponResult
}

// RemoteProduct is a product as reported by a platform, normalised to catalog fields
type RemoteProduct struct {
	ExternalID  string               `json:"external_id"`
	SKU         string               `json:"sku"`
	Name        string               `json:"name"`
	Price       decimal.Decimal      `json:"price"`
	Stock       int                  `json:"stock"`
	Status      models.ProductStatus `json:"status"`
	Channel     models.Channel       `json:"channel"`
	Vendor      string               `json:"vendor,omitempty"`
	ProductType string               `json:"product_type,omitempty"`
}

// ProductSpec describes a product to create on a platform
type ProductSpec struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	SKU         string          `json:"sku,omitempty"`
	Description string          `json:"description,omitempty"`
	Vendor      string          `json:"vendor,omitempty"`
	ProductType string          `json:"product_type,omitempty"`
}

// Coupon discount types
const (
	DiscountPercentage  = "percentage"
	DiscountFixedAmount = "fixed_amount"
)

// CouponSpec describes a discount code to create on a platform
type CouponSpec struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discount_type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
}

// CouponResult is the outcome of CreateCoupon; Error is set when Success is false
type CouponResult struct {
	Success  bool            `json:"success"`
	CouponID string          `json:"coupon_id,omitempty"`
	Code     string          `json:"code,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Error    string          `json:"error,omitempty"`
}

func couponFailure(msg string) CouponResult {
	return CouponResult{Success: false, Error: msg}
}

// Credentials are the decrypted API credentials of a store connection
type Credentials struct {
	APIKey    string
	APISecret string
}

// Options bound the HTTP behaviour of an adapter
type Options struct {
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
}

// DefaultOptions returns a 30 second per-call timeout and a conservative rate limit
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		RateLimit: 2,
		Burst:     10,
	}
}

// New builds the adapter for a platform
func New(channel models.Channel, storeURL string, creds Credentials, opts Options) (Adapter, error) {
	switch channel {
	case models.ChannelShopify:
		if creds.APIKey == "" {
			return nil, fmt.Errorf("%w: shopify requires an access token", ErrMissingCredentials)
		}
		return NewShopify(storeURL, creds.APIKey, opts), nil
	case models.ChannelWooCommerce:
		if creds.APIKey == "" || creds.APISecret == "" {
			return nil, fmt.Errorf("%w: woocommerce requires both api_key and api_secret", ErrMissingCredentials)
		}
		return NewWooCommerce(storeURL, creds.APIKey, creds.APISecret, opts), nil
	case models.ChannelMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, channel)
	}
}
