package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	wooMaxPageSize = 100

	wooMetaVendor      = "_catalog_vendor"
	wooMetaProductType = "_catalog_product_type"
)

// WooCommerce talks to the WooCommerce REST API (wc/v3) with consumer key and secret
type WooCommerce struct {
	api *apiClient
}

// NewWooCommerce creates a WooCommerce adapter for a WordPress site URL
func NewWooCommerce(storeURL, consumerKey, consumerSecret string, opts Options) *WooCommerce {
	base := normalizeStoreURL(storeURL) + "/wp-json/wc/v3"
	return &WooCommerce{
		api: newAPIClient(models.ChannelWooCommerce, base, opts, func(req *http.Request) {
			req.SetBasicAuth(consumerKey, consumerSecret)
		}),
	}
}

type wooMeta struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type wooProduct struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	SKU           string    `json:"sku"`
	Price         string    `json:"price"`
	RegularPrice  string    `json:"regular_price"`
	ManageStock   bool      `json:"manage_stock"`
	StockQuantity *int      `json:"stock_quantity"`
	StockStatus   string    `json:"stock_status"`
	MetaData      []wooMeta `json:"meta_data"`
}

func (w *WooCommerce) Platform() models.Channel {
	return models.ChannelWooCommerce
}

// TestConnection lists a single product to verify the keys
func (w *WooCommerce) TestConnection(ctx context.Context) bool {
	var resp []wooProduct
	err := w.api.call(ctx, "test_connection", http.MethodGet, "/products", url.Values{"per_page": {"1"}}, nil, &resp)
	return err == nil
}

// FetchProducts pages through published products until limit rows are collected.
// A failure on a later page keeps the rows already fetched.
func (w *WooCommerce) FetchProducts(ctx context.Context, limit int) []RemoteProduct {
	if limit <= 0 {
		return nil
	}
	pageSize := limit
	if pageSize > wooMaxPageSize {
		pageSize = wooMaxPageSize
	}

	var out []RemoteProduct
	for page := 1; len(out) < limit; page++ {
		query := url.Values{
			"per_page": {strconv.Itoa(pageSize)},
			"page":     {strconv.Itoa(page)},
			"status":   {"publish"},
		}

		var batch []wooProduct
		if err := w.api.call(ctx, "fetch_products", http.MethodGet, "/products", query, nil, &batch); err != nil {
			break
		}
		for _, p := range batch {
			if len(out) >= limit {
				break
			}
			out = append(out, w.toRemote(p))
		}
		if len(batch) < pageSize {
			break
		}
	}
	return out
}

func (w *WooCommerce) toRemote(p wooProduct) RemoteProduct {
	sku := p.SKU
	if sku == "" {
		sku = fmt.Sprintf("WC-%d", p.ID)
	}

	price := parseWooPrice(p.Price)
	if price.IsZero() {
		price = parseWooPrice(p.RegularPrice)
	}

	stock := 0
	if p.StockQuantity != nil {
		stock = *p.StockQuantity
	}

	var status models.ProductStatus
	switch {
	case p.StockStatus == "outofstock":
		status = models.ProductStatusOutOfStock
	case p.StockQuantity == nil:
		status = models.ProductStatusActive
	default:
		status = models.StatusForStock(stock)
	}

	return RemoteProduct{
		ExternalID:  strconv.FormatInt(p.ID, 10),
		SKU:         sku,
		Name:        p.Name,
		Price:       price,
		Stock:       stock,
		Status:      status,
		Channel:     models.ChannelWooCommerce,
		Vendor:      metaString(p.MetaData, wooMetaVendor),
		ProductType: metaString(p.MetaData, wooMetaProductType),
	}
}

// parseWooPrice reads WooCommerce's string prices; an empty price is zero
func parseWooPrice(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func metaString(meta []wooMeta, key string) string {
	for _, m := range meta {
		if m.Key != key {
			continue
		}
		if s, ok := m.Value.(string); ok {
			return s
		}
	}
	return ""
}

// CreateProduct creates a simple product with managed stock
func (w *WooCommerce) CreateProduct(ctx context.Context, spec ProductSpec) *RemoteProduct {
	req := map[string]interface{}{
		"name":           spec.Name,
		"type":           "simple",
		"status":         "publish",
		"regular_price":  spec.Price.StringFixed(2),
		"sku":            spec.SKU,
		"description":    spec.Description,
		"manage_stock":   true,
		"stock_quantity": spec.Stock,
		"meta_data": []wooMeta{
			{Key: wooMetaVendor, Value: spec.Vendor},
			{Key: wooMetaProductType, Value: spec.ProductType},
		},
	}

	var resp wooProduct
	if err := w.api.call(ctx, "create_product", http.MethodPost, "/products", nil, req, &resp); err != nil {
		return nil
	}
	if resp.ID == 0 {
		w.api.logger.Error("Created product has no id", zap.String("sku", spec.SKU))
		return nil
	}

	created := w.toRemote(resp)
	return &created
}

// UpdatePrice sets the regular price of a product
func (w *WooCommerce) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) bool {
	req := map[string]interface{}{
		"regular_price": price.StringFixed(2),
	}
	err := w.api.call(ctx, "update_price", http.MethodPut, "/products/"+url.PathEscape(externalID), nil, req, nil)
	return err == nil
}

// UpdateStock enables stock management and sets the quantity
func (w *WooCommerce) UpdateStock(ctx context.Context, externalID string, qty int) bool {
	req := map[string]interface{}{
		"manage_stock":   true,
		"stock_quantity": qty,
	}
	err := w.api.call(ctx, "update_stock", http.MethodPut, "/products/"+url.PathEscape(externalID), nil, req, nil)
	return err == nil
}

// CreateCoupon creates a cart-wide coupon
func (w *WooCommerce) CreateCoupon(ctx context.Context, spec CouponSpec) CouponResult {
	discountType := "percent"
	if spec.DiscountType == DiscountFixedAmount {
		discountType = "fixed_cart"
	}

	req := map[string]interface{}{
		"code":           spec.Code,
		"discount_type":  discountType,
		"amount":         spec.Amount.StringFixed(2),
		"description":    spec.Description,
		"individual_use": false,
	}

	var resp struct {
		ID     int64  `json:"id"`
		Code   string `json:"code"`
		Amount string `json:"amount"`
	}
	if err := w.api.call(ctx, "create_coupon", http.MethodPost, "/coupons", nil, req, &resp); err != nil {
		return couponFailure(fmt.Sprintf("failed to create coupon: %v", err))
	}

	return CouponResult{
		Success:  true,
		CouponID: strconv.FormatInt(resp.ID, 10),
		Code:     resp.Code,
		Amount:   parseWooPrice(resp.Amount),
	}
}
