package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const shopifyAPIVersion = "2024-01"

// shopifyDefaultVariant is the title Shopify gives the only variant of a product without options
const shopifyDefaultVariant = "Default Title"

// Shopify talks to the Shopify Admin REST API with a private app access token
type Shopify struct {
	api *apiClient
}

// NewShopify creates a Shopify adapter for a shop domain such as "demo.myshopify.com"
func NewShopify(storeURL, accessToken string, opts Options) *Shopify {
	base := normalizeStoreURL(storeURL) + "/admin/api/" + shopifyAPIVersion
	return &Shopify{
		api: newAPIClient(models.ChannelShopify, base, opts, func(req *http.Request) {
			req.Header.Set("X-Shopify-Access-Token", accessToken)
		}),
	}
}

type shopifyVariant struct {
	ID                  int64           `json:"id,omitempty"`
	ProductID           int64           `json:"product_id,omitempty"`
	Title               string          `json:"title,omitempty"`
	SKU                 string          `json:"sku,omitempty"`
	Price               decimal.Decimal `json:"price"`
	InventoryQuantity   int             `json:"inventory_quantity"`
	InventoryItemID     int64           `json:"inventory_item_id,omitempty"`
	InventoryManagement string          `json:"inventory_management,omitempty"`
}

type shopifyProduct struct {
	ID          int64            `json:"id,omitempty"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html,omitempty"`
	Vendor      string           `json:"vendor,omitempty"`
	ProductType string           `json:"product_type,omitempty"`
	Status      string           `json:"status,omitempty"`
	Variants    []shopifyVariant `json:"variants"`
}

type shopifyLocation struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
}

func (s *Shopify) Platform() models.Channel {
	return models.ChannelShopify
}

// TestConnection lists a single product to verify the token
func (s *Shopify) TestConnection(ctx context.Context) bool {
	var resp struct {
		Products []shopifyProduct `json:"products"`
	}
	err := s.api.call(ctx, "test_connection", http.MethodGet, "/products.json", url.Values{"limit": {"1"}}, nil, &resp)
	return err == nil
}

// FetchProducts returns one row per variant, up to limit rows
func (s *Shopify) FetchProducts(ctx context.Context, limit int) []RemoteProduct {
	if limit <= 0 {
		return nil
	}
	pageSize := limit
	if pageSize > 250 {
		pageSize = 250
	}

	var resp struct {
		Products []shopifyProduct `json:"products"`
	}
	if err := s.api.call(ctx, "fetch_products", http.MethodGet, "/products.json", url.Values{"limit": {strconv.Itoa(pageSize)}}, nil, &resp); err != nil {
		return nil
	}

	var out []RemoteProduct
	for _, p := range resp.Products {
		for _, v := range p.Variants {
			if len(out) >= limit {
				return out
			}
			out = append(out, s.toRemote(p, v))
		}
	}
	return out
}

func (s *Shopify) toRemote(p shopifyProduct, v shopifyVariant) RemoteProduct {
	sku := v.SKU
	if sku == "" {
		sku = fmt.Sprintf("SHOPIFY-%d", v.ID)
	}
	name := p.Title
	if v.Title != "" && v.Title != shopifyDefaultVariant {
		name = p.Title + " - " + v.Title
	}
	return RemoteProduct{
		ExternalID:  strconv.FormatInt(v.ID, 10),
		SKU:         sku,
		Name:        name,
		Price:       v.Price,
		Stock:       v.InventoryQuantity,
		Status:      models.StatusForStock(v.InventoryQuantity),
		Channel:     models.ChannelShopify,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
	}
}

// CreateProduct creates a single-variant product; the returned ExternalID is the variant id
func (s *Shopify) CreateProduct(ctx context.Context, spec ProductSpec) *RemoteProduct {
	req := map[string]shopifyProduct{
		"product": {
			Title:       spec.Name,
			BodyHTML:    spec.Description,
			Vendor:      spec.Vendor,
			ProductType: spec.ProductType,
			Status:      "active",
			Variants: []shopifyVariant{{
				SKU:                 spec.SKU,
				Price:               spec.Price,
				InventoryQuantity:   spec.Stock,
				InventoryManagement: "shopify",
			}},
		},
	}

	var resp struct {
		Product shopifyProduct `json:"product"`
	}
	if err := s.api.call(ctx, "create_product", http.MethodPost, "/products.json", nil, req, &resp); err != nil {
		return nil
	}
	if len(resp.Product.Variants) == 0 {
		s.api.logger.Error("Created product has no variants", zap.Int64("product_id", resp.Product.ID))
		return nil
	}

	created := s.toRemote(resp.Product, resp.Product.Variants[0])
	return &created
}

// UpdatePrice sets the price of a variant
func (s *Shopify) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) bool {
	variantID, ok := s.parseID(externalID)
	if !ok {
		return false
	}

	req := map[string]interface{}{
		"variant": map[string]interface{}{"id": variantID, "price": price.StringFixed(2)},
	}
	err := s.api.call(ctx, "update_price", http.MethodPut, fmt.Sprintf("/variants/%d.json", variantID), nil, req, nil)
	return err == nil
}

// UpdateStock sets the available quantity of a variant at the shop's first active location
func (s *Shopify) UpdateStock(ctx context.Context, externalID string, qty int) bool {
	variantID, ok := s.parseID(externalID)
	if !ok {
		return false
	}

	var variant struct {
		Variant shopifyVariant `json:"variant"`
	}
	if err := s.api.call(ctx, "get_variant", http.MethodGet, fmt.Sprintf("/variants/%d.json", variantID), nil, nil, &variant); err != nil {
		return false
	}
	if variant.Variant.InventoryItemID == 0 {
		s.api.logger.Error("Variant has no inventory item", zap.Int64("variant_id", variantID))
		return false
	}

	var locations struct {
		Locations []shopifyLocation `json:"locations"`
	}
	if err := s.api.call(ctx, "list_locations", http.MethodGet, "/locations.json", nil, nil, &locations); err != nil {
		return false
	}
	var locationID int64
	for _, l := range locations.Locations {
		if l.Active {
			locationID = l.ID
			break
		}
	}
	if locationID == 0 {
		s.api.logger.Error("Shop has no active location")
		return false
	}

	req := map[string]interface{}{
		"location_id":       locationID,
		"inventory_item_id": variant.Variant.InventoryItemID,
		"available":         qty,
	}
	err := s.api.call(ctx, "update_stock", http.MethodPost, "/inventory_levels/set.json", nil, req, nil)
	return err == nil
}

// CreateCoupon creates a price rule and a single discount code under it
func (s *Shopify) CreateCoupon(ctx context.Context, spec CouponSpec) CouponResult {
	valueType := "percentage"
	if spec.DiscountType == DiscountFixedAmount {
		valueType = "fixed_amount"
	}

	rule := map[string]interface{}{
		"price_rule": map[string]interface{}{
			"title":              spec.Code,
			"target_type":        "line_item",
			"target_selection":   "all",
			"allocation_method":  "across",
			"value_type":         valueType,
			"value":              spec.Amount.Neg().String(),
			"customer_selection": "all",
			"starts_at":          time.Now().UTC().Format(time.RFC3339),
		},
	}

	var ruleResp struct {
		PriceRule struct {
			ID int64 `json:"id"`
		} `json:"price_rule"`
	}
	if err := s.api.call(ctx, "create_price_rule", http.MethodPost, "/price_rules.json", nil, rule, &ruleResp); err != nil {
		return couponFailure(fmt.Sprintf("failed to create price rule: %v", err))
	}

	code := map[string]interface{}{
		"discount_code": map[string]string{"code": spec.Code},
	}
	var codeResp struct {
		DiscountCode struct {
			ID   int64  `json:"id"`
			Code string `json:"code"`
		} `json:"discount_code"`
	}
	endpoint := fmt.Sprintf("/price_rules/%d/discount_codes.json", ruleResp.PriceRule.ID)
	if err := s.api.call(ctx, "create_coupon", http.MethodPost, endpoint, nil, code, &codeResp); err != nil {
		return couponFailure(fmt.Sprintf("failed to create discount code: %v", err))
	}

	return CouponResult{
		Success:  true,
		CouponID: strconv.FormatInt(codeResp.DiscountCode.ID, 10),
		Code:     codeResp.DiscountCode.Code,
		Amount:   spec.Amount,
	}
}

func (s *Shopify) parseID(externalID string) (int64, bool) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		s.api.logger.Error("Invalid Shopify variant id", zap.String("external_id", externalID))
		return 0, false
	}
	return id, true
}
