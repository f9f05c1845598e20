package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShopifyTestServer(t *testing.T, mux *http.ServeMux) *Shopify {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewShopify(srv.URL, "shpat_test", Options{RateLimit: 0})
}

func TestShopifyFetchProductsFlattensVariants(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/products.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"products":[
			{"id":1,"title":"T-Shirt","vendor":"Acme","product_type":"Apparel","variants":[
				{"id":11,"title":"Small","sku":"TS-S","price":"19.99","inventory_quantity":5},
				{"id":12,"title":"Large","sku":"","price":"21.00","inventory_quantity":40}
			]},
			{"id":2,"title":"Mug","vendor":"Acme","variants":[
				{"id":21,"title":"Default Title","sku":"MUG","price":"9.50","inventory_quantity":0}
			]}
		]}`))
	})

	products := newShopifyTestServer(t, mux).FetchProducts(context.Background(), 10)
	require.Len(t, products, 3)

	assert.Equal(t, "T-Shirt - Small", products[0].Name)
	assert.Equal(t, "11", products[0].ExternalID)
	assert.Equal(t, models.ProductStatusLowStock, products[0].Status)
	assert.Equal(t, "Acme", products[0].Vendor)
	assert.Equal(t, "Apparel", products[0].ProductType)

	assert.Equal(t, "SHOPIFY-12", products[1].SKU)
	assert.Equal(t, models.ProductStatusActive, products[1].Status)

	assert.Equal(t, "Mug", products[2].Name)
	assert.Equal(t, "9.50", products[2].Price.StringFixed(2))
	assert.Equal(t, models.ProductStatusOutOfStock, products[2].Status)
}

func TestShopifyFetchProductsFailureIsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/products.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"Invalid API key"}`, http.StatusUnauthorized)
	})

	s := newShopifyTestServer(t, mux)
	assert.Empty(t, s.FetchProducts(context.Background(), 10))
	assert.False(t, s.TestConnection(context.Background()))
}

func TestShopifyUpdatePrice(t *testing.T) {
	var body map[string]map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/variants/42.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"variant":{"id":42}}`))
	})

	s := newShopifyTestServer(t, mux)
	assert.True(t, s.UpdatePrice(context.Background(), "42", decimal.RequireFromString("249.9")))
	assert.Equal(t, "249.90", body["variant"]["price"])

	assert.False(t, s.UpdatePrice(context.Background(), "not-a-number", decimal.NewFromInt(1)))
}

func TestShopifyUpdateStockSetsInventoryLevel(t *testing.T) {
	var level map[string]int64
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/variants/42.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"variant":{"id":42,"price":"10.00","inventory_item_id":777}}`))
	})
	mux.HandleFunc("/admin/api/2024-01/locations.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"locations":[{"id":1,"active":false},{"id":5,"active":true}]}`))
	})
	mux.HandleFunc("/admin/api/2024-01/inventory_levels/set.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&level))
		_, _ = w.Write([]byte(`{"inventory_level":{}}`))
	})

	s := newShopifyTestServer(t, mux)
	require.True(t, s.UpdateStock(context.Background(), "42", 0))
	assert.Equal(t, int64(5), level["location_id"])
	assert.Equal(t, int64(777), level["inventory_item_id"])
	assert.Equal(t, int64(0), level["available"])
}

func TestShopifyCreateProductReturnsVariant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/products.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Product shopifyProduct `json:"product"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bundle", req.Product.ProductType)
		require.Len(t, req.Product.Variants, 1)
		assert.Equal(t, "AI-BUNDLE-7", req.Product.Variants[0].SKU)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"product":{"id":9,"title":"Bundle","vendor":"AI Generated","product_type":"bundle","variants":[
			{"id":99,"title":"Default Title","sku":"AI-BUNDLE-7","price":"35.99","inventory_quantity":4}
		]}}`))
	})

	created := newShopifyTestServer(t, mux).CreateProduct(context.Background(), ProductSpec{
		Name:        "Bundle",
		SKU:         "AI-BUNDLE-7",
		Price:       decimal.RequireFromString("35.99"),
		Stock:       4,
		Vendor:      "AI Generated",
		ProductType: "bundle",
	})
	require.NotNil(t, created)
	assert.Equal(t, "99", created.ExternalID)
	assert.Equal(t, "Bundle", created.Name)
}

func TestShopifyCreateCoupon(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/price_rules.json", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "-15", req["price_rule"]["value"])
		assert.Equal(t, "percentage", req["price_rule"]["value_type"])
		_, _ = w.Write([]byte(`{"price_rule":{"id":3}}`))
	})
	mux.HandleFunc("/admin/api/2024-01/price_rules/3/discount_codes.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"discount_code":{"id":8,"code":"SAVE15"}}`))
	})

	res := newShopifyTestServer(t, mux).CreateCoupon(context.Background(), CouponSpec{
		Code:         "SAVE15",
		DiscountType: DiscountPercentage,
		Amount:       decimal.NewFromInt(15),
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "8", res.CouponID)
	assert.Equal(t, "SAVE15", res.Code)
}
