package platform

import (
	"context"
	"fmt"
	"sync"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
)

// Capability names a single adapter operation, used to inject failures into the mock
type Capability string

const (
	CapTestConnection Capability = "test_connection"
	CapFetchProducts  Capability = "fetch_products"
	CapCreateProduct  Capability = "create_product"
	CapUpdatePrice    Capability = "update_price"
	CapUpdateStock    Capability = "update_stock"
	CapCreateCoupon   Capability = "create_coupon"
)

var mockSeed = []struct {
	name     string
	price    string
	category string
}{
	{"Smartwatch Fitness Pro", "299.99", "Electronics"},
	{"Wireless Earbuds Elite", "149.99", "Electronics"},
	{"Portable Power Bank 20000mAh", "79.99", "Electronics"},
	{"USB-C Charging Cable 2m", "19.99", "Accessories"},
	{"Bluetooth Speaker Waterproof", "89.99", "Electronics"},
	{"Phone Stand Adjustable", "24.99", "Accessories"},
	{"Laptop Sleeve 15 inch", "34.99", "Accessories"},
	{"Gaming Mouse RGB", "59.99", "Gaming"},
	{"Mechanical Keyboard", "129.99", "Gaming"},
	{"Webcam HD 1080p", "69.99", "Electronics"},
	{"External SSD 1TB", "149.99", "Storage"},
	{"Phone Case Premium", "29.99", "Accessories"},
	{"Screen Protector Tempered Glass", "14.99", "Accessories"},
	{"Wireless Charger Pad", "39.99", "Accessories"},
	{"Smart Light Bulb RGB", "24.99", "Smart Home"},
	{"Security Camera WiFi", "89.99", "Smart Home"},
	{"Smart Plug Mini", "19.99", "Smart Home"},
	{"Fitness Tracker Band", "79.99", "Fitness"},
	{"Yoga Mat Premium", "34.99", "Fitness"},
	{"Resistance Bands Set", "24.99", "Fitness"},
}

// DemoCatalog returns the fixed catalog served by a fresh mock store
func DemoCatalog() []RemoteProduct {
	out := make([]RemoteProduct, 0, len(mockSeed))
	for i, s := range mockSeed {
		n := i + 1
		stock := 20 + (n*37)%180
		if n%6 == 0 {
			stock = n % 9
		}
		out = append(out, RemoteProduct{
			ExternalID:  fmt.Sprintf("MOCK-%d", n),
			SKU:         fmt.Sprintf("SKU-DEMO-%03d", n),
			Name:        s.name,
			Price:       decimal.RequireFromString(s.price),
			Stock:       stock,
			Status:      models.StatusForStock(stock),
			Channel:     models.ChannelMock,
			Vendor:      "Demo Store",
			ProductType: s.category,
		})
	}
	return out
}

// Mock is an in-memory platform. It is deterministic, records every write and can be told to
// fail individual capabilities.
type Mock struct {
	mu sync.Mutex

	products map[string]*RemoteProduct
	order    []string
	nextID   int

	fail      map[Capability]bool
	failStock map[string]bool

	priceUpdates map[string]decimal.Decimal
	stockUpdates map[string]int
	created      []ProductSpec
	coupons      []CouponSpec
}

// NewMock creates a mock store holding products, or the demo catalog when none are given
func NewMock(products ...RemoteProduct) *Mock {
	if len(products) == 0 {
		products = DemoCatalog()
	}

	m := &Mock{
		products:     make(map[string]*RemoteProduct, len(products)),
		nextID:       1000,
		fail:         make(map[Capability]bool),
		failStock:    make(map[string]bool),
		priceUpdates: make(map[string]decimal.Decimal),
		stockUpdates: make(map[string]int),
	}
	for i := range products {
		p := products[i]
		m.products[p.ExternalID] = &p
		m.order = append(m.order, p.ExternalID)
	}
	return m
}

// FailOn makes the given capabilities report failure
func (m *Mock) FailOn(caps ...Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range caps {
		m.fail[c] = true
	}
}

// FailStockUpdateFor makes UpdateStock fail for a single external id
func (m *Mock) FailStockUpdateFor(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStock[externalID] = true
}

func (m *Mock) Platform() models.Channel {
	return models.ChannelMock
}

func (m *Mock) TestConnection(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.fail[CapTestConnection]
}

func (m *Mock) FetchProducts(_ context.Context, limit int) []RemoteProduct {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail[CapFetchProducts] || limit <= 0 {
		return nil
	}

	out := make([]RemoteProduct, 0, len(m.order))
	for _, id := range m.order {
		if len(out) >= limit {
			break
		}
		out = append(out, *m.products[id])
	}
	return out
}

func (m *Mock) CreateProduct(_ context.Context, spec ProductSpec) *RemoteProduct {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail[CapCreateProduct] {
		return nil
	}

	m.nextID++
	p := RemoteProduct{
		ExternalID:  fmt.Sprintf("MOCK-%d", m.nextID),
		SKU:         spec.SKU,
		Name:        spec.Name,
		Price:       spec.Price,
		Stock:       spec.Stock,
		Status:      models.StatusForStock(spec.Stock),
		Channel:     models.ChannelMock,
		Vendor:      spec.Vendor,
		ProductType: spec.ProductType,
	}
	m.products[p.ExternalID] = &p
	m.order = append(m.order, p.ExternalID)
	m.created = append(m.created, spec)

	out := p
	return &out
}

func (m *Mock) UpdatePrice(_ context.Context, externalID string, price decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[externalID]
	if m.fail[CapUpdatePrice] || !ok {
		return false
	}
	p.Price = price
	m.priceUpdates[externalID] = price
	return true
}

func (m *Mock) UpdateStock(_ context.Context, externalID string, qty int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[externalID]
	if m.fail[CapUpdateStock] || m.failStock[externalID] || !ok {
		return false
	}
	p.Stock = qty
	p.Status = models.StatusForStock(qty)
	m.stockUpdates[externalID] = qty
	return true
}

func (m *Mock) CreateCoupon(_ context.Context, spec CouponSpec) CouponResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail[CapCreateCoupon] {
		return couponFailure("coupon creation disabled")
	}
	m.coupons = append(m.coupons, spec)
	return CouponResult{
		Success:  true,
		CouponID: fmt.Sprintf("COUPON-%d", len(m.coupons)),
		Code:     spec.Code,
		Amount:   spec.Amount,
	}
}

// PriceUpdates returns the last price written per external id
func (m *Mock) PriceUpdates() map[string]decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(m.priceUpdates))
	for k, v := range m.priceUpdates {
		out[k] = v
	}
	return out
}

// StockUpdates returns the last quantity written per external id
func (m *Mock) StockUpdates() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.stockUpdates))
	for k, v := range m.stockUpdates {
		out[k] = v
	}
	return out
}

// CreatedProducts returns every successful CreateProduct request in order
func (m *Mock) CreatedProducts() []ProductSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProductSpec(nil), m.created...)
}

// Coupons returns every coupon created
func (m *Mock) Coupons() []CouponSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CouponSpec(nil), m.coupons...)
}
