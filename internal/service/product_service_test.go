package service

import (
	"context"
	"testing"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProductFixture(t *testing.T) (*ProductService, *memStore, *fakeAdapters, int64) {
	t.Helper()
	s := newMemStore()
	adapters := newFakeAdapters()
	connID := s.addConnection(models.ChannelMock, true)
	return NewProductService(s, adapters), s, adapters, connID
}

func TestListProductsWithAppliedPromotions(t *testing.T) {
	svc, s, adapters, connID := newProductFixture(t)
	a := s.addProduct("SKU-A", "Earbuds", "10.00", 8, onConnection(connID, "MOCK-1"))
	b := s.addProduct("SKU-B", "Case", "20.00", 5, onConnection(connID, "MOCK-2"))
	sid := s.addSuggestion(a, models.SuggestionTypePrice, "Set price to 9")
	s.addSuggestion(b, models.SuggestionTypeRestock, "Order more")

	suggestions := NewSuggestionService(s, adapters, nil, nil, time.Minute)
	_, err := suggestions.Apply(context.Background(), sid)
	require.NoError(t, err)

	items, err := svc.List(context.Background(), store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[int64]ProductListItem{}
	for _, it := range items {
		byID[it.ID] = it
	}
	require.Len(t, byID[a].AppliedPromotions, 1)
	assert.Equal(t, sid, byID[a].AppliedPromotions[0].SuggestionID)
	assert.Equal(t, models.SuggestionTypePrice, byID[a].AppliedPromotions[0].Type)
	assert.NotNil(t, byID[b].AppliedPromotions)
	assert.Empty(t, byID[b].AppliedPromotions)
}

func TestListProductsFilter(t *testing.T) {
	svc, s, _, connID := newProductFixture(t)
	s.addProduct("SKU-A", "Earbuds", "10.00", 8, onConnection(connID, "MOCK-1"))
	s.addProduct("SKU-B", "Case", "20.00", 5)

	items, err := svc.List(context.Background(), store.ProductFilter{ConnectionID: connID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SKU-A", items[0].SKU)
}

func TestProductDetails(t *testing.T) {
	svc, s, adapters, connID := newProductFixture(t)
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 8, onConnection(connID, "MOCK-1"))
	sid := s.addSuggestion(pid, models.SuggestionTypePrice, "Set price to 9")
	s.addSuggestion(pid, models.SuggestionTypeRestock, "Order more")

	_, err := NewSuggestionService(s, adapters, nil, nil, time.Minute).Apply(context.Background(), sid)
	require.NoError(t, err)

	details, err := svc.Details(context.Background(), pid)
	require.NoError(t, err)
	assertDecimal(t, "9", details.Product.Price)
	require.Len(t, details.AppliedSuggestions, 1)
	assert.Equal(t, sid, details.AppliedSuggestions[0].ID)
	require.Len(t, details.Events, 1)
	assert.Equal(t, models.EventTypeSuggestionApplied, details.Events[0].EventType)

	_, err = svc.Details(context.Background(), 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestProductDetailsLimitsHistory(t *testing.T) {
	svc, s, _, _ := newProductFixture(t)
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 8)
	for i := 0; i < 30; i++ {
		_ = s.CreateEvent(context.Background(), &models.Event{ProductID: &pid, EventType: models.EventTypeProductUpdated})
	}

	details, err := svc.Details(context.Background(), pid)
	require.NoError(t, err)
	assert.Len(t, details.Events, productHistoryLimit)
}

func TestCreateProductInStore(t *testing.T) {
	svc, s, adapters, connID := newProductFixture(t)

	p, err := svc.CreateInStore(context.Background(), &CreateProductRequest{
		ConnectionID: connID,
		Name:         "Travel Adapter",
		Price:        decimal.RequireFromString("24.999"),
		Stock:        15,
		SKU:          "SKU-TRAVEL",
	})
	require.NoError(t, err)

	assert.NotZero(t, p.ID)
	assert.Equal(t, "SKU-TRAVEL", p.SKU)
	assertDecimal(t, "25.00", p.Price)
	assert.Equal(t, connID, *p.ConnectionID)
	require.NotNil(t, p.ExternalID)

	created := adapters.mock(connID).CreatedProducts()
	require.Len(t, created, 1)
	assert.Equal(t, "Travel Adapter", created[0].Name)

	events := s.eventsOfType(models.EventTypeProductCreated)
	require.Len(t, events, 1)
	assert.Equal(t, p.ID, *events[0].ProductID)
}

func TestCreateProductInStoreRemoteFailure(t *testing.T) {
	svc, s, adapters, connID := newProductFixture(t)
	adapters.mock(connID).FailOn(platform.CapCreateProduct)

	_, err := svc.CreateInStore(context.Background(), &CreateProductRequest{
		ConnectionID: connID,
		Name:         "Travel Adapter",
		Price:        decimal.NewFromInt(25),
		Stock:        15,
	})
	assert.ErrorIs(t, err, models.ErrIntegration)
	assert.Zero(t, s.productCount())
	assert.Empty(t, s.st.events)
}

func TestCreateProductInStoreValidation(t *testing.T) {
	svc, s, _, connID := newProductFixture(t)
	inactive := s.addConnection(models.ChannelMock, false)

	tests := []struct {
		name string
		req  CreateProductRequest
		want error
	}{
		{"missing name", CreateProductRequest{ConnectionID: connID}, models.ErrValidation},
		{"negative price", CreateProductRequest{ConnectionID: connID, Name: "x", Price: decimal.NewFromInt(-1)}, models.ErrValidation},
		{"negative stock", CreateProductRequest{ConnectionID: connID, Name: "x", Stock: -1}, models.ErrValidation},
		{"inactive connection", CreateProductRequest{ConnectionID: inactive, Name: "x"}, models.ErrValidation},
		{"unknown connection", CreateProductRequest{ConnectionID: 999, Name: "x"}, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := svc.CreateInStore(context.Background(), &req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateProductPropagatesToStore(t *testing.T) {
	svc, s, adapters, connID := newProductFixture(t)
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 20, onConnection(connID, "MOCK-1"))

	price := decimal.RequireFromString("12.5")
	stock := 3
	res, err := svc.Update(context.Background(), pid, &UpdateProductRequest{Price: &price, Stock: &stock})
	require.NoError(t, err)

	p := s.product(pid)
	assertDecimal(t, "12.50", p.Price)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, models.ProductStatusLowStock, p.Status)

	remote := adapters.mock(connID)
	assertDecimal(t, "12.50", remote.PriceUpdates()["MOCK-1"])
	assert.Equal(t, 3, remote.StockUpdates()["MOCK-1"])
	assertAction(t, res.Actions, "Remote price updated")
	assertAction(t, res.Actions, "Remote stock updated")

	assert.Len(t, s.eventsOfType(models.EventTypeProductUpdated), 1)
}

func TestUpdateProductRemoteFailureIsReported(t *testing.T) {
	svc, s, adapters, connID := newProductFixture(t)
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 20, onConnection(connID, "MOCK-1"))
	adapters.mock(connID).FailOn(platform.CapUpdateStock)

	stock := 0
	res, err := svc.Update(context.Background(), pid, &UpdateProductRequest{Stock: &stock})
	require.NoError(t, err)

	assert.Equal(t, 0, s.product(pid).Stock)
	assert.Equal(t, models.ProductStatusOutOfStock, s.product(pid).Status)
	assertAction(t, res.Actions, "ERROR: remote stock update failed")
}

func TestUpdateLocalProduct(t *testing.T) {
	svc, s, _, _ := newProductFixture(t)
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 20)

	price := decimal.NewFromInt(8)
	res, err := svc.Update(context.Background(), pid, &UpdateProductRequest{Price: &price})
	require.NoError(t, err)
	assertAction(t, res.Actions, "Local change only")
	assertDecimal(t, "8", s.product(pid).Price)
}

func TestUpdateProductValidation(t *testing.T) {
	svc, s, _, _ := newProductFixture(t)
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 20)

	_, err := svc.Update(context.Background(), pid, &UpdateProductRequest{})
	assert.ErrorIs(t, err, models.ErrValidation)

	negative := -2
	_, err = svc.Update(context.Background(), pid, &UpdateProductRequest{Stock: &negative})
	assert.ErrorIs(t, err, models.ErrValidation)

	stock := 1
	_, err = svc.Update(context.Background(), 999, &UpdateProductRequest{Stock: &stock})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecentEventsLimit(t *testing.T) {
	s := newMemStore()
	pid := s.addProduct("SKU-A", "Earbuds", "10.00", 20)
	for i := 0; i < 3; i++ {
		_ = s.CreateEvent(context.Background(), &models.Event{ProductID: &pid, EventType: models.EventTypeProductUpdated})
	}
	svc := NewEventService(s)

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultEventLimit},
		{-4, DefaultEventLimit},
		{7, 7},
		{500, MaxEventLimit},
	}
	for _, tt := range tests {
		_, err := svc.Recent(context.Background(), tt.limit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.lastEventLimit, "limit %d", tt.limit)
	}

	events, err := svc.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].ProductSKU)
	assert.Equal(t, "SKU-A", *events[0].ProductSKU)
}
