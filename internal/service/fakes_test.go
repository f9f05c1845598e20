package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/store"

	"github.com/shopspring/decimal"
)

// memState is the content of the in-memory catalog
type memState struct {
	nextID      int64
	products    map[int64]models.Product
	suggestions map[int64]models.Suggestion
	events      []models.Event
	conns       map[int64]models.StoreConnection
	syncLogs    []models.SyncLog
}

func newMemState() *memState {
	return &memState{
		products:    make(map[int64]models.Product),
		suggestions: make(map[int64]models.Suggestion),
		conns:       make(map[int64]models.StoreConnection),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		nextID:      st.nextID,
		products:    make(map[int64]models.Product, len(st.products)),
		suggestions: make(map[int64]models.Suggestion, len(st.suggestions)),
		events:      append([]models.Event(nil), st.events...),
		conns:       make(map[int64]models.StoreConnection, len(st.conns)),
		syncLogs:    append([]models.SyncLog(nil), st.syncLogs...),
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.suggestions {
		v.RelatedProductIDs = append([]int64(nil), v.RelatedProductIDs...)
		c.suggestions[k] = v
	}
	for k, v := range st.conns {
		c.conns[k] = v
	}
	return c
}

func (st *memState) id() int64 {
	st.nextID++
	return st.nextID
}

// memFaults injects storage failures
type memFaults struct {
	createProductSKU map[string]error
	stockUpdate      map[int64]error
}

// memStore is an in-memory store.Repository. Transactions work on a copy of the state that
// replaces the committed state on success; savepoints restore a snapshot on failure.
type memStore struct {
	mu     *sync.Mutex
	st     *memState
	inTx   bool
	faults *memFaults

	lastEventLimit   int
	lastSyncLogLimit int
}

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		st: newMemState(),
		faults: &memFaults{
			createProductSKU: make(map[string]error),
			stockUpdate:      make(map[int64]error),
		},
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx store.Catalog) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memStore{mu: &sync.Mutex{}, st: m.st.clone(), inTx: true, faults: m.faults}
	if err := fn(tx); err != nil {
		return err
	}
	m.st = tx.st
	return nil
}

func (m *memStore) WithSavepoint(_ context.Context, _ string, fn func() error) error {
	snapshot := m.st.clone()
	if err := fn(); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := m.st.products[id]
	if !ok {
		return nil, fmt.Errorf("product not found: %d: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (m *memStore) GetProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	for _, p := range m.st.products {
		if p.SKU == sku {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("product not found: %s: %w", sku, models.ErrNotFound)
}

func (m *memStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListProducts(_ context.Context, filter store.ProductFilter) ([]models.Product, error) {
	out := []models.Product{}
	for _, p := range m.st.products {
		if filter.Channel != "" && p.Channel != filter.Channel {
			continue
		}
		if filter.ConnectionID != 0 && (p.ConnectionID == nil || *p.ConnectionID != filter.ConnectionID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.SKU), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) CreateProduct(_ context.Context, product *models.Product) error {
	if err := m.faults.createProductSKU[product.SKU]; err != nil {
		return err
	}
	for _, p := range m.st.products {
		if p.SKU == product.SKU {
			return errors.New(`duplicate key value violates unique constraint "products_sku_key"`)
		}
	}
	product.ID = m.st.id()
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	m.st.products[product.ID] = *product
	return nil
}

func (m *memStore) UpdateProductPrice(_ context.Context, id int64, price decimal.Decimal) error {
	p, ok := m.st.products[id]
	if !ok {
		return fmt.Errorf("product not found: %d: %w", id, models.ErrNotFound)
	}
	p.Price = price
	m.st.products[id] = p
	return nil
}

func (m *memStore) UpdateProductStock(_ context.Context, id int64, stock int, status models.ProductStatus) error {
	if err := m.faults.stockUpdate[id]; err != nil {
		return err
	}
	p, ok := m.st.products[id]
	if !ok {
		return fmt.Errorf("product not found: %d: %w", id, models.ErrNotFound)
	}
	p.Stock = stock
	p.Status = status
	m.st.products[id] = p
	return nil
}

func (m *memStore) UpdateSyncedProduct(_ context.Context, product *models.Product) error {
	p, ok := m.st.products[product.ID]
	if !ok {
		return fmt.Errorf("product not found: %d: %w", product.ID, models.ErrNotFound)
	}
	product.CreatedAt = p.CreatedAt
	product.Channel = p.Channel
	product.UpdatedAt = time.Now()
	m.st.products[product.ID] = *product
	return nil
}

func (m *memStore) GetSuggestionByID(_ context.Context, id int64) (*models.Suggestion, error) {
	s, ok := m.st.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion not found: %d: %w", id, models.ErrNotFound)
	}
	return &s, nil
}

func (m *memStore) GetSuggestionForUpdate(ctx context.Context, id int64) (*models.Suggestion, error) {
	return m.GetSuggestionByID(ctx, id)
}

func (m *memStore) ListSuggestionsByProduct(_ context.Context, productID int64) ([]models.Suggestion, error) {
	out := []models.Suggestion{}
	for _, s := range m.st.suggestions {
		if s.ProductID == productID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == models.SuggestionStatusNew
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memStore) ListAppliedSuggestions(ctx context.Context, productID int64) ([]models.Suggestion, error) {
	return m.ListAppliedSuggestionsForProducts(ctx, []int64{productID})
}

func (m *memStore) ListAppliedSuggestionsForProducts(_ context.Context, productIDs []int64) ([]models.Suggestion, error) {
	wanted := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	out := []models.Suggestion{}
	for _, s := range m.st.suggestions {
		if wanted[s.ProductID] && s.Status == models.SuggestionStatusApplied {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) CreateSuggestion(_ context.Context, suggestion *models.Suggestion) error {
	suggestion.ID = m.st.id()
	suggestion.CreatedAt = time.Now()
	m.st.suggestions[suggestion.ID] = *suggestion
	return nil
}

func (m *memStore) MarkSuggestionApplied(_ context.Context, id int64, at time.Time) error {
	s, ok := m.st.suggestions[id]
	if !ok {
		return fmt.Errorf("suggestion not found: %d: %w", id, models.ErrNotFound)
	}
	if s.Status != models.SuggestionStatusNew {
		return fmt.Errorf("suggestion %d: %w", id, models.ErrAlreadyApplied)
	}
	s.Status = models.SuggestionStatusApplied
	s.AppliedAt = &at
	m.st.suggestions[id] = s
	return nil
}

func (m *memStore) CreateEvent(_ context.Context, event *models.Event) error {
	event.ID = m.st.id()
	event.CreatedAt = time.Now()
	m.st.events = append(m.st.events, *event)
	return nil
}

func (m *memStore) ListRecentEvents(_ context.Context, limit int) ([]models.EventView, error) {
	m.lastEventLimit = limit
	out := []models.EventView{}
	for i := len(m.st.events) - 1; i >= 0 && len(out) < limit; i-- {
		view := models.EventView{Event: m.st.events[i]}
		if view.ProductID != nil {
			if p, ok := m.st.products[*view.ProductID]; ok {
				name, sku := p.Name, p.SKU
				view.ProductName, view.ProductSKU = &name, &sku
			}
		}
		out = append(out, view)
	}
	return out, nil
}

func (m *memStore) ListEventsByProduct(_ context.Context, productID int64, limit int) ([]models.Event, error) {
	out := []models.Event{}
	for i := len(m.st.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.st.events[i]
		if e.ProductID != nil && *e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) GetConnectionByID(_ context.Context, id int64) (*models.StoreConnection, error) {
	c, ok := m.st.conns[id]
	if !ok {
		return nil, fmt.Errorf("store connection not found: %d: %w", id, models.ErrNotFound)
	}
	return &c, nil
}

func (m *memStore) ListConnections(_ context.Context) ([]models.StoreConnection, error) {
	out := []models.StoreConnection{}
	for _, c := range m.st.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) CreateConnection(_ context.Context, conn *models.StoreConnection) error {
	conn.ID = m.st.id()
	conn.CreatedAt = time.Now()
	m.st.conns[conn.ID] = *conn
	return nil
}

func (m *memStore) SetConnectionActive(_ context.Context, id int64, active bool) error {
	c, ok := m.st.conns[id]
	if !ok {
		return fmt.Errorf("store connection not found: %d: %w", id, models.ErrNotFound)
	}
	c.IsActive = active
	m.st.conns[id] = c
	return nil
}

func (m *memStore) UpdateConnectionLastSync(_ context.Context, id int64, at time.Time) error {
	c, ok := m.st.conns[id]
	if !ok {
		return fmt.Errorf("store connection not found: %d: %w", id, models.ErrNotFound)
	}
	c.LastSync = &at
	m.st.conns[id] = c
	return nil
}

func (m *memStore) DeleteConnection(_ context.Context, id int64) (int64, error) {
	if _, ok := m.st.conns[id]; !ok {
		return 0, fmt.Errorf("store connection not found: %d: %w", id, models.ErrNotFound)
	}

	owned := make(map[int64]bool)
	for pid, p := range m.st.products {
		if p.ConnectionID != nil && *p.ConnectionID == id {
			owned[pid] = true
		}
	}

	events := m.st.events[:0:0]
	for _, e := range m.st.events {
		if e.ProductID != nil && owned[*e.ProductID] {
			continue
		}
		events = append(events, e)
	}
	m.st.events = events

	for sid, s := range m.st.suggestions {
		if owned[s.ProductID] {
			delete(m.st.suggestions, sid)
		}
	}
	for pid := range owned {
		delete(m.st.products, pid)
	}

	logs := m.st.syncLogs[:0:0]
	for _, l := range m.st.syncLogs {
		if l.ConnectionID != id {
			logs = append(logs, l)
		}
	}
	m.st.syncLogs = logs

	delete(m.st.conns, id)
	return int64(len(owned)), nil
}

func (m *memStore) CreateSyncLog(_ context.Context, log *models.SyncLog) error {
	log.ID = m.st.id()
	log.CreatedAt = time.Now()
	m.st.syncLogs = append(m.st.syncLogs, *log)
	return nil
}

func (m *memStore) ListSyncLogs(_ context.Context, connectionID int64, limit int) ([]models.SyncLog, error) {
	m.lastSyncLogLimit = limit
	out := []models.SyncLog{}
	for i := len(m.st.syncLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.st.syncLogs[i].ConnectionID == connectionID {
			out = append(out, m.st.syncLogs[i])
		}
	}
	return out, nil
}

// seeding helpers

func (m *memStore) addConnection(platformName models.Channel, active bool) int64 {
	conn := &models.StoreConnection{Name: "Test " + string(platformName), Platform: platformName, IsActive: active}
	_ = m.CreateConnection(context.Background(), conn)
	return conn.ID
}

type productOpt func(*models.Product)

func onConnection(connID int64, externalID string) productOpt {
	return func(p *models.Product) {
		p.ConnectionID = &connID
		p.ExternalID = &externalID
		p.Channel = models.ChannelMock
	}
}

func ofType(productType string) productOpt {
	return func(p *models.Product) { p.ProductType = &productType }
}

func (m *memStore) addProduct(sku, name, price string, stock int, opts ...productOpt) int64 {
	p := &models.Product{
		SKU:     sku,
		Name:    name,
		Price:   decimal.RequireFromString(price),
		Stock:   stock,
		Status:  models.StatusForStock(stock),
		Channel: models.ChannelMock,
	}
	for _, opt := range opts {
		opt(p)
	}
	_ = m.CreateProduct(context.Background(), p)
	return p.ID
}

func (m *memStore) addSuggestion(productID int64, t models.SuggestionType, description string, related ...int64) int64 {
	s := &models.Suggestion{
		ProductID:         productID,
		Type:              t,
		Description:       description,
		Status:            models.SuggestionStatusNew,
		RelatedProductIDs: append([]int64{}, related...),
	}
	_ = m.CreateSuggestion(context.Background(), s)
	return s.ID
}

func (m *memStore) product(id int64) models.Product {
	return m.st.products[id]
}

func (m *memStore) suggestion(id int64) models.Suggestion {
	return m.st.suggestions[id]
}

func (m *memStore) eventsOfType(eventType string) []models.Event {
	var out []models.Event
	for _, e := range m.st.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) productCount() int {
	return len(m.st.products)
}

// fakeAdapters hands out one mock platform per connection
type fakeAdapters struct {
	mocks map[int64]*platform.Mock
	err   error
}

func newFakeAdapters() *fakeAdapters {
	return &fakeAdapters{mocks: make(map[int64]*platform.Mock)}
}

func (f *fakeAdapters) ForConnection(_ context.Context, conn *models.StoreConnection) (platform.Adapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.mocks[conn.ID]
	if !ok {
		m = platform.NewMock()
		f.mocks[conn.ID] = m
	}
	return m, nil
}

func (f *fakeAdapters) mock(connID int64) *platform.Mock {
	if _, ok := f.mocks[connID]; !ok {
		f.mocks[connID] = platform.NewMock()
	}
	return f.mocks[connID]
}

// fakeLocker simulates the redis lock
type fakeLocker struct {
	held     map[string]bool
	err      error
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held[key] {
		return "", false, nil
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, _ string) error {
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	applied   []*models.SuggestionAppliedEvent
	synced    []*models.CatalogSyncedEvent
	requested []*models.SyncRequestedEvent
	err       error
}

func (p *fakePublisher) PublishSuggestionApplied(_ context.Context, event *models.SuggestionAppliedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.applied = append(p.applied, event)
	return nil
}

func (p *fakePublisher) PublishCatalogSynced(_ context.Context, event *models.CatalogSyncedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.synced = append(p.synced, event)
	return nil
}

func (p *fakePublisher) PublishSyncRequested(_ context.Context, event *models.SyncRequestedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.requested = append(p.requested, event)
	return nil
}
