package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/directive"
	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CompositeVendor tags products synthesized from suggestions
const CompositeVendor = "AI Generated"

var (
	promoSecondaryFactor = decimal.RequireFromString("0.5")
	bundleFactor         = decimal.RequireFromString("0.9")
)

// SuggestionService applies suggestions to the catalog
type SuggestionService struct {
	store     store.Repository
	adapters  AdapterProvider
	locker    Locker
	publisher EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewSuggestionService creates a new suggestion service
func NewSuggestionService(
	store store.Repository,
	adapters AdapterProvider,
	locker Locker,
	publisher EventPublisher,
	lockTTL time.Duration,
) *SuggestionService {
	return &SuggestionService{
		store:     store,
		adapters:  adapters,
		locker:    locker,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ApplyResult describes what applying a suggestion did, locally and remotely
type ApplyResult struct {
	SuggestionID       int64                 `json:"suggestion_id"`
	ProductID          int64                 `json:"product_id"`
	Type               models.SuggestionType `json:"type"`
	AppliedAt          time.Time             `json:"applied_at"`
	EventID            int64                 `json:"event_id"`
	Actions            []string              `json:"actions"`
	NewPrice           *decimal.Decimal      `json:"new_price,omitempty"`
	CompositeProductID *int64                `json:"composite_product_id,omitempty"`
}

// applyRun carries the state of one Apply inside its transaction
type applyRun struct {
	tx         store.Catalog
	suggestion *models.Suggestion
	primary    *models.Product
	sources    []models.Product
	adapter    platform.Adapter
	result     *ApplyResult

	compositeType string
	drift         []string

	// adapters of the connections that source products live on, by connection id
	sourceAdapters map[int64]resolvedAdapter
}

// resolvedAdapter is an adapter lookup outcome. reason explains a nil adapter.
type resolvedAdapter struct {
	adapter platform.Adapter
	reason  string
}

func (r *applyRun) action(format string, args ...interface{}) {
	r.result.Actions = append(r.result.Actions, fmt.Sprintf(format, args...))
}

// Apply moves a suggestion from new to applied and carries out its effect
func (s *SuggestionService) Apply(ctx context.Context, suggestionID int64) (*ApplyResult, error) {
	ctx, span := util.StartSpan(ctx, "SuggestionService.Apply")
	defer span.End()

	var run *applyRun
	lockKey := fmt.Sprintf("suggestion:%d", suggestionID)
	err := withLock(ctx, s.locker, s.logger, lockKey, s.lockTTL, func() error {
		return s.store.InTx(ctx, func(tx store.Catalog) error {
			var err error
			run, err = s.apply(ctx, tx, suggestionID)
			return err
		})
	})
	if err != nil {
		util.SuggestionsRejectedTotal.WithLabelValues(rejectionReason(err)).Inc()
		s.logger.Warn("Suggestion not applied",
			zap.Int64("suggestion_id", suggestionID),
			zap.Error(err))
		return nil, err
	}

	result := run.result
	util.SuggestionsAppliedTotal.WithLabelValues(string(result.Type)).Inc()
	if result.CompositeProductID != nil {
		util.CompositeProductsCreatedTotal.WithLabelValues(run.compositeType).Inc()
	}
	for _, op := range run.drift {
		util.RemoteDriftTotal.WithLabelValues(op).Inc()
	}

	s.logger.Info("Suggestion applied",
		zap.Int64("suggestion_id", result.SuggestionID),
		zap.Int64("product_id", result.ProductID),
		zap.String("type", string(result.Type)),
		zap.Int("actions", len(result.Actions)))

	s.publishApplied(ctx, result)
	return result, nil
}

func (s *SuggestionService) apply(ctx context.Context, tx store.Catalog, suggestionID int64) (*applyRun, error) {
	suggestion, err := tx.GetSuggestionForUpdate(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion.Status == models.SuggestionStatusApplied {
		return nil, fmt.Errorf("suggestion %d: %w", suggestionID, models.ErrAlreadyApplied)
	}
	if !suggestion.Type.IsValid() {
		return nil, validationError("suggestion %d has unknown type %q", suggestionID, suggestion.Type)
	}

	primary, err := tx.GetProductByID(ctx, suggestion.ProductID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("product %d of suggestion %d: %w", suggestion.ProductID, suggestionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	run := &applyRun{
		tx:         tx,
		suggestion: suggestion,
		primary:    primary,
		result: &ApplyResult{
			SuggestionID: suggestion.ID,
			ProductID:    primary.ID,
			Type:         suggestion.Type,
			Actions:      []string{},
		},
	}

	if suggestion.Type == models.SuggestionTypePromo || suggestion.Type == models.SuggestionTypeBundle {
		if run.sources, err = s.loadSources(ctx, tx, suggestion, primary); err != nil {
			return nil, err
		}
	}

	appliedAt := s.now()
	if err := tx.MarkSuggestionApplied(ctx, suggestion.ID, appliedAt); err != nil {
		return nil, err
	}
	run.result.AppliedAt = appliedAt

	run.adapter = s.resolveAdapter(ctx, run)

	switch suggestion.Type {
	case models.SuggestionTypePrice:
		err = s.applyPrice(ctx, run)
	case models.SuggestionTypePromo, models.SuggestionTypeBundle:
		err = s.applyComposite(ctx, run)
	case models.SuggestionTypeRestock:
		run.action("Restock recommended for %s (current stock %d); no product changes made", primary.SKU, primary.Stock)
	}
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		ProductID:    &primary.ID,
		SuggestionID: &suggestion.ID,
		EventType:    models.EventTypeSuggestionApplied,
		Description: fmt.Sprintf("Applied %s suggestion for '%s': %s | %s",
			suggestion.Type, primary.Name, suggestion.Description, strings.Join(run.result.Actions, "; ")),
	}
	if err := tx.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	run.result.EventID = event.ID

	return run, nil
}

// loadSources returns the primary product followed by the related products a composite uses.
// Promotions take one related product, bundles up to two.
func (s *SuggestionService) loadSources(ctx context.Context, tx store.Catalog, suggestion *models.Suggestion, primary *models.Product) ([]models.Product, error) {
	want := 1
	if suggestion.Type == models.SuggestionTypeBundle {
		want = 2
	}

	related := []int64(suggestion.RelatedProductIDs)
	if len(related) == 0 {
		return nil, validationError("%s suggestion %d has no related products", suggestion.Type, suggestion.ID)
	}
	if len(related) > want {
		related = related[:want]
	}

	found, err := tx.GetProductsByIDs(ctx, related)
	if err != nil {
		return nil, fmt.Errorf("failed to load related products: %w", err)
	}
	byID := make(map[int64]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	sources := []models.Product{*primary}
	for _, id := range related {
		p, ok := byID[id]
		if !ok {
			return nil, validationError("related product %d of suggestion %d not found", id, suggestion.ID)
		}
		if id == primary.ID {
			return nil, validationError("suggestion %d lists its own product as related", suggestion.ID)
		}
		sources = append(sources, p)
	}
	return sources, nil
}

// resolveAdapter finds the adapter for the primary product's connection. Failures become an
// action note and the apply continues locally.
func (s *SuggestionService) resolveAdapter(ctx context.Context, run *applyRun) platform.Adapter {
	product := run.primary
	if product.ConnectionID == nil {
		run.action("Product %s has no store connection; changes applied locally only", product.SKU)
		return nil
	}
	r := s.connectionAdapter(ctx, run.tx, *product.ConnectionID)
	if r.adapter == nil {
		run.action("%s; changes applied locally only", r.reason)
	}
	return r.adapter
}

// sourceAdapter returns the adapter of the store a source product lives on. Lookups are cached
// per connection for the duration of one apply.
func (s *SuggestionService) sourceAdapter(ctx context.Context, run *applyRun, p models.Product) resolvedAdapter {
	if p.ConnectionID == nil {
		return resolvedAdapter{reason: "no store connection"}
	}
	connID := *p.ConnectionID
	if run.primary.ConnectionID != nil && connID == *run.primary.ConnectionID && run.adapter != nil {
		return resolvedAdapter{adapter: run.adapter}
	}
	if r, ok := run.sourceAdapters[connID]; ok {
		return r
	}
	r := s.connectionAdapter(ctx, run.tx, connID)
	if run.sourceAdapters == nil {
		run.sourceAdapters = make(map[int64]resolvedAdapter)
	}
	run.sourceAdapters[connID] = r
	return r
}

func (s *SuggestionService) connectionAdapter(ctx context.Context, tx store.Catalog, connID int64) resolvedAdapter {
	if s.adapters == nil {
		return resolvedAdapter{reason: "No platform integration configured"}
	}
	conn, err := tx.GetConnectionByID(ctx, connID)
	if err != nil {
		return resolvedAdapter{reason: fmt.Sprintf("Store connection %d unavailable (%v)", connID, err)}
	}
	if !conn.IsActive {
		return resolvedAdapter{reason: fmt.Sprintf("Store connection '%s' is inactive", conn.Name)}
	}

	adapter, err := s.adapters.ForConnection(ctx, conn)
	if err != nil {
		s.logger.Warn("Adapter resolution failed",
			zap.Int64("connection_id", conn.ID),
			zap.Error(err))
		return resolvedAdapter{reason: fmt.Sprintf("Could not connect to %s store '%s' (%v)", conn.Platform, conn.Name, err)}
	}
	return resolvedAdapter{adapter: adapter}
}

func (s *SuggestionService) applyPrice(ctx context.Context, run *applyRun) error {
	product := run.primary

	d := directive.Extract(run.suggestion.Description, product.Price)
	if !d.Found() {
		s.logger.Warn("No price directive in suggestion",
			zap.Int64("suggestion_id", run.suggestion.ID),
			zap.String("description", run.suggestion.Description))
		run.action("No price change recognised in the description; price left at %s", product.Price.StringFixed(2))
		return nil
	}

	if err := run.tx.UpdateProductPrice(ctx, product.ID, d.Price); err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}
	newPrice := d.Price
	run.result.NewPrice = &newPrice
	run.action("Price of %s changed from %s to %s (%s)", product.SKU, product.Price.StringFixed(2), d.Price.StringFixed(2), d.Kind)

	if run.adapter == nil {
		return nil
	}
	if product.ExternalID == nil || *product.ExternalID == "" {
		run.action("Remote price not updated: %s has no external id", product.SKU)
		return nil
	}
	if run.adapter.UpdatePrice(ctx, *product.ExternalID, d.Price) {
		run.action("Remote price updated on %s", run.adapter.Platform())
	} else {
		run.action("ERROR: remote price update on %s failed; local price kept", run.adapter.Platform())
		run.drift = append(run.drift, "update_price")
	}
	return nil
}

func (s *SuggestionService) applyComposite(ctx context.Context, run *applyRun) error {
	productType, skuPrefix, sourceStatus := models.ProductTypePromotion, "AI-PROMO", models.ProductStatusPromoUsed
	if run.suggestion.Type == models.SuggestionTypeBundle {
		productType, skuPrefix, sourceStatus = models.ProductTypeBundle, "AI-BUNDLE", models.ProductStatusBundled
	}
	run.compositeType = productType

	for _, p := range run.sources {
		if p.IsComposite() {
			run.action("ERROR: %s is already a %s product; nested composites are not allowed, no %s created",
				p.SKU, *p.ProductType, productType)
			return nil
		}
	}

	price := compositePrice(run.suggestion.Type, run.sources)
	stock := compositeStock(run.sources)
	sku := fmt.Sprintf("%s-%d", skuPrefix, run.suggestion.ID)
	name := compositeName(run.suggestion.Type, run.sources)

	if run.adapter == nil {
		run.action("ERROR: no platform adapter available; %s %s not created", productType, sku)
		return nil
	}

	remote := run.adapter.CreateProduct(ctx, platform.ProductSpec{
		Name:        name,
		Price:       price,
		Stock:       stock,
		SKU:         sku,
		Description: run.suggestion.Description,
		Vendor:      CompositeVendor,
		ProductType: productType,
	})
	if remote == nil {
		run.action("ERROR: creating %s %s on %s failed; no composite product created", productType, sku, run.adapter.Platform())
		return nil
	}

	externalID := remote.ExternalID
	composite := &models.Product{
		SKU:          sku,
		Name:         name,
		Price:        price,
		Stock:        stock,
		Status:       models.StatusForStock(stock),
		Channel:      run.primary.Channel,
		ConnectionID: run.primary.ConnectionID,
		ExternalID:   &externalID,
		Vendor:       CompositeVendor,
		ProductType:  &productType,
	}
	err := run.tx.WithSavepoint(ctx, "composite", func() error {
		return run.tx.CreateProduct(ctx, composite)
	})
	if err != nil {
		s.logger.Error("Failed to store composite product",
			zap.String("sku", sku),
			zap.String("external_id", externalID),
			zap.Error(err))
		run.action("ERROR: %s %s was created on %s (id %s) but could not be stored locally: %v",
			productType, sku, run.adapter.Platform(), externalID, err)
		run.drift = append(run.drift, "create_product")
		return nil
	}
	run.result.CompositeProductID = &composite.ID
	run.action("Created %s %s '%s' at %s with stock %d", productType, sku, name, price.StringFixed(2), stock)

	for _, p := range run.sources {
		s.retireSource(ctx, run, p, sourceStatus)
	}
	return nil
}

// retireSource zeroes the stock of a product consumed by a composite. The remote update goes
// through the store the product lives on. Remote and local updates are attempted independently
// and a failure on one product does not affect the others.
func (s *SuggestionService) retireSource(ctx context.Context, run *applyRun, p models.Product, status models.ProductStatus) {
	switch r := s.sourceAdapter(ctx, run, p); {
	case p.ExternalID == nil || *p.ExternalID == "":
		run.action("Remote stock of %s not updated: no external id", p.SKU)
	case r.adapter == nil:
		run.action("Remote stock of %s not updated (%s); local change only", p.SKU, r.reason)
	case r.adapter.UpdateStock(ctx, *p.ExternalID, 0):
		run.action("Remote stock of %s set to 0", p.SKU)
	default:
		run.action("ERROR: setting remote stock of %s to 0 failed", p.SKU)
		run.drift = append(run.drift, "update_stock")
	}

	err := run.tx.WithSavepoint(ctx, fmt.Sprintf("source_%d", p.ID), func() error {
		return run.tx.UpdateProductStock(ctx, p.ID, 0, status)
	})
	if err != nil {
		s.logger.Error("Failed to retire source product",
			zap.Int64("product_id", p.ID),
			zap.Error(err))
		run.action("ERROR: could not mark %s as %s: %v", p.SKU, status, err)
		return
	}
	run.action("%s stock set to 0, status %s", p.SKU, status)
}

func compositePrice(t models.SuggestionType, sources []models.Product) decimal.Decimal {
	if t == models.SuggestionTypePromo {
		return sources[0].Price.Add(sources[1].Price.Mul(promoSecondaryFactor)).Round(2)
	}
	sum := decimal.Zero
	for _, p := range sources {
		sum = sum.Add(p.Price)
	}
	return sum.Mul(bundleFactor).Round(2)
}

func compositeStock(sources []models.Product) int {
	stock := sources[0].Stock
	for _, p := range sources[1:] {
		if p.Stock < stock {
			stock = p.Stock
		}
	}
	if stock < 0 {
		return 0
	}
	return stock
}

func compositeName(t models.SuggestionType, sources []models.Product) string {
	names := make([]string, 0, len(sources))
	for _, p := range sources {
		names = append(names, p.Name)
	}
	if t == models.SuggestionTypePromo {
		return fmt.Sprintf("Promo: %s + %s at half price", names[0], names[1])
	}
	return "Bundle: " + strings.Join(names, " + ")
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAlreadyApplied):
		return "already_applied"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}

func (s *SuggestionService) publishApplied(ctx context.Context, result *ApplyResult) {
	if s.publisher == nil {
		return
	}
	event := &models.SuggestionAppliedEvent{
		BaseEvent: models.NewBaseEvent(models.BrokerEventSuggestionApplied),
		SuggestionID:       result.SuggestionID,
		ProductID:          result.ProductID,
		SuggestionType:     result.Type,
		Actions:            result.Actions,
		CompositeProductID: result.CompositeProductID,
	}
	if err := s.publisher.PublishSuggestionApplied(ctx, event); err != nil {
		s.logger.Error("Failed to publish SuggestionApplied event", zap.Error(err))
	}
}

// ListForProduct returns the suggestions of a product, new ones first
func (s *SuggestionService) ListForProduct(ctx context.Context, productID int64) ([]models.Suggestion, error) {
	ctx, span := util.StartSpan(ctx, "SuggestionService.ListForProduct")
	defer span.End()

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.ListSuggestionsByProduct(ctx, productID)
}

// CreateSuggestionRequest is the intake format for externally generated suggestions
type CreateSuggestionRequest struct {
	ProductID         int64                 `json:"product_id" binding:"required"`
	Type              models.SuggestionType `json:"type" binding:"required"`
	Description       string                `json:"description" binding:"required"`
	RelatedProductIDs []int64               `json:"related_product_ids"`
}

// Create stores a new suggestion in status new
func (s *SuggestionService) Create(ctx context.Context, req *CreateSuggestionRequest) (*models.Suggestion, error) {
	ctx, span := util.StartSpan(ctx, "SuggestionService.Create")
	defer span.End()

	if !req.Type.IsValid() {
		return nil, validationError("unknown suggestion type %q", req.Type)
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, validationError("description is required")
	}
	if (req.Type == models.SuggestionTypePromo || req.Type == models.SuggestionTypeBundle) && len(req.RelatedProductIDs) == 0 {
		return nil, validationError("%s suggestions need related products", req.Type)
	}

	if _, err := s.store.GetProductByID(ctx, req.ProductID); err != nil {
		return nil, err
	}
	if len(req.RelatedProductIDs) > 0 {
		found, err := s.store.GetProductsByIDs(ctx, req.RelatedProductIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load related products: %w", err)
		}
		known := make(map[int64]bool, len(found))
		for _, p := range found {
			known[p.ID] = true
		}
		for _, id := range req.RelatedProductIDs {
			if !known[id] {
				return nil, validationError("related product %d not found", id)
			}
		}
	}

	suggestion := &models.Suggestion{
		ProductID:         req.ProductID,
		Type:              req.Type,
		Description:       strings.TrimSpace(req.Description),
		Status:            models.SuggestionStatusNew,
		RelatedProductIDs: req.RelatedProductIDs,
	}
	if suggestion.RelatedProductIDs == nil {
		suggestion.RelatedProductIDs = []int64{}
	}
	if err := s.store.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("failed to create suggestion: %w", err)
	}

	s.logger.Info("Suggestion created",
		zap.Int64("suggestion_id", suggestion.ID),
		zap.Int64("product_id", suggestion.ProductID),
		zap.String("type", string(suggestion.Type)))
	return suggestion, nil
}
