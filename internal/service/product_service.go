package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const productHistoryLimit = 20

// ProductService serves the catalog read models and manual product edits
type ProductService struct {
	store    store.Repository
	adapters AdapterProvider
	logger   *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store store.Repository, adapters AdapterProvider) *ProductService {
	return &ProductService{
		store:    store,
		adapters: adapters,
		logger:   util.GetLogger(),
	}
}

// AppliedPromotion is a short view of an applied suggestion
type AppliedPromotion struct {
	SuggestionID int64                 `json:"suggestion_id"`
	Type         models.SuggestionType `json:"type"`
	Description  string                `json:"description"`
}

// ProductListItem is a product with the suggestions already applied to it
type ProductListItem struct {
	models.Product
	AppliedPromotions []AppliedPromotion `json:"applied_promotions"`
}

// ProductDetails is a product with its applied suggestions and recent history
type ProductDetails struct {
	Product            *models.Product     `json:"product"`
	AppliedSuggestions []models.Suggestion `json:"applied_suggestions"`
	Events             []models.Event      `json:"events"`
}

// List returns products matching filter with their applied promotions
func (s *ProductService) List(ctx context.Context, filter store.ProductFilter) ([]ProductListItem, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.List")
	defer span.End()

	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	applied, err := s.store.ListAppliedSuggestionsForProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied suggestions: %w", err)
	}

	byProduct := make(map[int64][]AppliedPromotion)
	for _, sg := range applied {
		byProduct[sg.ProductID] = append(byProduct[sg.ProductID], AppliedPromotion{
			SuggestionID: sg.ID,
			Type:         sg.Type,
			Description:  sg.Description,
		})
	}

	items := make([]ProductListItem, 0, len(products))
	for _, p := range products {
		promos := byProduct[p.ID]
		if promos == nil {
			promos = []AppliedPromotion{}
		}
		items = append(items, ProductListItem{Product: p, AppliedPromotions: promos})
	}
	return items, nil
}

// Details returns one product with its applied suggestions and last events
func (s *ProductService) Details(ctx context.Context, id int64) (*ProductDetails, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Details")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	applied, err := s.store.ListAppliedSuggestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied suggestions: %w", err)
	}
	events, err := s.store.ListEventsByProduct(ctx, id, productHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	if applied == nil {
		applied = []models.Suggestion{}
	}
	if events == nil {
		events = []models.Event{}
	}
	return &ProductDetails{Product: product, AppliedSuggestions: applied, Events: events}, nil
}

// CreateProductRequest describes a product to create on a connected store
type CreateProductRequest struct {
	ConnectionID int64           `json:"connection_id" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	SKU          string          `json:"sku"`
	Description  string          `json:"description"`
	ProductType  string          `json:"product_type"`
}

// CreateInStore creates the product remotely first and mirrors it locally only on success
func (s *ProductService) CreateInStore(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateInStore")
	defer span.End()

	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, validationError("name is required")
	case req.Price.IsNegative():
		return nil, validationError("price cannot be negative")
	case req.Stock < 0:
		return nil, validationError("stock cannot be negative")
	}

	conn, err := s.store.GetConnectionByID(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, validationError("connection %d is not active", conn.ID)
	}

	adapter, err := s.adapters.ForConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("connection %d: %v: %w", conn.ID, err, models.ErrIntegration)
	}

	remote := adapter.CreateProduct(ctx, platform.ProductSpec{
		Name:        strings.TrimSpace(req.Name),
		Price:       req.Price.Round(2),
		Stock:       req.Stock,
		SKU:         req.SKU,
		Description: req.Description,
		ProductType: req.ProductType,
	})
	if remote == nil {
		return nil, fmt.Errorf("%s store '%s' rejected the product: %w", conn.Platform, conn.Name, models.ErrIntegration)
	}

	product := remoteToProduct(conn, *remote)
	if product.SKU == "" {
		product.SKU = req.SKU
	}
	if product.Name == "" {
		product.Name = strings.TrimSpace(req.Name)
	}
	if product.ProductType == nil && req.ProductType != "" {
		productType := req.ProductType
		product.ProductType = &productType
	}

	err = s.store.InTx(ctx, func(tx store.Catalog) error {
		if err := tx.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return tx.CreateEvent(ctx, &models.Event{
			ProductID:   &product.ID,
			EventType:   models.EventTypeProductCreated,
			Description: fmt.Sprintf("Created product '%s' (%s) on %s", product.Name, product.SKU, conn.Name),
		})
	})
	if err != nil {
		// The remote product exists now; the next sync of the connection picks it up.
		s.logger.Error("Product created remotely but not stored locally",
			zap.Int64("connection_id", conn.ID),
			zap.String("external_id", remote.ExternalID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU))
	return product, nil
}

// UpdateProductRequest changes price and/or stock; nil fields are left as they are
type UpdateProductRequest struct {
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

// UpdateProductResult is the product after the edit plus what happened remotely
type UpdateProductResult struct {
	Product *models.Product `json:"product"`
	Actions []string        `json:"actions"`
}

// Update edits a product locally and pushes the change to its store best-effort
func (s *ProductService) Update(ctx context.Context, id int64, req *UpdateProductRequest) (*UpdateProductResult, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Update")
	defer span.End()

	switch {
	case req.Price == nil && req.Stock == nil:
		return nil, validationError("nothing to update")
	case req.Price != nil && req.Price.IsNegative():
		return nil, validationError("price cannot be negative")
	case req.Stock != nil && *req.Stock < 0:
		return nil, validationError("stock cannot be negative")
	}

	var result *UpdateProductResult
	err := s.store.InTx(ctx, func(tx store.Catalog) error {
		product, err := tx.GetProductByID(ctx, id)
		if err != nil {
			return err
		}

		var actions []string
		if req.Price != nil {
			price := req.Price.Round(2)
			if err := tx.UpdateProductPrice(ctx, id, price); err != nil {
				return fmt.Errorf("failed to update price: %w", err)
			}
			actions = append(actions, fmt.Sprintf("Price changed from %s to %s", product.Price.StringFixed(2), price.StringFixed(2)))
			product.Price = price
		}
		if req.Stock != nil {
			status := models.StatusForStock(*req.Stock)
			if err := tx.UpdateProductStock(ctx, id, *req.Stock, status); err != nil {
				return fmt.Errorf("failed to update stock: %w", err)
			}
			actions = append(actions, fmt.Sprintf("Stock changed from %d to %d", product.Stock, *req.Stock))
			product.Stock = *req.Stock
			product.Status = status
		}

		actions = append(actions, s.pushRemote(ctx, tx, product, req)...)

		if err := tx.CreateEvent(ctx, &models.Event{
			ProductID:   &product.ID,
			EventType:   models.EventTypeProductUpdated,
			Description: fmt.Sprintf("Updated product '%s': %s", product.Name, strings.Join(actions, "; ")),
		}); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}

		result = &UpdateProductResult{Product: product, Actions: actions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.Strings("actions", result.Actions))
	return result, nil
}

// pushRemote propagates an edit to the product's store and describes the outcome
func (s *ProductService) pushRemote(ctx context.Context, tx store.Catalog, product *models.Product, req *UpdateProductRequest) []string {
	if product.ConnectionID == nil || product.ExternalID == nil || s.adapters == nil {
		return []string{"Local change only"}
	}

	conn, err := tx.GetConnectionByID(ctx, *product.ConnectionID)
	if errors.Is(err, models.ErrNotFound) {
		return []string{"Local change only"}
	}
	if err != nil {
		return []string{fmt.Sprintf("ERROR: store connection unavailable: %v", err)}
	}
	if !conn.IsActive {
		return []string{fmt.Sprintf("Store connection '%s' is inactive; local change only", conn.Name)}
	}

	adapter, err := s.adapters.ForConnection(ctx, conn)
	if err != nil {
		return []string{fmt.Sprintf("ERROR: could not connect to %s: %v", conn.Platform, err)}
	}

	var actions []string
	if req.Price != nil {
		if adapter.UpdatePrice(ctx, *product.ExternalID, product.Price) {
			actions = append(actions, fmt.Sprintf("Remote price updated on %s", conn.Platform))
		} else {
			util.RemoteDriftTotal.WithLabelValues("update_price").Inc()
			actions = append(actions, fmt.Sprintf("ERROR: remote price update failed on %s", conn.Platform))
		}
	}
	if req.Stock != nil {
		if adapter.UpdateStock(ctx, *product.ExternalID, product.Stock) {
			actions = append(actions, fmt.Sprintf("Remote stock updated on %s", conn.Platform))
		} else {
			util.RemoteDriftTotal.WithLabelValues("update_stock").Inc()
			actions = append(actions, fmt.Sprintf("ERROR: remote stock update failed on %s", conn.Platform))
		}
	}
	return actions
}
