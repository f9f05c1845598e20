package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/secrets"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdapterFactory builds an adapter from plaintext credentials
type AdapterFactory func(channel models.Channel, storeURL string, creds platform.Credentials) (platform.Adapter, error)

// ConnectionService manages store connections
type ConnectionService struct {
	store    store.Repository
	cipher   *secrets.Cipher
	adapters AdapterProvider
	factory  AdapterFactory
	logger   *zap.Logger
}

// NewConnectionService creates a new connection service
func NewConnectionService(
	store store.Repository,
	cipher *secrets.Cipher,
	adapters AdapterProvider,
	factory AdapterFactory,
) *ConnectionService {
	return &ConnectionService{
		store:    store,
		cipher:   cipher,
		adapters: adapters,
		factory:  factory,
		logger:   util.GetLogger(),
	}
}

// CreateConnectionRequest carries plaintext credentials; they are encrypted before storage
type CreateConnectionRequest struct {
	Name      string `json:"name" binding:"required"`
	Platform  string `json:"platform" binding:"required"`
	StoreURL  string `json:"store_url"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret,omitempty"`
}

// List returns all connections, newest first
func (s *ConnectionService) List(ctx context.Context) ([]models.StoreConnection, error) {
	ctx, span := util.StartSpan(ctx, "ConnectionService.List")
	defer span.End()

	return s.store.ListConnections(ctx)
}

// Create tests the credentials against the platform and stores the connection
func (s *ConnectionService) Create(ctx context.Context, req *CreateConnectionRequest) (*models.StoreConnection, error) {
	ctx, span := util.StartSpan(ctx, "ConnectionService.Create")
	defer span.End()

	channel := models.Channel(strings.ToLower(strings.TrimSpace(req.Platform)))
	if !channel.IsValid() {
		return nil, validationError("unsupported platform %q", req.Platform)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, validationError("name is required")
	}
	if channel != models.ChannelMock {
		if strings.TrimSpace(req.StoreURL) == "" || req.APIKey == "" {
			return nil, validationError("store_url and api_key are required")
		}
		if channel == models.ChannelWooCommerce && req.APISecret == "" {
			return nil, validationError("woocommerce requires both api_key and api_secret")
		}
	}

	adapter, err := s.factory(channel, req.StoreURL, platform.Credentials{APIKey: req.APIKey, APISecret: req.APISecret})
	if err != nil {
		return nil, validationError("%v", err)
	}
	if !adapter.TestConnection(ctx) {
		return nil, fmt.Errorf("connection test failed, check the credentials: %w", models.ErrIntegration)
	}

	keyEncrypted, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api key: %w", err)
	}
	var secretEncrypted *string
	if req.APISecret != "" {
		sealed, err := s.cipher.Encrypt(req.APISecret)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api secret: %w", err)
		}
		secretEncrypted = &sealed
	}

	conn := &models.StoreConnection{
		Name:               strings.TrimSpace(req.Name),
		Platform:           channel,
		StoreURL:           strings.TrimSpace(req.StoreURL),
		APIKeyEncrypted:    keyEncrypted,
		APISecretEncrypted: secretEncrypted,
		IsActive:           true,
	}
	err = s.store.InTx(ctx, func(tx store.Catalog) error {
		if err := tx.CreateConnection(ctx, conn); err != nil {
			return fmt.Errorf("failed to create connection: %w", err)
		}
		return tx.CreateEvent(ctx, &models.Event{
			EventType:   models.EventTypeConnectionCreated,
			Description: fmt.Sprintf("Added store connection: %s (%s)", conn.Name, conn.Platform),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Connection created",
		zap.Int64("connection_id", conn.ID),
		zap.String("platform", string(conn.Platform)))
	return conn, nil
}

// Toggle flips the active flag of a connection and returns the new value
func (s *ConnectionService) Toggle(ctx context.Context, id int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "ConnectionService.Toggle")
	defer span.End()

	var active bool
	err := s.store.InTx(ctx, func(tx store.Catalog) error {
		conn, err := tx.GetConnectionByID(ctx, id)
		if err != nil {
			return err
		}
		active = !conn.IsActive
		if err := tx.SetConnectionActive(ctx, id, active); err != nil {
			return fmt.Errorf("failed to toggle connection: %w", err)
		}

		verb := "Deactivated"
		if active {
			verb = "Activated"
		}
		return tx.CreateEvent(ctx, &models.Event{
			EventType:   models.EventTypeConnectionToggled,
			Description: fmt.Sprintf("%s store connection: %s", verb, conn.Name),
		})
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("Connection toggled", zap.Int64("connection_id", id), zap.Bool("active", active))
	return active, nil
}

// Delete removes a connection and everything synced from it
func (s *ConnectionService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "ConnectionService.Delete")
	defer span.End()

	var removed int64
	err := s.store.InTx(ctx, func(tx store.Catalog) error {
		conn, err := tx.GetConnectionByID(ctx, id)
		if err != nil {
			return err
		}
		if removed, err = tx.DeleteConnection(ctx, id); err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		return tx.CreateEvent(ctx, &models.Event{
			EventType:   models.EventTypeConnectionDeleted,
			Description: fmt.Sprintf("Removed store connection: %s (%d products)", conn.Name, removed),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Connection deleted", zap.Int64("connection_id", id), zap.Int64("products_removed", removed))
	return nil
}

// CreateCouponRequest describes a discount code to create on a connection's store
type CreateCouponRequest struct {
	Code         string          `json:"code" binding:"required"`
	DiscountType string          `json:"discount_type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
}

// CreateCoupon creates a discount code on the platform of a connection.
// A platform failure is reported in the result, not as an error.
func (s *ConnectionService) CreateCoupon(ctx context.Context, id int64, req *CreateCouponRequest) (*platform.CouponResult, error) {
	ctx, span := util.StartSpan(ctx, "ConnectionService.CreateCoupon")
	defer span.End()

	discountType := req.DiscountType
	if discountType == "" {
		discountType = platform.DiscountPercentage
	}
	switch {
	case strings.TrimSpace(req.Code) == "":
		return nil, validationError("code is required")
	case discountType != platform.DiscountPercentage && discountType != platform.DiscountFixedAmount:
		return nil, validationError("unknown discount type %q", req.DiscountType)
	case !req.Amount.IsPositive():
		return nil, validationError("amount must be positive")
	case discountType == platform.DiscountPercentage && req.Amount.GreaterThan(decimal.NewFromInt(100)):
		return nil, validationError("percentage discount cannot exceed 100")
	}

	conn, err := s.store.GetConnectionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, validationError("connection %d is not active", id)
	}

	adapter, err := s.adapters.ForConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("connection %d: %v: %w", id, err, models.ErrIntegration)
	}

	result := adapter.CreateCoupon(ctx, platform.CouponSpec{
		Code:         strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType: discountType,
		Amount:       req.Amount,
		Description:  req.Description,
	})
	if !result.Success {
		s.logger.Warn("Coupon not created",
			zap.Int64("connection_id", id),
			zap.String("error", result.Error))
		return &result, nil
	}

	event := &models.Event{
		EventType:   models.EventTypeCouponCreated,
		Description: fmt.Sprintf("Created coupon %s (%s %s) on %s", result.Code, req.Amount.StringFixed(2), discountType, conn.Name),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		s.logger.Error("Failed to record coupon event", zap.Error(err))
	}
	return &result, nil
}

// SyncLogs returns the latest sync outcomes of a connection
func (s *ConnectionService) SyncLogs(ctx context.Context, id int64, limit int) ([]models.SyncLog, error) {
	ctx, span := util.StartSpan(ctx, "ConnectionService.SyncLogs")
	defer span.End()

	if _, err := s.store.GetConnectionByID(ctx, id); err != nil {
		return nil, err
	}
	logs, err := s.store.ListSyncLogs(ctx, id, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	if logs == nil {
		logs = []models.SyncLog{}
	}
	return logs, nil
}
