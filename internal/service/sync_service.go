package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

const DefaultFetchLimit = 100

// SyncService reconciles the local catalog with a remote store
type SyncService struct {
	store      store.Repository
	adapters   AdapterProvider
	locker     Locker
	publisher  EventPublisher
	fetchLimit int
	lockTTL    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(
	store store.Repository,
	adapters AdapterProvider,
	locker Locker,
	publisher EventPublisher,
	fetchLimit int,
	lockTTL time.Duration,
) *SyncService {
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &SyncService{
		store:      store,
		adapters:   adapters,
		locker:     locker,
		publisher:  publisher,
		fetchLimit: fetchLimit,
		lockTTL:    lockTTL,
		logger:     util.GetLogger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SyncResult summarizes one synchronization pass
type SyncResult struct {
	ConnectionID   int64 `json:"connection_id"`
	ProductsSynced int   `json:"products_synced"`
	Created        int   `json:"created"`
	Updated        int   `json:"updated"`
	Failed         int   `json:"failed"`
	LogID          int64 `json:"log_id"`
}

// Sync fetches the remote catalog of a connection and upserts it by SKU
func (s *SyncService) Sync(ctx context.Context, connectionID int64) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.Sync")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SyncLatency.Observe(time.Since(start).Seconds())
	}()

	var result *SyncResult
	lockKey := fmt.Sprintf("sync:connection:%d", connectionID)
	err := withLock(ctx, s.locker, s.logger, lockKey, s.lockTTL, func() error {
		var err error
		result, err = s.sync(ctx, connectionID)
		return err
	})
	if err != nil {
		util.SyncRunsTotal.WithLabelValues(models.SyncStatusFailed).Inc()
		s.logger.Error("Sync failed", zap.Int64("connection_id", connectionID), zap.Error(err))
		return nil, err
	}

	util.SyncRunsTotal.WithLabelValues(models.SyncStatusSuccess).Inc()
	util.ProductsSyncedTotal.WithLabelValues("created").Add(float64(result.Created))
	util.ProductsSyncedTotal.WithLabelValues("updated").Add(float64(result.Updated))
	util.ProductsSyncedTotal.WithLabelValues("failed").Add(float64(result.Failed))

	s.logger.Info("Sync completed",
		zap.Int64("connection_id", connectionID),
		zap.Int("synced", result.ProductsSynced),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))

	s.publishSynced(ctx, result)
	return result, nil
}

func (s *SyncService) sync(ctx context.Context, connectionID int64) (*SyncResult, error) {
	conn, err := s.store.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, validationError("connection %d is not active", connectionID)
	}

	adapter, err := s.adapters.ForConnection(ctx, conn)
	if err != nil {
		s.logFailure(ctx, connectionID, fmt.Sprintf("Could not build %s adapter: %v", conn.Platform, err))
		return nil, fmt.Errorf("connection %d: %v: %w", connectionID, err, models.ErrIntegration)
	}

	remote := adapter.FetchProducts(ctx, s.fetchLimit)
	if len(remote) == 0 {
		s.logFailure(ctx, connectionID, "No products fetched")
		return nil, fmt.Errorf("no products fetched from connection %d: %w", connectionID, models.ErrIntegration)
	}

	result := &SyncResult{ConnectionID: connectionID}
	err = s.store.InTx(ctx, func(tx store.Catalog) error {
		for i := range remote {
			item := remote[i]
			var created bool
			err := tx.WithSavepoint(ctx, fmt.Sprintf("item_%d", i), func() error {
				var err error
				created, err = s.upsert(ctx, tx, conn, item)
				return err
			})
			if err != nil {
				result.Failed++
				s.logger.Error("Error syncing product",
					zap.Int64("connection_id", connectionID),
					zap.String("sku", item.SKU),
					zap.Error(err))
				continue
			}
			result.ProductsSynced++
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}

		if err := tx.UpdateConnectionLastSync(ctx, connectionID, s.now()); err != nil {
			return fmt.Errorf("failed to stamp last sync: %w", err)
		}

		log := &models.SyncLog{
			ConnectionID:   connectionID,
			SyncType:       models.SyncTypeProducts,
			Status:         models.SyncStatusSuccess,
			ProductsSynced: result.ProductsSynced,
		}
		if result.Failed > 0 {
			msg := fmt.Sprintf("%d products skipped", result.Failed)
			log.ErrorMessage = &msg
		}
		if err := tx.CreateSyncLog(ctx, log); err != nil {
			return fmt.Errorf("failed to write sync log: %w", err)
		}
		result.LogID = log.ID

		event := &models.Event{
			EventType:   models.EventTypeProductsSynced,
			Description: syncSummary(conn.Name, result),
		}
		if err := tx.CreateEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// upsert writes one remote product keyed by SKU and reports whether a row was inserted
func (s *SyncService) upsert(ctx context.Context, tx store.Catalog, conn *models.StoreConnection, item platform.RemoteProduct) (bool, error) {
	if err := validateRemote(item); err != nil {
		return false, err
	}

	product := remoteToProduct(conn, item)

	existing, err := tx.GetProductBySKU(ctx, item.SKU)
	switch {
	case errors.Is(err, models.ErrNotFound):
		if err := tx.CreateProduct(ctx, product); err != nil {
			return false, fmt.Errorf("failed to insert product: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up sku: %w", err)
	}

	product.ID = existing.ID
	product.Channel = existing.Channel
	if err := tx.UpdateSyncedProduct(ctx, product); err != nil {
		return false, fmt.Errorf("failed to update product: %w", err)
	}
	return false, nil
}

func validateRemote(item platform.RemoteProduct) error {
	switch {
	case strings.TrimSpace(item.SKU) == "":
		return validationError("remote product %s has no sku", item.ExternalID)
	case item.Price.IsNegative():
		return validationError("remote product %s has negative price %s", item.SKU, item.Price)
	case item.Stock < 0:
		return validationError("remote product %s has negative stock %d", item.SKU, item.Stock)
	}
	return nil
}

func remoteToProduct(conn *models.StoreConnection, item platform.RemoteProduct) *models.Product {
	connID := conn.ID
	externalID := item.ExternalID

	channel := item.Channel
	if channel == "" {
		channel = conn.Platform
	}
	status := item.Status
	if status == "" {
		status = models.StatusForStock(item.Stock)
	}

	p := &models.Product{
		SKU:          item.SKU,
		Name:         item.Name,
		Price:        item.Price.Round(2),
		Stock:        item.Stock,
		Status:       status,
		Channel:      channel,
		ConnectionID: &connID,
		ExternalID:   &externalID,
		Vendor:       item.Vendor,
	}
	if item.ProductType != "" {
		productType := item.ProductType
		p.ProductType = &productType
	}
	return p
}

func syncSummary(connectionName string, r *SyncResult) string {
	msg := fmt.Sprintf("Synchronized %d products from %s (%d new, %d updated)",
		r.ProductsSynced, connectionName, r.Created, r.Updated)
	if r.Failed > 0 {
		msg += fmt.Sprintf(", %d skipped", r.Failed)
	}
	return msg
}

// logFailure records a failed pass outside of any transaction
func (s *SyncService) logFailure(ctx context.Context, connectionID int64, message string) {
	log := &models.SyncLog{
		ConnectionID: connectionID,
		SyncType:     models.SyncTypeProducts,
		Status:       models.SyncStatusFailed,
		ErrorMessage: &message,
	}
	if err := s.store.CreateSyncLog(ctx, log); err != nil {
		s.logger.Error("Failed to log sync error",
			zap.Int64("connection_id", connectionID),
			zap.Error(err))
	}
}

func (s *SyncService) publishSynced(ctx context.Context, result *SyncResult) {
	if s.publisher == nil {
		return
	}
	event := &models.CatalogSyncedEvent{
		BaseEvent: models.NewBaseEvent(models.BrokerEventCatalogSynced),
		ConnectionID:   result.ConnectionID,
		ProductsSynced: result.ProductsSynced,
		Failed:         result.Failed,
		SyncLogID:      result.LogID,
	}
	if err := s.publisher.PublishCatalogSynced(ctx, event); err != nil {
		s.logger.Error("Failed to publish CatalogSynced event", zap.Error(err))
	}
}

// RequestSync asks the sync worker to synchronize a connection in the background
func (s *SyncService) RequestSync(ctx context.Context, connectionID int64) (string, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.RequestSync")
	defer span.End()

	conn, err := s.store.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if !conn.IsActive {
		return "", validationError("connection %d is not active", connectionID)
	}
	if s.publisher == nil {
		return "", fmt.Errorf("background sync unavailable: %w", models.ErrIntegration)
	}

	event := &models.SyncRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.BrokerEventSyncRequested),
		ConnectionID: connectionID,
	}
	if err := s.publisher.PublishSyncRequested(ctx, event); err != nil {
		return "", fmt.Errorf("failed to request sync: %v: %w", err, models.ErrIntegration)
	}
	return event.EventID, nil
}
