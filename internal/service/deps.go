package service

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"go.uber.org/zap"
)

// EventPublisher is the subset of the broker the services publish to
type EventPublisher interface {
	PublishSuggestionApplied(ctx context.Context, event *models.SuggestionAppliedEvent) error
	PublishCatalogSynced(ctx context.Context, event *models.CatalogSyncedEvent) error
	PublishSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error
}

// Locker guards operations that must not run twice at the same time
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// withLock runs fn while holding key. A held lock fails with ErrBusy; an unreachable lock
// backend is logged and fn runs unlocked, relying on row locks in the database.
func withLock(ctx context.Context, locker Locker, logger *zap.Logger, key string, ttl time.Duration, fn func() error) error {
	if locker == nil {
		return fn()
	}

	token, ok, err := locker.AcquireLock(ctx, key, ttl)
	if err != nil {
		logger.Warn("Lock backend unavailable, running unlocked", zap.String("lock", key), zap.Error(err))
		return fn()
	}
	if !ok {
		return fmt.Errorf("%s is already in progress: %w", key, models.ErrBusy)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := locker.ReleaseLock(ctx, key, token); err != nil {
			logger.Warn("Failed to release lock", zap.String("lock", key), zap.Error(err))
		}
	}()

	return fn()
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrValidation)
}
