package worker

import (
	"context"
	"errors"
	"time"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/service"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// claimTTL bounds how long a handled event id is remembered
const claimTTL = 24 * time.Hour

// Syncer runs one synchronization of a connection
type Syncer interface {
	Sync(ctx context.Context, connectionID int64) (*service.SyncResult, error)
}

// Claimer deduplicates redelivered events
type Claimer interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SyncWorker runs background syncs requested through the broker
type SyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	syncer       Syncer
	claimer      Claimer
	logger       *zap.Logger
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(consumer *broker.Consumer, syncer Syncer, claimer Claimer) *SyncWorker {
	w := &SyncWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		syncer:       syncer,
		claimer:      claimer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnSyncRequested(w.HandleSyncRequested)
	return w
}

// Start starts the worker
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker...")
	return w.consumer.StartConsuming(ctx, w.handle)
}

// Stop stops the worker
func (w *SyncWorker) Stop() error {
	w.logger.Info("Stopping sync worker...")
	return w.consumer.Close()
}

func (w *SyncWorker) handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// HandleSyncRequested runs the requested sync once per event id.
// Expected outcomes (busy, inactive, gone) are logged and swallowed so the message is not retried.
func (w *SyncWorker) HandleSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	ctx, span := util.StartSpan(ctx, "SyncWorker.HandleSyncRequested")
	defer span.End()

	if w.claimer != nil && event.EventID != "" {
		first, err := w.claimer.ClaimOnce(ctx, "sync-request:"+event.EventID, claimTTL)
		if err != nil {
			w.logger.Warn("Could not check event idempotency", zap.String("event_id", event.EventID), zap.Error(err))
		} else if !first {
			w.logger.Info("Skipping duplicate sync request", zap.String("event_id", event.EventID))
			return nil
		}
	}

	w.logger.Info("Processing sync request",
		zap.String("event_id", event.EventID),
		zap.Int64("connection_id", event.ConnectionID))

	_, err := w.syncer.Sync(ctx, event.ConnectionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrBusy),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrValidation):
		w.logger.Warn("Sync request dropped",
			zap.Int64("connection_id", event.ConnectionID),
			zap.Error(err))
		return nil
	default:
		return err
	}
}
