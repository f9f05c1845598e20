package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSuggestionApplied publishes SuggestionApplied event
func (ep *EventPublisher) PublishSuggestionApplied(ctx context.Context, event *models.SuggestionAppliedEvent) error {
	key := fmt.Sprintf("suggestion-%d", event.SuggestionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCatalogSynced publishes CatalogSynced event
func (ep *EventPublisher) PublishCatalogSynced(ctx context.Context, event *models.CatalogSyncedEvent) error {
	key := fmt.Sprintf("connection-%d", event.ConnectionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncRequested publishes SyncRequested event
func (ep *EventPublisher) PublishSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	key := fmt.Sprintf("connection-%d", event.ConnectionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSyncRequested func(context.Context, *models.SyncRequestedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSyncRequested registers a handler for SyncRequested events
func (eh *EventHandler) OnSyncRequested(handler func(context.Context, *models.SyncRequestedEvent) error) {
	eh.onSyncRequested = handler
}

// HandleMessage routes messages to appropriate handlers.
// Events published by this service for other consumers are ignored.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.BrokerEventSyncRequested:
		if eh.onSyncRequested != nil {
			var event models.SyncRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SyncRequested event: %w", err)
			}
			return eh.onSyncRequested(ctx, &event)
		}

	case models.BrokerEventSuggestionApplied, models.BrokerEventCatalogSynced:

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
