package models

import (
	"time"

	"github.com/google/uuid"
)

// Broker event types
const (
	BrokerEventSuggestionApplied = "SUGGESTION_APPLIED"
	BrokerEventCatalogSynced     = "CATALOG_SYNCED"
	BrokerEventSyncRequested     = "SYNC_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and UTC time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// SuggestionAppliedEvent published after a suggestion transaction commits
type SuggestionAppliedEvent struct {
	BaseEvent
	SuggestionID       int64          `json:"suggestion_id"`
	ProductID          int64          `json:"product_id"`
	SuggestionType     SuggestionType `json:"suggestion_type"`
	Actions            []string       `json:"actions"`
	CompositeProductID *int64         `json:"composite_product_id,omitempty"`
}

// CatalogSyncedEvent published after a successful synchronization pass
type CatalogSyncedEvent struct {
	BaseEvent
	ConnectionID   int64 `json:"connection_id"`
	ProductsSynced int   `json:"products_synced"`
	Failed         int   `json:"failed"`
	SyncLogID      int64 `json:"sync_log_id"`
}

// SyncRequestedEvent asks the sync worker to synchronize a connection
type SyncRequestedEvent struct {
	BaseEvent
	ConnectionID int64 `json:"connection_id"`
}
