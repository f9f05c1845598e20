package service

import (
	"context"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
	"catalog-service/internal/util"
)

const (
	DefaultEventLimit = 20
	MaxEventLimit     = 100
)

// clampLimit maps a non-positive limit to the default and caps the rest at the maximum
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultEventLimit
	case limit > MaxEventLimit:
		return MaxEventLimit
	}
	return limit
}

// EventService reads the event history
type EventService struct {
	store store.Catalog
}

// NewEventService creates a new event service
func NewEventService(store store.Catalog) *EventService {
	return &EventService{store: store}
}

// Recent returns the newest events with their product name and SKU.
// A non-positive limit means the default; anything above the maximum is capped.
func (s *EventService) Recent(ctx context.Context, limit int) ([]models.EventView, error) {
	ctx, span := util.StartSpan(ctx, "EventService.Recent")
	defer span.End()

	events, err := s.store.ListRecentEvents(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []models.EventView{}
	}
	return events, nil
}
