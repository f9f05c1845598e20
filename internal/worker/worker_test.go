package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	calls []int64
	err   error
}

func (f *fakeSyncer) Sync(_ context.Context, connectionID int64) (*service.SyncResult, error) {
	f.calls = append(f.calls, connectionID)
	if f.err != nil {
		return nil, f.err
	}
	return &service.SyncResult{ConnectionID: connectionID}, nil
}

type fakeClaimer struct {
	seen map[string]bool
	err  error
}

func (f *fakeClaimer) ClaimOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func syncRequest(t *testing.T, connectionID int64) kafka.Message {
	t.Helper()
	value, err := json.Marshal(&models.SyncRequestedEvent{
		BaseEvent:    models.NewBaseEvent(models.BrokerEventSyncRequested),
		ConnectionID: connectionID,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(fmt.Sprintf("connection-%d", connectionID)), Value: value}
}

func TestWorkerRunsRequestedSync(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncWorker(nil, syncer, &fakeClaimer{seen: map[string]bool{}})

	require.NoError(t, w.handle(context.Background(), syncRequest(t, 3)))
	assert.Equal(t, []int64{3}, syncer.calls)
}

func TestWorkerSkipsRedeliveredEvent(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncWorker(nil, syncer, &fakeClaimer{seen: map[string]bool{}})

	msg := syncRequest(t, 3)
	require.NoError(t, w.handle(context.Background(), msg))
	require.NoError(t, w.handle(context.Background(), msg))
	assert.Len(t, syncer.calls, 1)
}

func TestWorkerRunsWhenClaimBackendFails(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncWorker(nil, syncer, &fakeClaimer{err: errors.New("redis down")})

	require.NoError(t, w.handle(context.Background(), syncRequest(t, 8)))
	assert.Equal(t, []int64{8}, syncer.calls)
}

func TestWorkerIgnoresOtherEvents(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncWorker(nil, syncer, nil)

	value, err := json.Marshal(&models.CatalogSyncedEvent{
		BaseEvent:    models.NewBaseEvent(models.BrokerEventCatalogSynced),
		ConnectionID: 3,
	})
	require.NoError(t, err)

	require.NoError(t, w.handle(context.Background(), kafka.Message{Value: value}))
	assert.Empty(t, syncer.calls)
}

func TestWorkerSyncErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"busy", fmt.Errorf("sync:connection:1: %w", models.ErrBusy), false},
		{"inactive", fmt.Errorf("inactive: %w", models.ErrValidation), false},
		{"deleted", fmt.Errorf("gone: %w", models.ErrNotFound), false},
		{"remote failure", fmt.Errorf("no products: %w", models.ErrIntegration), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSyncWorker(nil, &fakeSyncer{err: tt.err}, nil)
			err := w.HandleSyncRequested(context.Background(), &models.SyncRequestedEvent{ConnectionID: 1})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
