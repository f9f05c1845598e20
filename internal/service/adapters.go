package service

import (
	"context"
	"fmt"
	"sync"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/secrets"
)

// AdapterProvider resolves the platform adapter for a store connection
type AdapterProvider interface {
	ForConnection(ctx context.Context, conn *models.StoreConnection) (platform.Adapter, error)
}

// ConnectionAdapters decrypts connection credentials and builds adapters.
// Mock stores keep their state per connection for the lifetime of the process.
type ConnectionAdapters struct {
	cipher *secrets.Cipher
	opts   platform.Options

	mu    sync.Mutex
	mocks map[int64]*platform.Mock
}

// NewConnectionAdapters creates a new adapter provider
func NewConnectionAdapters(cipher *secrets.Cipher, opts platform.Options) *ConnectionAdapters {
	return &ConnectionAdapters{
		cipher: cipher,
		opts:   opts,
		mocks:  make(map[int64]*platform.Mock),
	}
}

// ForConnection builds the adapter for conn
func (a *ConnectionAdapters) ForConnection(_ context.Context, conn *models.StoreConnection) (platform.Adapter, error) {
	if conn.Platform == models.ChannelMock {
		a.mu.Lock()
		defer a.mu.Unlock()
		m, ok := a.mocks[conn.ID]
		if !ok {
			m = platform.NewMock()
			a.mocks[conn.ID] = m
		}
		return m, nil
	}

	creds, err := a.credentials(conn)
	if err != nil {
		return nil, err
	}
	return platform.New(conn.Platform, conn.StoreURL, creds, a.opts)
}

func (a *ConnectionAdapters) credentials(conn *models.StoreConnection) (platform.Credentials, error) {
	key, err := a.cipher.Decrypt(conn.APIKeyEncrypted)
	if err != nil {
		return platform.Credentials{}, fmt.Errorf("failed to decrypt api key: %w", err)
	}

	var secret string
	if conn.APISecretEncrypted != nil {
		secret, err = a.cipher.Decrypt(*conn.APISecretEncrypted)
		if err != nil {
			return platform.Credentials{}, fmt.Errorf("failed to decrypt api secret: %w", err)
		}
	}

	return platform.Credentials{APIKey: key, APISecret: secret}, nil
}
