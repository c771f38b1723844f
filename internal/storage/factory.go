package storage

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Factory creates mirror providers and remembers the ones that failed to
// initialise so they are not retried on every request.
type Factory struct {
	providers   map[string]Provider
	unavailable map[string]string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewStorageFactory creates a factory. A nil logger discards output.
func NewStorageFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		providers:   make(map[string]Provider),
		unavailable: make(map[string]string),
		logger:      logger,
	}
}

// RegisterProvider registers a custom provider under name.
func (f *Factory) RegisterProvider(name string, provider Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = provider
}

// MarkProviderUnavailable records why a provider type cannot be used.
func (f *Factory) MarkProviderUnavailable(providerType, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable[providerType] = reason
	f.logger.Warn("storage provider unavailable", zap.String("provider", providerType), zap.String("reason", reason))
}

// IsProviderAvailable reports whether providerType has not failed before.
func (f *Factory) IsProviderAvailable(providerType string) (bool, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reason, unavailable := f.unavailable[providerType]
	return !unavailable, reason
}

// CreateProvider builds and initialises a provider of the given type.
func (f *Factory) CreateProvider(providerType string, config map[string]string) (Provider, error) {
	if ok, reason := f.IsProviderAvailable(providerType); !ok {
		return nil, fmt.Errorf("%s provider is currently unavailable: %s", providerType, reason)
	}

	var provider Provider
	switch providerType {
	case "local":
		provider = NewLocalStorage()
	case "s3", "amazon", "aws":
		provider = NewAmazonS3Storage()
	case "gcs", "google":
		provider = NewGoogleCloudStorage()
	default:
		f.mu.RLock()
		p, ok := f.providers[providerType]
		f.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unsupported storage provider type: %s", providerType)
		}
		provider = p
	}

	if err := provider.Initialize(config); err != nil {
		f.MarkProviderUnavailable(providerType, err.Error())
		return nil, fmt.Errorf("failed to initialize %s storage provider: %w", providerType, err)
	}
	return provider, nil
}
