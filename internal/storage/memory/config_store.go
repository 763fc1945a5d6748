package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/storage"
)

// ConfigStore is an in-memory implementation of storage.ConfigStore.
type ConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*types.OracleConfig
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		configs: make(map[string]*types.OracleConfig),
	}
}

func (s *ConfigStore) PutConfig(_ context.Context, cfg *types.OracleConfig) error {
	if cfg == nil || cfg.Asset == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[cfg.Asset] = cfg.Copy()
	return nil
}

func (s *ConfigStore) GetConfig(_ context.Context, asset string) (*types.OracleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[asset]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return cfg.Copy(), nil
}

// ListConfigs returns every config ordered by asset.
func (s *ConfigStore) ListConfigs(_ context.Context) ([]*types.OracleConfig, error) {
	s.mu.RLock()
	result := make([]*types.OracleConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		result = append(result, cfg.Copy())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Asset < result[j].Asset })
	return result, nil
}
