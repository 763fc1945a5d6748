package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/storage"
)

type observationKey struct {
	asset  string
	source types.SourceKind
}

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu           sync.RWMutex
	observations map[observationKey]types.PriceObservation
}

func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		observations: make(map[observationKey]types.PriceObservation),
	}
}

// PutObservation replaces the previous observation for the same asset and source.
func (s *ObservationStore) PutObservation(_ context.Context, obs *types.PriceObservation) error {
	if obs == nil || obs.Asset == "" || !obs.Source.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations[observationKey{asset: obs.Asset, source: obs.Source}] = *obs
	return nil
}

func (s *ObservationStore) GetObservation(_ context.Context, asset string, source types.SourceKind) (*types.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obs, ok := s.observations[observationKey{asset: asset, source: source}]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return &obs, nil
}

// ListObservations returns the asset's observations ordered by source kind.
func (s *ObservationStore) ListObservations(_ context.Context, asset string) ([]*types.PriceObservation, error) {
	s.mu.RLock()
	var result []*types.PriceObservation
	for key, obs := range s.observations {
		if key.asset == asset {
			cp := obs
			result = append(result, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Source < result[j].Source })
	return result, nil
}
