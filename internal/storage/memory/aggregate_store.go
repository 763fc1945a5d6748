package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/storage"
)

// AggregateStore keeps one atomic slot per asset, so readers never wait on a writer.
type AggregateStore struct {
	slots sync.Map // asset -> *atomic.Pointer[types.AggregatedPrice]
}

func NewAggregateStore() *AggregateStore {
	return &AggregateStore{}
}

func (s *AggregateStore) slot(asset string) *atomic.Pointer[types.AggregatedPrice] {
	if v, ok := s.slots.Load(asset); ok {
		return v.(*atomic.Pointer[types.AggregatedPrice])
	}

	v, _ := s.slots.LoadOrStore(asset, new(atomic.Pointer[types.AggregatedPrice]))
	return v.(*atomic.Pointer[types.AggregatedPrice])
}

// PutAggregate swaps the whole record in one step.
func (s *AggregateStore) PutAggregate(_ context.Context, agg *types.AggregatedPrice) error {
	if agg == nil || agg.Asset == "" {
		return storage.ErrInvalidInput
	}

	cp := *agg
	s.slot(agg.Asset).Store(&cp)
	return nil
}

func (s *AggregateStore) GetAggregate(_ context.Context, asset string) (*types.AggregatedPrice, error) {
	v, ok := s.slots.Load(asset)
	if !ok {
		return nil, storage.ErrNotFound
	}

	agg := v.(*atomic.Pointer[types.AggregatedPrice]).Load()
	if agg == nil {
		return nil, storage.ErrNotFound
	}

	cp := *agg
	return &cp, nil
}
