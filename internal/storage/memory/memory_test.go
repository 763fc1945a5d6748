package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/storage"
)

func TestConfigStore(t *testing.T) {
	ctx := context.Background()
	store := NewConfigStore()

	_, err := store.GetConfig(ctx, "BTC")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.PutConfig(ctx, &types.OracleConfig{}), storage.ErrInvalidInput)

	cfg := &types.OracleConfig{
		Asset:     "BTC",
		Heartbeat: time.Hour,
		Sources: map[types.SourceKind]types.SourceHandle{
			types.SourceReference: {Kind: types.SourceReference, Handle: "0xabc"},
		},
	}
	require.NoError(t, store.PutConfig(ctx, cfg))

	// mutating the caller's copy must not leak into the store
	cfg.Sources[types.SourceAttested] = types.SourceHandle{Kind: types.SourceAttested}

	got, err := store.GetConfig(ctx, "BTC")
	require.NoError(t, err)
	assert.Len(t, got.Sources, 1)

	got.Heartbeat = time.Minute
	again, err := store.GetConfig(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, again.Heartbeat)

	require.NoError(t, store.PutConfig(ctx, &types.OracleConfig{Asset: "ATOM"}))
	all, err := store.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ATOM", all[0].Asset)
	assert.Equal(t, "BTC", all[1].Asset)
}

func TestObservationStoreKeepsLatestPerSource(t *testing.T) {
	ctx := context.Background()
	store := NewObservationStore()

	put := func(source types.SourceKind, price int64) {
		require.NoError(t, store.PutObservation(ctx, &types.PriceObservation{
			Asset:  "BTC",
			Source: source,
			Price:  math.NewInt(price),
		}))
	}

	put(types.SourceAttested, 101)
	put(types.SourceReference, 100)
	put(types.SourceReference, 105)

	obs, err := store.GetObservation(ctx, "BTC", types.SourceReference)
	require.NoError(t, err)
	assert.Equal(t, "105", obs.Price.String())

	list, err := store.ListObservations(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, types.SourceReference, list[0].Source)
	assert.Equal(t, types.SourceAttested, list[1].Source)

	_, err = store.GetObservation(ctx, "ETH", types.SourceReference)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.PutObservation(ctx, &types.PriceObservation{Asset: "BTC", Source: types.SourceKind(9)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAggregateStore(t *testing.T) {
	ctx := context.Background()
	store := NewAggregateStore()

	_, err := store.GetAggregate(ctx, "BTC")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	agg := &types.AggregatedPrice{Asset: "BTC", Price: math.NewInt(101), Confidence: 99, IsValid: true}
	require.NoError(t, store.PutAggregate(ctx, agg))

	agg.Confidence = 1

	got, err := store.GetAggregate(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.Confidence)
	assert.Equal(t, "101", got.Price.String())
}

func TestAggregateStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewAggregateStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)

		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.PutAggregate(ctx, &types.AggregatedPrice{
					Asset:      "BTC",
					Price:      math.NewInt(int64(100 + j)),
					Confidence: int64(i),
					IsValid:    true,
				})
			}
		}(i)

		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if agg, err := store.GetAggregate(ctx, "BTC"); err == nil {
					assert.True(t, agg.IsValid)
				}
			}
		}()
	}

	wg.Wait()
}
