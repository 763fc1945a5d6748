package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// ConfigStore keeps one OracleConfig per asset. Returned values are copies.
type ConfigStore interface {
	PutConfig(ctx context.Context, cfg *types.OracleConfig) error
	GetConfig(ctx context.Context, asset string) (*types.OracleConfig, error)
	ListConfigs(ctx context.Context) ([]*types.OracleConfig, error)
}

// ObservationStore keeps the latest accepted observation per (asset, source).
type ObservationStore interface {
	PutObservation(ctx context.Context, obs *types.PriceObservation) error
	GetObservation(ctx context.Context, asset string, source types.SourceKind) (*types.PriceObservation, error)
	ListObservations(ctx context.Context, asset string) ([]*types.PriceObservation, error)
}

// AggregateStore keeps the latest aggregated price per asset.
// GetAggregate must not block on concurrent writers.
type AggregateStore interface {
	PutAggregate(ctx context.Context, agg *types.AggregatedPrice) error
	GetAggregate(ctx context.Context, asset string) (*types.AggregatedPrice, error)
}

// Recorder durably mirrors committed state. Failures never roll back a round.
type Recorder interface {
	RecordConfig(ctx context.Context, cfg *types.OracleConfig) error
	RecordObservation(ctx context.Context, obs *types.PriceObservation) error
	RecordAggregate(ctx context.Context, agg *types.AggregatedPrice) error
}
