package postgres

import (
	"context"
	"encoding/json"
	"time"

	"cosmossdk.io/math"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/storage"
)

var _ storage.Recorder = &Store{}

// Store mirrors the latest config, observation and aggregate records into PostgreSQL.
// Every write is an upsert; no history is kept.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

type sourceRow struct {
	Kind      uint8  `json:"kind"`
	Provider  string `json:"provider"`
	Handle    string `json:"handle"`
	TimeoutMs int64  `json:"timeoutMs"`
	Decimals  int32  `json:"decimals,omitempty"`
}

func (s *Store) RecordConfig(ctx context.Context, cfg *types.OracleConfig) error {
	if cfg == nil || cfg.Asset == "" {
		return storage.ErrInvalidInput
	}

	rows := make([]sourceRow, 0, len(cfg.Sources))
	for _, kind := range cfg.EnabledSources() {
		handle := cfg.Sources[kind]
		rows = append(rows, sourceRow{
			Kind:      uint8(kind),
			Provider:  handle.Provider.String(),
			Handle:    handle.Handle,
			TimeoutMs: handle.Timeout.Milliseconds(),
			Decimals:  handle.Decimals,
		})
	}

	sources, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "failed to marshal sources")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO oracle_configs (asset, heartbeat_ms, deviation_threshold_bps, update_interval_ms, decimals, active, sources, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, NOW())
		ON CONFLICT (asset) DO UPDATE
		SET heartbeat_ms = EXCLUDED.heartbeat_ms,
		    deviation_threshold_bps = EXCLUDED.deviation_threshold_bps,
		    update_interval_ms = EXCLUDED.update_interval_ms,
		    decimals = EXCLUDED.decimals,
		    active = EXCLUDED.active,
		    sources = EXCLUDED.sources,
		    updated_at = NOW()
	`, cfg.Asset, cfg.Heartbeat.Milliseconds(), cfg.DeviationThreshold, cfg.UpdateInterval.Milliseconds(),
		cfg.Decimals, cfg.Active, string(sources))

	return errors.Wrapf(err, "failed to upsert config for %s", cfg.Asset)
}

func (s *Store) RecordObservation(ctx context.Context, obs *types.PriceObservation) error {
	if obs == nil || obs.Asset == "" || obs.Price.IsNil() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_observations (asset, source, provider, price, observed_at, confidence, round_id, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, NOW())
		ON CONFLICT (asset, source) DO UPDATE
		SET provider = EXCLUDED.provider,
		    price = EXCLUDED.price,
		    observed_at = EXCLUDED.observed_at,
		    confidence = EXCLUDED.confidence,
		    round_id = EXCLUDED.round_id,
		    updated_at = NOW()
	`, obs.Asset, int16(obs.Source), obs.Provider.String(), obs.Price.String(), obs.Timestamp.UTC(),
		int16(obs.Confidence), obs.RoundID)

	return errors.Wrapf(err, "failed to upsert observation for %s", obs.Asset)
}

func (s *Store) RecordAggregate(ctx context.Context, agg *types.AggregatedPrice) error {
	if agg == nil || agg.Asset == "" || agg.Price.IsNil() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregated_prices (asset, round_id, price, observed_at, confidence, sources_used, spread_bps, is_valid, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (asset) DO UPDATE
		SET round_id = EXCLUDED.round_id,
		    price = EXCLUDED.price,
		    observed_at = EXCLUDED.observed_at,
		    confidence = EXCLUDED.confidence,
		    sources_used = EXCLUDED.sources_used,
		    spread_bps = EXCLUDED.spread_bps,
		    is_valid = EXCLUDED.is_valid,
		    updated_at = NOW()
	`, agg.Asset, agg.RoundID, agg.Price.String(), agg.Timestamp.UTC(), int16(agg.Confidence),
		agg.SourcesUsed, agg.SpreadBps, agg.IsValid)

	return errors.Wrapf(err, "failed to upsert aggregate for %s", agg.Asset)
}

// LoadConfigs returns every recorded config, used to warm up the in-memory store on start.
func (s *Store) LoadConfigs(ctx context.Context) ([]*types.OracleConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asset, heartbeat_ms, deviation_threshold_bps, update_interval_ms, decimals, active, sources::text
		FROM oracle_configs
		ORDER BY asset
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query configs")
	}
	defer rows.Close()

	var result []*types.OracleConfig
	for rows.Next() {
		var (
			cfg                         types.OracleConfig
			heartbeatMs, updateInterval int64
			sources                     string
		)

		if err := rows.Scan(&cfg.Asset, &heartbeatMs, &cfg.DeviationThreshold, &updateInterval,
			&cfg.Decimals, &cfg.Active, &sources); err != nil {
			return nil, errors.Wrap(err, "failed to scan config")
		}

		var sourceRows []sourceRow
		if err := json.Unmarshal([]byte(sources), &sourceRows); err != nil {
			return nil, errors.Wrapf(err, "failed to decode sources of %s", cfg.Asset)
		}

		cfg.Heartbeat = time.Duration(heartbeatMs) * time.Millisecond
		cfg.UpdateInterval = time.Duration(updateInterval) * time.Millisecond
		cfg.Sources = make(map[types.SourceKind]types.SourceHandle, len(sourceRows))
		for _, row := range sourceRows {
			kind := types.SourceKind(row.Kind)
			cfg.Sources[kind] = types.SourceHandle{
				Kind:     kind,
				Provider: types.FeedProvider(row.Provider),
				Handle:   row.Handle,
				Timeout:  time.Duration(row.TimeoutMs) * time.Millisecond,
				Decimals: row.Decimals,
			}
		}

		result = append(result, &cfg)
	}

	return result, errors.Wrap(rows.Err(), "failed to iterate configs")
}

// GetAggregate reads the recorded aggregate for one asset.
func (s *Store) GetAggregate(ctx context.Context, asset string) (*types.AggregatedPrice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT asset, round_id, price::text, observed_at, confidence, sources_used, spread_bps, is_valid
		FROM aggregated_prices
		WHERE asset = $1
	`, asset)

	agg, err := scanAggregate(row.Scan)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return agg, nil
}

// LoadAggregates returns every recorded aggregate.
func (s *Store) LoadAggregates(ctx context.Context) ([]*types.AggregatedPrice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asset, round_id, price::text, observed_at, confidence, sources_used, spread_bps, is_valid
		FROM aggregated_prices
		ORDER BY asset
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query aggregates")
	}
	defer rows.Close()

	var result []*types.AggregatedPrice
	for rows.Next() {
		agg, err := scanAggregate(rows.Scan)
		if err != nil {
			return nil, err
		}

		result = append(result, agg)
	}

	return result, errors.Wrap(rows.Err(), "failed to iterate aggregates")
}

func scanAggregate(scan func(dest ...any) error) (*types.AggregatedPrice, error) {
	var (
		agg        types.AggregatedPrice
		price      string
		confidence int16
	)

	err := scan(&agg.Asset, &agg.RoundID, &price, &agg.Timestamp, &confidence, &agg.SourcesUsed, &agg.SpreadBps, &agg.IsValid)
	if err != nil {
		return nil, err
	}

	var ok bool
	if agg.Price, ok = math.NewIntFromString(price); !ok {
		return nil, errors.Errorf("invalid stored price %q for %s", price, agg.Asset)
	}

	agg.Confidence = int64(confidence)
	return &agg, nil
}
