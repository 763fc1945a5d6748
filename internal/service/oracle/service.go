package oracle

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/InjectiveLabs/price-aggregator/internal/events"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/aggregator"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/validator"
	"github.com/InjectiveLabs/price-aggregator/internal/storage"
	"github.com/InjectiveLabs/price-aggregator/internal/storage/memory"
)

type Service interface {
	types.PriceReader

	ConfigureAsset(ctx context.Context, cfg *types.OracleConfig) error
	UpdatePrices(ctx context.Context, asset string) (*RoundReport, error)
	Probe(ctx context.Context, cfg *types.OracleConfig) (*RoundReport, error)
	Assets(ctx context.Context) ([]*types.OracleConfig, error)

	Start(ctx context.Context) error
	Close()
}

type oracleSvc struct {
	adapters map[types.SourceKind]types.SourceAdapter

	configs      storage.ConfigStore
	observations storage.ObservationStore
	aggregates   storage.AggregateStore
	recorder     storage.Recorder

	validator  *validator.Validator
	aggregator *aggregator.Aggregator
	sink       events.Sink

	roundLocks sync.Map // asset -> *sync.Mutex

	schedMux  sync.Mutex
	schedCtx  context.Context
	cancelFn  context.CancelFunc
	scheduled map[string]struct{}

	now     func() time.Time
	logger  log.Logger
	svcTags metrics.Tags
}

const (
	firstRoundDelay = 1 * time.Second
	maxRoundTime    = 30 * time.Second
)

type Option func(s *oracleSvc)

// WithStores replaces the default in-memory stores.
func WithStores(configs storage.ConfigStore, observations storage.ObservationStore, aggregates storage.AggregateStore) Option {
	return func(s *oracleSvc) {
		s.configs = configs
		s.observations = observations
		s.aggregates = aggregates
	}
}

// WithRecorder mirrors committed state into durable storage.
func WithRecorder(recorder storage.Recorder) Option {
	return func(s *oracleSvc) {
		s.recorder = recorder
	}
}

func WithSink(sink events.Sink) Option {
	return func(s *oracleSvc) {
		s.sink = sink
	}
}

// WithClock overrides the time source of the service, validator and aggregator.
func WithClock(now func() time.Time) Option {
	return func(s *oracleSvc) {
		s.now = now
	}
}

func NewService(adapters []types.SourceAdapter, opts ...Option) (Service, error) {
	svc := &oracleSvc{
		adapters:     make(map[types.SourceKind]types.SourceAdapter, len(adapters)),
		configs:      memory.NewConfigStore(),
		observations: memory.NewObservationStore(),
		aggregates:   memory.NewAggregateStore(),
		sink:         events.NewLogSink(),
		scheduled:    make(map[string]struct{}),
		now:          time.Now,
		logger:       log.WithField("svc", "oracle"),
		svcTags: metrics.Tags{
			"svc": "price_oracle",
		},
	}

	for _, opt := range opts {
		opt(svc)
	}

	for _, adapter := range adapters {
		if _, ok := svc.adapters[adapter.Kind()]; ok {
			return nil, errors.Errorf("duplicate adapter for source %s", adapter.Kind())
		}

		svc.adapters[adapter.Kind()] = adapter
	}

	svc.validator = validator.New(validator.WithClock(svc.now))
	svc.aggregator = aggregator.New(aggregator.WithClock(svc.now))

	svc.logger.Infof("initialized %d source adapters", len(svc.adapters))
	return svc, nil
}

func (s *oracleSvc) ConfigureAsset(ctx context.Context, cfg *types.OracleConfig) (err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	cfg = withDefaults(cfg)
	for kind := range cfg.Sources {
		if _, ok := s.adapters[kind]; !ok {
			s.logger.WithFields(log.Fields{
				"asset":  cfg.Asset,
				"source": kind.String(),
			}).Warningln("no adapter registered for source, it will always fail")
		}
	}

	if err := s.configs.PutConfig(ctx, cfg); err != nil {
		return errors.Wrapf(err, "failed to store config for %s", cfg.Asset)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordConfig(ctx, cfg); err != nil {
			s.logger.WithError(err).WithField("asset", cfg.Asset).Warningln("failed to record config")
		}
	}

	s.sink.Emit(ctx, events.NewSignal(events.KindConfigChanged, cfg.Asset).
		WithReason(configSummary(cfg)))

	s.schedule(cfg.Asset)
	return nil
}

func (s *oracleSvc) Assets(ctx context.Context) ([]*types.OracleConfig, error) {
	return s.configs.ListConfigs(ctx)
}

// UpdatePrices runs one round for asset. Rounds of the same asset never overlap,
// and the config is read under the round lock together with the previous aggregate.
// The returned report is non-nil whenever the round got past configuration checks.
func (s *oracleSvc) UpdatePrices(ctx context.Context, asset string) (report *RoundReport, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	lock := s.roundLock(asset)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := s.activeConfig(ctx, asset)
	if err != nil {
		return nil, err
	}

	return s.runRound(ctx, cfg, true)
}

// Probe runs a round for cfg without storing anything or emitting signals.
func (s *oracleSvc) Probe(ctx context.Context, cfg *types.OracleConfig) (report *RoundReport, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return s.runRound(ctx, withDefaults(cfg), false)
}

func (s *oracleSvc) GetLatestPrice(ctx context.Context, asset string) (agg *types.AggregatedPrice, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	agg, err = s.aggregates.GetAggregate(ctx, asset)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrapf(types.ErrNoValidPrice, "asset %s", asset)
	} else if err != nil {
		return nil, err
	}

	if !agg.IsValid {
		return nil, errors.Wrapf(types.ErrNoValidPrice, "asset %s", asset)
	}

	cfg, err := s.configs.GetConfig(ctx, asset)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrapf(types.ErrNoValidPrice, "asset %s is not configured", asset)
	} else if err != nil {
		return nil, err
	}

	if s.now().Sub(agg.Timestamp) > cfg.Heartbeat {
		return nil, &types.StalePriceError{
			Timestamp: agg.Timestamp,
			MaxAge:    cfg.Heartbeat,
		}
	}

	return agg, nil
}

func (s *oracleSvc) activeConfig(ctx context.Context, asset string) (*types.OracleConfig, error) {
	cfg, err := s.configs.GetConfig(ctx, asset)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrapf(types.ErrOracleInactive, "asset %s is not configured", asset)
	} else if err != nil {
		return nil, err
	}

	if !cfg.Active {
		return nil, errors.Wrapf(types.ErrOracleInactive, "asset %s", asset)
	}

	return cfg, nil
}

func (s *oracleSvc) roundLock(asset string) *sync.Mutex {
	v, _ := s.roundLocks.LoadOrStore(asset, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *oracleSvc) runRound(ctx context.Context, cfg *types.OracleConfig, commit bool) (*RoundReport, error) {
	report := &RoundReport{
		RoundID:   uuid.NewV4().String(),
		Asset:     cfg.Asset,
		StartedAt: s.now(),
	}

	emit := func(signal *events.Signal) {
		if commit {
			s.sink.Emit(ctx, signal.WithRound(report.RoundID))
		}
	}

	roundLogger := s.logger.WithFields(log.Fields{
		"asset": cfg.Asset,
		"round": report.RoundID,
	})

	current, err := s.aggregates.GetAggregate(ctx, cfg.Asset)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return report, errors.Wrap(err, "failed to read current aggregate")
	}

	for _, res := range s.fetchAll(ctx, cfg) {
		if res.failure != nil {
			report.Failures = append(report.Failures, res.failure)
			emit(events.NewSignal(events.KindSourceFailure, cfg.Asset).
				WithSource(res.failure.Source.String()).
				WithReason(res.failure.Error()))
			continue
		}

		obs := res.obs
		if err := s.validator.Validate(cfg, obs, current); err != nil {
			var rejection *types.RejectionError
			if !errors.As(err, &rejection) {
				rejection = &types.RejectionError{Source: obs.Source, Detail: err.Error()}
			}

			report.Rejected = append(report.Rejected, &RejectedObservation{
				Observation: obs,
				Rejection:   rejection,
			})

			kind := events.KindObservationRejected
			if rejection.Reason == types.RejectOutlier {
				kind = events.KindOutlierDetected
			}

			signal := events.NewSignal(kind, cfg.Asset).
				WithSource(obs.Source.String()).
				WithPrice(obs.Price).
				WithConfidence(obs.Confidence).
				WithReason(rejection.Error())
			if rejection.Reason == types.RejectOutlier {
				signal = signal.WithDeviation(rejection.DeviationBps)
			}
			emit(signal)
			continue
		}

		report.Accepted = append(report.Accepted, obs)
	}

	agg, err := s.aggregator.Aggregate(cfg.Asset, report.Accepted)
	if agg != nil {
		agg.RoundID = report.RoundID
	}
	report.Aggregate = agg

	if err != nil {
		roundLogger.WithFields(log.Fields{
			"accepted": len(report.Accepted),
			"rejected": len(report.Rejected),
			"failed":   len(report.Failures),
		}).WithError(err).Warningln("round aborted")

		return report, err
	}

	if commit {
		// accepted observations are only stored once the round is known to commit
		for _, obs := range report.Accepted {
			if err := s.observations.PutObservation(ctx, obs); err != nil {
				return report, errors.Wrapf(err, "failed to store observation from %s", obs.Source)
			}
		}

		if err := s.aggregates.PutAggregate(ctx, agg); err != nil {
			return report, errors.Wrap(err, "failed to store aggregate")
		}
		report.Committed = true

		for _, obs := range report.Accepted {
			if s.recorder != nil {
				if err := s.recorder.RecordObservation(ctx, obs); err != nil {
					roundLogger.WithError(err).Warningln("failed to record observation")
				}
			}

			emit(events.NewSignal(events.KindSourceUpdate, cfg.Asset).
				WithSource(obs.Source.String()).
				WithPrice(obs.Price).
				WithConfidence(obs.Confidence))
		}

		if s.recorder != nil {
			if err := s.recorder.RecordAggregate(ctx, agg); err != nil {
				roundLogger.WithError(err).Warningln("failed to record aggregate")
			}
		}

		emit(events.NewSignal(events.KindAggregateUpdate, cfg.Asset).
			WithPrice(agg.Price).
			WithConfidence(agg.Confidence).
			WithDeviation(agg.SpreadBps))
	}

	roundLogger.WithFields(log.Fields{
		"price":      agg.Price.String(),
		"confidence": agg.Confidence,
		"sources":    agg.SourcesUsed,
		"committed":  commit,
	}).Infoln("round completed")

	return report, nil
}

type fetchResult struct {
	obs     *types.PriceObservation
	failure *types.SourceFailure
}

// fetchAll queries every enabled source concurrently and returns results ordered by source kind.
func (s *oracleSvc) fetchAll(ctx context.Context, cfg *types.OracleConfig) []fetchResult {
	kinds := cfg.EnabledSources()
	resultsC := make(chan fetchResult, len(kinds))

	for _, kind := range kinds {
		go func(handle types.SourceHandle) {
			resultsC <- s.fetchSource(ctx, cfg, handle)
		}(cfg.Sources[kind])
	}

	results := make([]fetchResult, 0, len(kinds))
	for range kinds {
		results = append(results, <-resultsC)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].kind() < results[j].kind()
	})

	return results
}

func (r fetchResult) kind() types.SourceKind {
	if r.failure != nil {
		return r.failure.Source
	}

	return r.obs.Source
}

// fetchSource isolates one adapter call: panics, errors and timeouts all become a SourceFailure.
func (s *oracleSvc) fetchSource(ctx context.Context, cfg *types.OracleConfig, handle types.SourceHandle) fetchResult {
	adapter, ok := s.adapters[handle.Kind]
	if !ok {
		return fetchResult{
			failure: types.NewSourceFailure(handle.Kind, handle.Provider, "no adapter registered", nil),
		}
	}

	timeout := handle.Timeout
	if timeout <= 0 {
		timeout = types.DefaultSourceTimeout
	}

	requestCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()

	doneC := make(chan fetchResult, 1)
	go func() {
		var (
			obs *types.PriceObservation
			err error
		)

		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(log.Fields{
					"asset":  cfg.Asset,
					"source": handle.Kind.String(),
				}).Errorln("source adapter panicked:", r)
				s.logger.Debugln(string(debug.Stack()))

				err = errors.Errorf("panic: %v", r)
				obs = nil
			}

			doneC <- s.toResult(cfg, adapter, obs, err)
		}()

		obs, err = adapter.Fetch(requestCtx, cfg.Asset, handle)
	}()

	select {
	case res := <-doneC:
		return res
	case <-requestCtx.Done():
		metrics.ReportFuncError(s.svcTags)
		return fetchResult{
			failure: types.NewSourceFailure(adapter.Kind(), adapter.Provider(), "timeout", requestCtx.Err()),
		}
	}
}

// toResult normalizes an adapter answer: the observation price is rescaled to the asset decimals.
func (s *oracleSvc) toResult(cfg *types.OracleConfig, adapter types.SourceAdapter, obs *types.PriceObservation, err error) fetchResult {
	if err != nil {
		var failure *types.SourceFailure
		if errors.As(err, &failure) {
			return fetchResult{failure: failure}
		}

		return fetchResult{
			failure: types.NewSourceFailure(adapter.Kind(), adapter.Provider(), "fetch failed", err),
		}
	}

	if obs == nil {
		return fetchResult{
			failure: types.NewSourceFailure(adapter.Kind(), adapter.Provider(), "empty observation", nil),
		}
	}

	obs.Asset = cfg.Asset
	obs.Source = adapter.Kind()
	if obs.Provider == "" {
		obs.Provider = adapter.Provider()
	}

	if !obs.Price.IsNil() && obs.Decimals != cfg.Decimals {
		price, err := types.RescalePrice(obs.Price, obs.Decimals, cfg.Decimals)
		if err != nil {
			return fetchResult{
				failure: types.NewSourceFailure(adapter.Kind(), adapter.Provider(), "bad price scale", err),
			}
		}

		obs.Price = price
		obs.Decimals = cfg.Decimals
	}

	return fetchResult{obs: obs}
}

// Start runs a round per active asset at its update interval until ctx is done or Close is called.
func (s *oracleSvc) Start(ctx context.Context) (err error) {
	defer s.panicRecover(&err)

	s.schedMux.Lock()
	s.schedCtx, s.cancelFn = context.WithCancel(ctx)
	runCtx := s.schedCtx
	s.schedMux.Unlock()

	configs, err := s.configs.ListConfigs(runCtx)
	if err != nil {
		return errors.Wrap(err, "failed to list asset configs")
	}

	s.logger.Infoln("starting price rounds for", len(configs), "assets")
	for _, cfg := range configs {
		s.schedule(cfg.Asset)
	}

	<-runCtx.Done()
	return nil
}

// schedule launches the round loop for asset once the service has started.
func (s *oracleSvc) schedule(asset string) {
	s.schedMux.Lock()
	defer s.schedMux.Unlock()

	if s.schedCtx == nil || s.schedCtx.Err() != nil {
		return
	} else if _, ok := s.scheduled[asset]; ok {
		return
	}

	s.scheduled[asset] = struct{}{}
	go s.processAsset(s.schedCtx, asset)
}

func (s *oracleSvc) processAsset(ctx context.Context, asset string) {
	assetLogger := s.logger.WithField("asset", asset)

	t := time.NewTimer(firstRoundDelay)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			assetLogger.Infoln("context cancelled, stopping price rounds")
			return
		case <-t.C:
			interval := s.runScheduledRound(ctx, asset, assetLogger)
			t.Reset(interval)
		}
	}
}

func (s *oracleSvc) runScheduledRound(ctx context.Context, asset string, assetLogger log.Logger) (next time.Duration) {
	next = types.DefaultUpdateInterval

	defer func() {
		if r := recover(); r != nil {
			assetLogger.Errorln("price round panicked:", r)
			assetLogger.Debugln(string(debug.Stack()))
		}
	}()

	cfg, err := s.configs.GetConfig(ctx, asset)
	if err == nil && cfg.UpdateInterval >= types.MinUpdateInterval {
		next = cfg.UpdateInterval
	}

	roundCtx, cancelFn := context.WithTimeout(ctx, maxRoundTime)
	defer cancelFn()

	_, err = s.UpdatePrices(roundCtx, asset)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrOracleInactive):
		assetLogger.Debugln("asset is inactive, skipping round")
	default:
		metrics.CustomReport(func(st metrics.Statter, tagSpec []string) {
			st.Count("price_oracle.round.aborted.count", 1, tagSpec, 1)
		}, s.svcTags)
	}

	return next
}

func (s *oracleSvc) panicRecover(err *error) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%v", r)

		if e, ok := r.(error); ok {
			s.logger.WithError(e).Errorln("service main loop panicked with an error")
			s.logger.Debugln(string(debug.Stack()))
		} else {
			s.logger.Errorln(r)
		}
	}
}

func (s *oracleSvc) Close() {
	s.schedMux.Lock()
	defer s.schedMux.Unlock()

	if s.cancelFn != nil {
		s.cancelFn()
	}
}
