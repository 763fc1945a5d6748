package validator

import (
	"fmt"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

// Validator decides whether a single observation may take part in aggregation.
// Checks run in a fixed order and stop at the first failure.
type Validator struct {
	maxClockSkew time.Duration
	now          func() time.Time

	logger  log.Logger
	svcTags metrics.Tags
}

type Option func(v *Validator)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func WithMaxClockSkew(skew time.Duration) Option {
	return func(v *Validator) {
		v.maxClockSkew = skew
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		maxClockSkew: types.MaxClockSkew,
		now:          time.Now,
		logger:       log.WithField("svc", "validator"),
		svcTags: metrics.Tags{
			"svc": "validator",
		},
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Validate returns nil when obs is accepted, or a *types.RejectionError otherwise.
// An observation deviating too far from the previous aggregate is flagged as outlier.
// The outlier check only runs against a valid aggregate that is still within the heartbeat:
// once the last committed price goes stale, any fresh observation may re-anchor the asset.
func (v *Validator) Validate(
	cfg *types.OracleConfig,
	obs *types.PriceObservation,
	current *types.AggregatedPrice,
) error {
	now := v.now()

	if obs.Price.IsNil() || !obs.Price.IsPositive() {
		return v.reject(obs, types.RejectNonPositivePrice, "price must be positive")
	}

	if obs.Confidence < types.MinConfidence {
		return v.reject(obs, types.RejectLowConfidence,
			fmt.Sprintf("confidence %d below minimum %d", obs.Confidence, types.MinConfidence))
	}

	age := obs.Age(now)
	if age > cfg.Heartbeat {
		return v.reject(obs, types.RejectStale,
			fmt.Sprintf("age %s exceeds heartbeat %s", age.Truncate(time.Second), cfg.Heartbeat))
	} else if -age > v.maxClockSkew {
		return v.reject(obs, types.RejectFutureTimestamp,
			fmt.Sprintf("timestamp is %s ahead of local clock", (-age).Truncate(time.Second)))
	}

	if !current.IsFresh(now, cfg.Heartbeat) {
		// nothing trustworthy to compare against
		return nil
	}

	threshold := cfg.DeviationThreshold
	if threshold <= 0 {
		threshold = types.MaxPriceDeviationBps
	}

	deviation, err := types.DeviationBps(obs.Price, current.Price)
	if err != nil {
		v.logger.WithError(err).WithField("asset", cfg.Asset).Warningln("failed to compute deviation, skipping check")
		return nil
	}

	if deviation > threshold {
		obs.IsOutlier = true

		rejection := v.reject(obs, types.RejectOutlier,
			fmt.Sprintf("deviation %d bps exceeds %d bps", deviation, threshold))
		rejection.DeviationBps = deviation
		return rejection
	}

	return nil
}

func (v *Validator) reject(obs *types.PriceObservation, reason types.RejectReason, detail string) *types.RejectionError {
	metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
		s.Count(fmt.Sprintf("validator.rejected.%s.count", reason), 1, tagSpec, 1)
	}, v.svcTags)

	v.logger.WithFields(log.Fields{
		"asset":  obs.Asset,
		"source": obs.Source.String(),
		"reason": string(reason),
	}).Debugln(detail)

	return &types.RejectionError{
		Source: obs.Source,
		Reason: reason,
		Detail: detail,
	}
}
