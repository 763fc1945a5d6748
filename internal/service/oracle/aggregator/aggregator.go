package aggregator

import (
	"sort"
	"time"

	"cosmossdk.io/math"
	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

// Aggregator combines the accepted observations of a round into one price.
type Aggregator struct {
	minSources   int
	maxSpreadBps int64
	penaltyBps   int64
	now          func() time.Time

	logger  log.Logger
	svcTags metrics.Tags
}

type Option func(a *Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithPenaltySlope sets how many basis points of spread cost one confidence point.
func WithPenaltySlope(bps int64) Option {
	return func(a *Aggregator) {
		if bps > 0 {
			a.penaltyBps = bps
		}
	}
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		minSources:   types.MinSources,
		maxSpreadBps: types.MaxSourceDeviationBps,
		penaltyBps:   types.ConfidencePenaltyBps,
		now:          time.Now,
		logger:       log.WithField("svc", "aggregator"),
		svcTags: metrics.Tags{
			"svc": "aggregator",
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Aggregate computes the median price and a spread-penalised confidence.
// When sources disagree beyond the spread limit, the returned aggregate is
// invalid with zero confidence and the error is *types.NoConsensusError.
func (a *Aggregator) Aggregate(asset string, observations []*types.PriceObservation) (agg *types.AggregatedPrice, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(a.svcTags)(&err)

	if len(observations) < a.minSources {
		return nil, &types.InsufficientSourcesError{
			Available: len(observations),
			Required:  a.minSources,
		}
	}

	prices := make([]math.Int, 0, len(observations))
	confidences := make([]float64, 0, len(observations))
	for _, obs := range observations {
		if obs.Price.IsNil() || !obs.Price.IsPositive() {
			return nil, errors.Errorf("observation from %s has non-positive price", obs.Source)
		}

		prices = append(prices, obs.Price)
		confidences = append(confidences, float64(obs.Confidence))
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i].LT(prices[j]) })
	median := Median(prices)

	spread, err := types.SpreadBps(prices[0], prices[len(prices)-1], median)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute spread")
	}

	agg = &types.AggregatedPrice{
		Asset:       asset,
		Price:       median,
		Timestamp:   a.now(),
		SourcesUsed: len(observations),
		SpreadBps:   spread,
	}

	if spread > a.maxSpreadBps {
		a.logger.WithFields(log.Fields{
			"asset":      asset,
			"spread_bps": spread,
			"sources":    len(observations),
		}).Warningln("sources disagree, no consensus")

		return agg, &types.NoConsensusError{
			SpreadBps: spread,
			MaxBps:    a.maxSpreadBps,
		}
	}

	agg.Confidence = a.confidence(confidences, spread)
	agg.IsValid = agg.Confidence > 0

	return agg, nil
}

func (a *Aggregator) confidence(confidences []float64, spreadBps int64) int64 {
	// floor of the mean; confidences are integers in [0, 100]
	base := int64(stat.Mean(confidences, nil))
	result := base - spreadBps/a.penaltyBps

	if result < 0 {
		return 0
	} else if result > types.MaxConfidence {
		return types.MaxConfidence
	}

	return result
}

// Median expects sorted prices. For an even count it returns the floor of the two-middle average.
func Median(sorted []math.Int) math.Int {
	n := len(sorted)
	if n == 0 {
		return math.ZeroInt()
	}

	if n%2 == 1 {
		return sorted[n/2]
	}

	return sorted[n/2-1].Add(sorted[n/2]).QuoRaw(2)
}
