package chainlink

import (
	"context"
	"time"

	"cosmossdk.io/math"
	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

var _ types.SourceAdapter = &chainlinkPriceFeed{}

type chainlinkPriceFeed struct {
	fetcher Fetcher
	now     func() time.Time

	logger  log.Logger
	svcTags metrics.Tags
}

// NewChainlinkPriceFeed returns the reference feed adapter. The source handle is the
// AggregatorV3 contract address of the asset.
func NewChainlinkPriceFeed(fetcher Fetcher) types.SourceAdapter {
	return &chainlinkPriceFeed{
		fetcher: fetcher,
		now:     time.Now,
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": types.FeedProviderChainlink.String(),
		}),
		svcTags: metrics.Tags{
			"provider": types.FeedProviderChainlink.String(),
		},
	}
}

func (f *chainlinkPriceFeed) Kind() types.SourceKind {
	return types.SourceReference
}

func (f *chainlinkPriceFeed) Provider() types.FeedProvider {
	return types.FeedProviderChainlink
}

func (f *chainlinkPriceFeed) Fetch(ctx context.Context, asset string, handle types.SourceHandle) (
	obs *types.PriceObservation,
	err error,
) {
	defer metrics.ReportFuncCallAndTimingWithErr(f.svcTags)(&err)

	if !common.IsHexAddress(handle.Handle) {
		return nil, f.failure("feed address is not set", nil)
	}

	feed := common.HexToAddress(handle.Handle)
	if feed == (common.Address{}) {
		return nil, f.failure("feed address is not set", nil)
	}

	round, err := f.fetcher.LatestRound(ctx, feed)
	if err != nil {
		return nil, f.failure("round data unavailable", err)
	}

	switch {
	case round.UpdatedAt == nil || round.UpdatedAt.Sign() == 0:
		return nil, f.failure("round data unavailable", nil)
	case !round.IsComplete():
		return nil, f.failure("round is incomplete", nil)
	case round.Answer == nil || round.Answer.Sign() <= 0:
		return nil, f.failure("non-positive answer", nil)
	}

	updated := round.UpdatedTime()
	confidence := types.ReferenceFeedConfidence(f.now().Sub(updated))

	f.logger.WithFields(log.Fields{
		"asset":      asset,
		"answer":     round.Answer.String(),
		"updated_at": updated,
		"confidence": confidence,
	}).Debugln("pulled reference price")

	return &types.PriceObservation{
		Asset:      asset,
		Source:     types.SourceReference,
		Provider:   types.FeedProviderChainlink,
		Price:      math.NewIntFromBigInt(round.Answer),
		Timestamp:  updated,
		Confidence: confidence,
		RoundID:    round.RoundId.String(),
		Decimals:   nativeDecimals(handle),
	}, nil
}

func nativeDecimals(handle types.SourceHandle) int32 {
	if handle.Decimals > 0 {
		return handle.Decimals
	}

	return types.ReferenceFeedDecimals
}

func (f *chainlinkPriceFeed) failure(reason string, err error) *types.SourceFailure {
	return types.NewSourceFailure(types.SourceReference, types.FeedProviderChainlink, reason, err)
}
