package stork

import (
	"context"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

var _ types.SourceAdapter = &storkPriceFeed{}

// r || s || v
const signatureLength = 65

type storkPriceFeed struct {
	fetcher Fetcher

	logger  log.Logger
	svcTags metrics.Tags
}

// NewStorkPriceFeed returns the attested feed adapter. The source handle is the Stork asset id.
func NewStorkPriceFeed(fetcher Fetcher) types.SourceAdapter {
	return &storkPriceFeed{
		fetcher: fetcher,
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": types.FeedProviderStork.String(),
		}),
		svcTags: metrics.Tags{
			"provider": types.FeedProviderStork.String(),
		},
	}
}

func (f *storkPriceFeed) Kind() types.SourceKind {
	return types.SourceAttested
}

func (f *storkPriceFeed) Provider() types.FeedProvider {
	return types.FeedProviderStork
}

func (f *storkPriceFeed) Fetch(_ context.Context, asset string, handle types.SourceHandle) (
	obs *types.PriceObservation,
	err error,
) {
	defer metrics.ReportFuncCallAndTimingWithErr(f.svcTags)(&err)

	assetID := handle.Handle
	if assetID == "" {
		return nil, f.failure("asset id is not set")
	}

	f.fetcher.Track(assetID)

	data, ok := f.fetcher.Data(assetID)
	if !ok {
		return nil, f.failure("no signed price received yet")
	}

	if reason := checkSignedPrices(data.SignedPrices); reason != "" {
		return nil, f.failure(reason)
	}

	price, ok := math.NewIntFromString(data.Price)
	if !ok {
		return nil, f.failure("malformed price " + data.Price)
	} else if !price.IsPositive() {
		return nil, f.failure("non-positive price")
	}

	if data.Timestamp <= 0 {
		return nil, f.failure("missing timestamp")
	}

	ts := time.Unix(int64(ConvertTimestampToSecond(uint64(data.Timestamp))), 0)

	f.logger.WithFields(log.Fields{
		"asset":    asset,
		"asset_id": assetID,
		"price":    data.Price,
		"ts":       ts,
	}).Debugln("read attested price")

	return &types.PriceObservation{
		Asset:      asset,
		Source:     types.SourceAttested,
		Provider:   types.FeedProviderStork,
		Price:      price,
		Timestamp:  ts,
		Confidence: types.AttestedFeedConfidence,
		Decimals:   nativeDecimals(handle),
	}, nil
}

func nativeDecimals(handle types.SourceHandle) int32 {
	if handle.Decimals > 0 {
		return handle.Decimals
	}

	return types.AttestedFeedDecimals
}

func (f *storkPriceFeed) failure(reason string) *types.SourceFailure {
	return types.NewSourceFailure(types.SourceAttested, types.FeedProviderStork, reason, nil)
}

// checkSignedPrices checks payload completeness only; signatures are not verified.
func checkSignedPrices(signed []SignedPrice) string {
	if len(signed) == 0 {
		return "missing signed prices"
	}

	for _, sp := range signed {
		if sp.PublisherKey == "" {
			return "malformed signed payload: missing publisher key"
		}

		sig := sp.TimestampedSignature.Signature
		if sig.R == "" || sig.S == "" || sig.V == "" {
			return "malformed signed payload: incomplete signature"
		}

		if len(common.Hex2Bytes(CombineSignatureToString(sig))) != signatureLength {
			return "malformed signed payload: bad signature length"
		}
	}

	return ""
}

func CombineSignatureToString(signature Signature) (result string) {
	prunedR := strings.TrimPrefix(signature.R, "0x")
	prunedS := strings.TrimPrefix(signature.S, "0x")
	prunedV := strings.TrimPrefix(signature.V, "0x")

	return prunedR + prunedS + prunedV
}

func ConvertTimestampToSecond(timestamp uint64) uint64 {
	switch {
	// nanosecond
	case timestamp > 1e18:
		return timestamp / uint64(1_000_000_000)
	// microsecond
	case timestamp > 1e15:
		return timestamp / uint64(1_000_000)
	// millisecond
	case timestamp > 1e12:
		return timestamp / uint64(1_000)
	// second
	default:
		return timestamp
	}
}
