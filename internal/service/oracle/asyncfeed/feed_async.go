// Package asyncfeed holds adapters for sources that answer asynchronously:
// request-response oracles and optimistic oracles with a dispute window.
// Neither has an integration yet, so both fail closed.
package asyncfeed

import (
	"context"

	"github.com/InjectiveLabs/metrics"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

var (
	_ types.SourceAdapter = &asyncPriceFeed{}
)

type asyncPriceFeed struct {
	kind     types.SourceKind
	provider types.FeedProvider
	svcTags  metrics.Tags
}

func NewRequestResponseFeed() types.SourceAdapter {
	return newAsyncPriceFeed(types.SourceRequestResponse, types.FeedProviderRequestResponse)
}

func NewDisputeWindowFeed() types.SourceAdapter {
	return newAsyncPriceFeed(types.SourceDisputeWindow, types.FeedProviderDisputeWindow)
}

func newAsyncPriceFeed(kind types.SourceKind, provider types.FeedProvider) *asyncPriceFeed {
	return &asyncPriceFeed{
		kind:     kind,
		provider: provider,
		svcTags: metrics.Tags{
			"provider": provider.String(),
		},
	}
}

func (f *asyncPriceFeed) Kind() types.SourceKind {
	return f.kind
}

func (f *asyncPriceFeed) Provider() types.FeedProvider {
	return f.provider
}

// Fetch always fails, so a round never counts these sources towards the minimum.
func (f *asyncPriceFeed) Fetch(_ context.Context, _ string, _ types.SourceHandle) (*types.PriceObservation, error) {
	metrics.ReportFuncCall(f.svcTags)

	return nil, types.NewSourceFailure(f.kind, f.provider, "not implemented", types.ErrNotImplemented)
}
