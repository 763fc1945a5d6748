package asyncfeed

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

func TestAsyncFeedsFailClosed(t *testing.T) {
	for _, feed := range []types.SourceAdapter{NewRequestResponseFeed(), NewDisputeWindowFeed()} {
		t.Run(feed.Kind().String(), func(t *testing.T) {
			obs, err := feed.Fetch(context.Background(), "BTC", types.SourceHandle{Kind: feed.Kind(), Handle: "any"})
			assert.Nil(t, obs)

			var failure *types.SourceFailure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, feed.Kind(), failure.Source)
			assert.True(t, errors.Is(err, types.ErrNotImplemented))
		})
	}
}
