package stork

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

func TestConvertTimestampToSecond(t *testing.T) {
	tests := []struct {
		name      string
		timestamp uint64
		expected  uint64
	}{
		{
			name:      "Keep seconds",
			timestamp: 1737468044,
			expected:  1737468044,
		},
		{
			name:      "Convert milliseconds to seconds",
			timestamp: 1737468044540,
			expected:  1737468044,
		},
		{
			name:      "Convert microseconds to seconds",
			timestamp: 1737468044540691,
			expected:  1737468044,
		},
		{
			name:      "Convert nanoseconds to seconds",
			timestamp: 1738013700767706647, // nanoseconds
			expected:  1738013700,
		},
		{
			name:      "Convert nanoseconds to seconds",
			timestamp: 1738013701044503470, // nanoseconds
			expected:  1738013701,
		},
		{
			name:      "Convert nanoseconds to seconds",
			timestamp: 1738013701534503470, // nanoseconds
			expected:  1738013701,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertTimestampToSecond(tt.timestamp)
			if result != tt.expected {
				t.Errorf("ConvertTimestampToSecond(%d) = %d; want %d", tt.timestamp, result, tt.expected)
			}
		})
	}
}

type fakeFetcher struct {
	data    map[string]Data
	tracked []string
}

func (f *fakeFetcher) Run(_ context.Context) error { return nil }

func (f *fakeFetcher) Track(assetID string) {
	f.tracked = append(f.tracked, assetID)
}

func (f *fakeFetcher) Data(assetID string) (Data, bool) {
	d, ok := f.data[assetID]
	return d, ok
}

func signedPrice() SignedPrice {
	return SignedPrice{
		PublisherKey: "0x0a803F9b1CCe32e2773e0d2e98b37E0775cA5d44",
		Price:        "65000000000000000000000",
		TimestampedSignature: TimestampedSignature{
			Signature: Signature{
				R: "0x" + strings.Repeat("ab", 32),
				S: "0x" + strings.Repeat("cd", 32),
				V: "0x1b",
			},
			Timestamp: 1738013700767706647,
		},
	}
}

func validData() Data {
	return Data{
		Timestamp:    1738013700767706647,
		AssetID:      "BTCUSD",
		Price:        "65000000000000000000000",
		SignedPrices: []SignedPrice{signedPrice()},
	}
}

func storkHandle(id string) types.SourceHandle {
	return types.SourceHandle{Kind: types.SourceAttested, Provider: types.FeedProviderStork, Handle: id}
}

func TestStorkFetch(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string]Data{"BTCUSD": validData()}}
	feed := NewStorkPriceFeed(fetcher)

	obs, err := feed.Fetch(context.Background(), "BTC", storkHandle("BTCUSD"))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSD"}, fetcher.tracked)
	assert.Equal(t, types.SourceAttested, obs.Source)
	assert.Equal(t, "65000000000000000000000", obs.Price.String())
	assert.Equal(t, int64(types.AttestedFeedConfidence), obs.Confidence)
	assert.Equal(t, int32(types.AttestedFeedDecimals), obs.Decimals)
	assert.Equal(t, int64(1738013700), obs.Timestamp.Unix())
}

func TestStorkFetchFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Data)
		id     string
		reason string
	}{
		{name: "unset handle", id: "", reason: "asset id is not set"},
		{name: "unknown asset", id: "ETHUSD", reason: "no signed price received yet"},
		{
			name:   "no signed prices",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.SignedPrices = nil },
			reason: "missing signed prices",
		},
		{
			name:   "missing publisher",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.SignedPrices[0].PublisherKey = "" },
			reason: "malformed signed payload: missing publisher key",
		},
		{
			name:   "incomplete signature",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.SignedPrices[0].TimestampedSignature.Signature.V = "" },
			reason: "malformed signed payload: incomplete signature",
		},
		{
			name:   "short signature",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.SignedPrices[0].TimestampedSignature.Signature.R = "0xab" },
			reason: "malformed signed payload: bad signature length",
		},
		{
			name:   "garbage price",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.Price = "12.5abc" },
			reason: "malformed price 12.5abc",
		},
		{
			name:   "zero price",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.Price = "0" },
			reason: "non-positive price",
		},
		{
			name:   "missing timestamp",
			id:     "BTCUSD",
			mutate: func(d *Data) { d.Timestamp = 0 },
			reason: "missing timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validData()
			d.SignedPrices = []SignedPrice{signedPrice()}
			if tt.mutate != nil {
				tt.mutate(&d)
			}

			feed := NewStorkPriceFeed(&fakeFetcher{data: map[string]Data{"BTCUSD": d}})
			obs, err := feed.Fetch(context.Background(), "BTC", storkHandle(tt.id))
			assert.Nil(t, obs)

			var failure *types.SourceFailure
			require.True(t, errors.As(err, &failure), "expected source failure, got %v", err)
			assert.Equal(t, tt.reason, failure.Reason)
		})
	}
}
