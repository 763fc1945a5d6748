package chainlink

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

const testFeed = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// stubCaller answers latestRoundData with a fixed ABI-encoded tuple.
type stubCaller struct {
	round  RoundData
	err    error
	called common.Address
}

func (c *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.called = *msg.To

	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		return nil, err
	}

	return parsed.Methods["latestRoundData"].Outputs.Pack(
		c.round.RoundId,
		c.round.Answer,
		c.round.StartedAt,
		c.round.UpdatedAt,
		c.round.AnsweredInRound,
	)
}

func round(id, answer int64, updatedAt time.Time, answeredIn int64) RoundData {
	return RoundData{
		RoundId:         big.NewInt(id),
		Answer:          big.NewInt(answer),
		StartedAt:       big.NewInt(updatedAt.Unix()),
		UpdatedAt:       big.NewInt(updatedAt.Unix()),
		AnsweredInRound: big.NewInt(answeredIn),
	}
}

func newTestFeed(t *testing.T, caller *stubCaller) *chainlinkPriceFeed {
	t.Helper()

	fetcher, err := NewFetcher(caller)
	require.NoError(t, err)

	feed := NewChainlinkPriceFeed(fetcher).(*chainlinkPriceFeed)
	feed.now = func() time.Time { return testNow }
	return feed
}

func handle(address string) types.SourceHandle {
	return types.SourceHandle{
		Kind:     types.SourceReference,
		Provider: types.FeedProviderChainlink,
		Handle:   address,
	}
}

func TestFetch(t *testing.T) {
	caller := &stubCaller{round: round(10, 6_500_000_000_000, testNow.Add(-10*time.Minute), 10)}
	feed := newTestFeed(t, caller)

	obs, err := feed.Fetch(context.Background(), "BTC", handle(testFeed))
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(testFeed), caller.called)
	assert.Equal(t, "BTC", obs.Asset)
	assert.Equal(t, types.SourceReference, obs.Source)
	assert.Equal(t, "6500000000000", obs.Price.String())
	assert.Equal(t, int64(100), obs.Confidence)
	assert.Equal(t, "10", obs.RoundID)
	assert.Equal(t, int32(types.ReferenceFeedDecimals), obs.Decimals)
	assert.True(t, obs.Timestamp.Equal(testNow.Add(-10*time.Minute)))

	h := handle(testFeed)
	h.Decimals = 18
	obs, err = feed.Fetch(context.Background(), "BTC", h)
	require.NoError(t, err)
	assert.Equal(t, int32(18), obs.Decimals)
}

func TestFetchConfidenceByAge(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		expected int64
	}{
		{name: "fresh", age: 5 * time.Minute, expected: 100},
		{name: "older than an hour", age: 90 * time.Minute, expected: 80},
		{name: "older than two hours", age: 3 * time.Hour, expected: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := newTestFeed(t, &stubCaller{round: round(1, 100, testNow.Add(-tt.age), 1)})

			obs, err := feed.Fetch(context.Background(), "BTC", handle(testFeed))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, obs.Confidence)
		})
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		address string
		caller  *stubCaller
		reason  string
	}{
		{
			name:    "unset handle",
			address: "",
			caller:  &stubCaller{},
			reason:  "feed address is not set",
		},
		{
			name:    "zero address",
			address: "0x0000000000000000000000000000000000000000",
			caller:  &stubCaller{},
			reason:  "feed address is not set",
		},
		{
			name:    "rpc error",
			address: testFeed,
			caller:  &stubCaller{err: errors.New("connection refused")},
			reason:  "round data unavailable",
		},
		{
			name:    "never updated",
			address: testFeed,
			caller:  &stubCaller{round: round(1, 100, time.Unix(0, 0), 1)},
			reason:  "round data unavailable",
		},
		{
			name:    "incomplete round",
			address: testFeed,
			caller:  &stubCaller{round: round(5, 100, testNow, 4)},
			reason:  "round is incomplete",
		},
		{
			name:    "zero answer",
			address: testFeed,
			caller:  &stubCaller{round: round(5, 0, testNow, 5)},
			reason:  "non-positive answer",
		},
		{
			name:    "negative answer",
			address: testFeed,
			caller:  &stubCaller{round: round(5, -1, testNow, 5)},
			reason:  "non-positive answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := newTestFeed(t, tt.caller)

			obs, err := feed.Fetch(context.Background(), "BTC", handle(tt.address))
			assert.Nil(t, obs)

			var failure *types.SourceFailure
			require.True(t, errors.As(err, &failure), "expected source failure, got %v", err)
			assert.Equal(t, types.SourceReference, failure.Source)
			assert.Equal(t, tt.reason, failure.Reason)
		})
	}
}
