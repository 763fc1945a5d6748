package validator

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *types.OracleConfig {
	return &types.OracleConfig{
		Asset:              "BTC",
		Heartbeat:          time.Hour,
		DeviationThreshold: types.MaxPriceDeviationBps,
		Active:             true,
	}
}

func observation(price int64, confidence int64, age time.Duration) *types.PriceObservation {
	return &types.PriceObservation{
		Asset:      "BTC",
		Source:     types.SourceReference,
		Price:      math.NewInt(price),
		Timestamp:  testNow.Add(-age),
		Confidence: confidence,
	}
}

func rejectionReason(t *testing.T, err error) types.RejectReason {
	t.Helper()

	var rejection *types.RejectionError
	require.True(t, errors.As(err, &rejection), "expected rejection, got %v", err)
	return rejection.Reason
}

func TestValidate(t *testing.T) {
	fresh := &types.AggregatedPrice{
		Price:     math.NewInt(100),
		Timestamp: testNow.Add(-time.Minute),
		IsValid:   true,
	}

	tests := []struct {
		name     string
		obs      *types.PriceObservation
		current  *types.AggregatedPrice
		expected types.RejectReason
	}{
		{name: "accepted without history", obs: observation(100, 100, time.Minute)},
		{name: "accepted within deviation", obs: observation(105, 90, time.Minute), current: fresh},
		{name: "zero price", obs: observation(0, 100, time.Minute), expected: types.RejectNonPositivePrice},
		{name: "negative price", obs: observation(-5, 100, time.Minute), expected: types.RejectNonPositivePrice},
		{name: "low confidence", obs: observation(100, 69, time.Minute), expected: types.RejectLowConfidence},
		{name: "minimum confidence accepted", obs: observation(100, 70, time.Minute)},
		{name: "older than heartbeat", obs: observation(100, 100, 61*time.Minute), expected: types.RejectStale},
		{name: "from the future", obs: observation(100, 100, -5*time.Minute), expected: types.RejectFutureTimestamp},
		{name: "small clock skew tolerated", obs: observation(100, 100, -30*time.Second)},
		{name: "outlier", obs: observation(130, 100, time.Minute), current: fresh, expected: types.RejectOutlier},
		{
			name: "deviation ignored against stale aggregate",
			obs:  observation(130, 100, time.Minute),
			current: &types.AggregatedPrice{
				Price:     math.NewInt(100),
				Timestamp: testNow.Add(-2 * time.Hour),
				IsValid:   true,
			},
		},
		{
			name: "deviation ignored against invalid aggregate",
			obs:  observation(130, 100, time.Minute),
			current: &types.AggregatedPrice{
				Price:     math.NewInt(100),
				Timestamp: testNow,
			},
		},
	}

	v := New(WithClock(func() time.Time { return testNow }))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(testConfig(), tt.obs, tt.current)
			if tt.expected == "" {
				assert.NoError(t, err)
				return
			}

			assert.Equal(t, tt.expected, rejectionReason(t, err))
		})
	}
}

func TestValidateChecksInOrder(t *testing.T) {
	v := New(WithClock(func() time.Time { return testNow }))

	// zero price, low confidence and stale all at once: price wins
	err := v.Validate(testConfig(), observation(0, 10, 5*time.Hour), nil)
	assert.Equal(t, types.RejectNonPositivePrice, rejectionReason(t, err))

	err = v.Validate(testConfig(), observation(100, 10, 5*time.Hour), nil)
	assert.Equal(t, types.RejectLowConfidence, rejectionReason(t, err))
}

func TestValidateMarksOutlier(t *testing.T) {
	v := New(WithClock(func() time.Time { return testNow }))
	current := &types.AggregatedPrice{Price: math.NewInt(100), Timestamp: testNow, IsValid: true}

	obs := observation(130, 100, 0)
	err := v.Validate(testConfig(), obs, current)

	var rejection *types.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.True(t, obs.IsOutlier)
	assert.Equal(t, int64(3000), rejection.DeviationBps)
}

func TestValidateUsesConfiguredThreshold(t *testing.T) {
	v := New(WithClock(func() time.Time { return testNow }))
	current := &types.AggregatedPrice{Price: math.NewInt(100), Timestamp: testNow, IsValid: true}

	cfg := testConfig()
	cfg.DeviationThreshold = 200

	err := v.Validate(cfg, observation(103, 100, 0), current)
	assert.Equal(t, types.RejectOutlier, rejectionReason(t, err))

	cfg.DeviationThreshold = 0
	assert.NoError(t, v.Validate(cfg, observation(103, 100, 0), current))
}
