package types

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviationBps(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int64
		expected int64
	}{
		{name: "equal", a: 100, b: 100, expected: 0},
		{name: "above", a: 110, b: 100, expected: 1000},
		{name: "below", a: 90, b: 100, expected: 1000},
		{name: "truncates", a: 102, b: 101, expected: 99},
		{name: "thirty percent", a: 130, b: 100, expected: 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DeviationBps(math.NewInt(tt.a), math.NewInt(tt.b))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDeviationBpsRejectsZeroBase(t *testing.T) {
	_, err := DeviationBps(math.NewInt(1), math.ZeroInt())
	assert.Error(t, err)
}

func TestSpreadBps(t *testing.T) {
	spread, err := SpreadBps(math.NewInt(100), math.NewInt(102), math.NewInt(101))
	require.NoError(t, err)
	assert.Equal(t, int64(198), spread)
}

func TestRescalePrice(t *testing.T) {
	testCases := []struct {
		name     string
		price    string
		from, to int32
		expected string
	}{
		{name: "same scale", price: "6000000", from: 2, to: 2, expected: "6000000"},
		{name: "scale up", price: "6000000000000", from: 8, to: 18, expected: "60000000000000000000000"},
		{name: "scale down", price: "60000000000000000000000", from: 18, to: 8, expected: "6000000000000"},
		{name: "scale down truncates", price: "6000012345678", from: 8, to: 2, expected: "6000012"},
		{name: "zero decimals", price: "60000", from: 0, to: 2, expected: "6000000"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			price, ok := math.NewIntFromString(tc.price)
			require.True(t, ok)

			got, err := RescalePrice(price, tc.from, tc.to)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.String())
		})
	}

	_, err := RescalePrice(math.NewInt(1), -1, 2)
	assert.Error(t, err)
}

func TestReferenceFeedConfidence(t *testing.T) {
	assert.Equal(t, int64(100), ReferenceFeedConfidence(10*time.Minute))
	assert.Equal(t, int64(80), ReferenceFeedConfidence(90*time.Minute))
	assert.Equal(t, int64(60), ReferenceFeedConfidence(3*time.Hour))
}

func TestOracleConfigCopy(t *testing.T) {
	cfg := &OracleConfig{
		Asset: "BTC",
		Sources: map[SourceKind]SourceHandle{
			SourceReference: {Kind: SourceReference, Handle: "0x01"},
		},
	}

	cp := cfg.Copy()
	cp.Sources[SourceAttested] = SourceHandle{Kind: SourceAttested}

	assert.Len(t, cfg.Sources, 1)
	assert.Len(t, cp.Sources, 2)
	assert.Equal(t, []SourceKind{SourceReference, SourceAttested}, cp.EnabledSources())
}

func TestAggregatedPriceIsFresh(t *testing.T) {
	now := time.Now()
	agg := &AggregatedPrice{Timestamp: now.Add(-30 * time.Minute), IsValid: true}

	assert.True(t, agg.IsFresh(now, time.Hour))
	assert.False(t, agg.IsFresh(now, 10*time.Minute))

	agg.IsValid = false
	assert.False(t, agg.IsFresh(now, time.Hour))

	var missing *AggregatedPrice
	assert.False(t, missing.IsFresh(now, time.Hour))
}
