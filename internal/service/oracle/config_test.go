package oracle

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

func TestParseAssetConfig(t *testing.T) {
	content := `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000
updateInterval = "30s"
decimals = 8

[[sources]]
provider = "chainlink"
handle = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"
timeout = "5s"

[[sources]]
kind = 2
handle = "BTCUSD"
decimals = 18
`
	cfg, err := ParseAssetConfig([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, "BTC", cfg.Asset)
	assert.Equal(t, time.Hour, cfg.Heartbeat)
	assert.Equal(t, int64(1000), cfg.DeviationThreshold)
	assert.Equal(t, 30*time.Second, cfg.UpdateInterval)
	assert.Equal(t, int32(8), cfg.Decimals)
	assert.True(t, cfg.Active)

	require.Len(t, cfg.Sources, 2)

	reference := cfg.Sources[types.SourceReference]
	assert.Equal(t, types.FeedProviderChainlink, reference.Provider)
	assert.Equal(t, 5*time.Second, reference.Timeout)

	attested := cfg.Sources[types.SourceAttested]
	assert.Equal(t, types.FeedProviderStork, attested.Provider)
	assert.Equal(t, "BTCUSD", attested.Handle)
	assert.Equal(t, int32(18), attested.Decimals)
	assert.Zero(t, reference.Decimals)
}

func TestParseAssetConfigInactive(t *testing.T) {
	content := `
asset = "ETH"
heartbeat = "10m"
deviationThreshold = 500
active = false
`
	cfg, err := ParseAssetConfig([]byte(content))
	require.NoError(t, err)
	assert.False(t, cfg.Active)
	assert.Empty(t, cfg.Sources)
}

func TestParseAssetConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{
			name:    "malformed toml",
			content: `asset = `,
		},
		{
			name: "bad heartbeat",
			content: `
asset = "BTC"
heartbeat = "hourly"
deviationThreshold = 1000
`,
		},
		{
			name: "unknown provider",
			content: `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000

[[sources]]
provider = "binance"
handle = "BTCUSDT"
`,
		},
		{
			name: "provider of another kind",
			content: `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000

[[sources]]
kind = 1
provider = "stork"
handle = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"
`,
		},
		{
			name: "neither kind nor provider",
			content: `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000

[[sources]]
handle = "BTCUSD"
`,
		},
		{
			name: "negative source decimals",
			content: `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000

[[sources]]
provider = "stork"
handle = "BTCUSD"
decimals = -1
`,
		},
		{
			name: "duplicate source",
			content: `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000

[[sources]]
provider = "stork"
handle = "BTCUSD"

[[sources]]
kind = 2
handle = "BTCUSDT"
`,
		},
		{
			name: "unused source field",
			content: `
asset = "BTC"
heartbeat = "1h"
deviationThreshold = 1000

[[sources]]
provider = "stork"
handle = "BTCUSD"
ticker = "BTC"
`,
		},
		{
			name: "zero deviation",
			content: `
asset = "BTC"
heartbeat = "1h"
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAssetConfig([]byte(tc.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidConfig), "unexpected error: %v", err)
		})
	}
}

func TestValidateConfigCollectsAllProblems(t *testing.T) {
	cfg := &types.OracleConfig{
		DeviationThreshold: 20000,
		UpdateInterval:     time.Millisecond,
		Decimals:           -2,
		Sources: map[types.SourceKind]types.SourceHandle{
			types.SourceAttested:  {},
			types.SourceReference: {Handle: "0x01", Provider: types.FeedProviderStork},
			types.SourceKind(9):   {Handle: "x"},
		},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))

	for _, msg := range []string{
		"asset is empty",
		"heartbeat must be positive",
		"deviation threshold",
		"update interval",
		"attested has empty handle",
		"unknown source kind 9",
		"decimals must not be negative",
		`provider "stork" does not serve source reference`,
	} {
		assert.Contains(t, err.Error(), msg)
	}
}

func TestValidateConfigNil(t *testing.T) {
	err := ValidateConfig(nil)
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
}

func TestWithDefaults(t *testing.T) {
	cfg := &types.OracleConfig{
		Asset:              "BTC",
		Heartbeat:          time.Hour,
		DeviationThreshold: 1000,
		Sources: map[types.SourceKind]types.SourceHandle{
			types.SourceReference: {Handle: "0x01"},
		},
	}

	filled := withDefaults(cfg)
	assert.Equal(t, types.DefaultUpdateInterval, filled.UpdateInterval)

	handle := filled.Sources[types.SourceReference]
	assert.Equal(t, types.SourceReference, handle.Kind)
	assert.Equal(t, types.FeedProviderChainlink, handle.Provider)
	assert.Equal(t, types.DefaultSourceTimeout, handle.Timeout)

	// original untouched
	assert.Zero(t, cfg.UpdateInterval)
	assert.Zero(t, cfg.Sources[types.SourceReference].Timeout)
}
