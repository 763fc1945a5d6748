package oracle

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

// AssetFileConfig is the TOML layout of one asset configuration file.
//
//	asset = "BTC"
//	heartbeat = "1h"
//	deviationThreshold = 1000
//
//	[[sources]]
//	provider = "chainlink"
//	handle = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"
//	decimals = 8
type AssetFileConfig struct {
	Asset              string                   `toml:"asset"`
	Heartbeat          string                   `toml:"heartbeat"`
	DeviationThreshold int64                    `toml:"deviationThreshold"`
	UpdateInterval     string                   `toml:"updateInterval"`
	Decimals           int32                    `toml:"decimals"`
	Active             *bool                    `toml:"active"`
	Sources            []map[string]interface{} `toml:"sources"`
}

type sourceFileConfig struct {
	Kind     int           `mapstructure:"kind"`
	Provider string        `mapstructure:"provider"`
	Handle   string        `mapstructure:"handle"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Decimals int32         `mapstructure:"decimals"`
}

// ParseAssetConfig decodes and validates one asset TOML file. Every error wraps types.ErrInvalidConfig.
func ParseAssetConfig(body []byte) (*types.OracleConfig, error) {
	var fileCfg AssetFileConfig
	if err := toml.Unmarshal(body, &fileCfg); err != nil {
		err = errors.Wrapf(types.ErrInvalidConfig, "failed to unmarshal TOML config: %v", err)
		return nil, err
	}

	cfg, err := fileCfg.toOracleConfig()
	if err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AssetFileConfig) toOracleConfig() (*types.OracleConfig, error) {
	cfg := &types.OracleConfig{
		Asset:              c.Asset,
		DeviationThreshold: c.DeviationThreshold,
		Decimals:           c.Decimals,
		Active:             true,
		Sources:            make(map[types.SourceKind]types.SourceHandle, len(c.Sources)),
	}

	if c.Active != nil {
		cfg.Active = *c.Active
	}

	if len(c.Heartbeat) > 0 {
		heartbeat, err := time.ParseDuration(c.Heartbeat)
		if err != nil {
			err = errors.Wrapf(types.ErrInvalidConfig, "failed to parse heartbeat %s (expected format: 1h): %v", c.Heartbeat, err)
			return nil, err
		}
		cfg.Heartbeat = heartbeat
	}

	if len(c.UpdateInterval) > 0 {
		interval, err := time.ParseDuration(c.UpdateInterval)
		if err != nil {
			err = errors.Wrapf(types.ErrInvalidConfig, "failed to parse update interval %s (expected format: 60s): %v", c.UpdateInterval, err)
			return nil, err
		}
		cfg.UpdateInterval = interval
	}

	for idx, raw := range c.Sources {
		handle, err := decodeSource(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode source #%d", idx)
		}

		if _, ok := cfg.Sources[handle.Kind]; ok {
			return nil, errors.Wrapf(types.ErrInvalidConfig, "source %s is configured twice", handle.Kind)
		}
		cfg.Sources[handle.Kind] = handle
	}

	return cfg, nil
}

func decodeSource(raw map[string]interface{}) (types.SourceHandle, error) {
	var src sourceFileConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &src,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return types.SourceHandle{}, err
	}

	if err := decoder.Decode(raw); err != nil {
		return types.SourceHandle{}, errors.Wrapf(types.ErrInvalidConfig, "%v", err)
	}

	handle := types.SourceHandle{
		Kind:     types.SourceKind(src.Kind),
		Provider: types.FeedProvider(src.Provider),
		Handle:   src.Handle,
		Timeout:  src.Timeout,
		Decimals: src.Decimals,
	}

	if handle.Provider != "" {
		kind, ok := types.KindForProvider(handle.Provider)
		if !ok {
			return handle, errors.Wrapf(types.ErrInvalidConfig, "unknown provider %q", src.Provider)
		} else if handle.Kind != 0 && handle.Kind != kind {
			return handle, errors.Wrapf(types.ErrInvalidConfig, "provider %q does not serve source %s", src.Provider, handle.Kind)
		}
		handle.Kind = kind
	} else if handle.Kind == 0 {
		return handle, errors.Wrap(types.ErrInvalidConfig, "either kind or provider must be set")
	}

	if handle.Provider == "" {
		handle.Provider = handle.Kind.DefaultProvider()
	}

	return handle, nil
}

// ValidateConfig reports every problem of cfg at once. The result wraps types.ErrInvalidConfig.
func ValidateConfig(cfg *types.OracleConfig) error {
	if cfg == nil {
		return errors.Wrap(types.ErrInvalidConfig, "config is nil")
	}

	var err error
	if cfg.Asset == "" {
		err = multierr.Append(err, errors.New("asset is empty"))
	}

	if cfg.Heartbeat <= 0 {
		err = multierr.Append(err, errors.New("heartbeat must be positive"))
	}

	if cfg.DeviationThreshold <= 0 || cfg.DeviationThreshold > types.BasisPoints {
		err = multierr.Append(err, fmt.Errorf("deviation threshold must be in (0, %d] bps", types.BasisPoints))
	}

	if cfg.Decimals < 0 {
		err = multierr.Append(err, errors.New("decimals must not be negative"))
	}

	if cfg.UpdateInterval != 0 && cfg.UpdateInterval < types.MinUpdateInterval {
		err = multierr.Append(err, fmt.Errorf("update interval %s is below minimum %s", cfg.UpdateInterval, types.MinUpdateInterval))
	}

	for kind, handle := range cfg.Sources {
		if !kind.Valid() {
			err = multierr.Append(err, fmt.Errorf("unknown source kind %d", kind))
			continue
		}

		if handle.Handle == "" {
			err = multierr.Append(err, fmt.Errorf("source %s has empty handle", kind))
		}

		if handle.Timeout < 0 {
			err = multierr.Append(err, fmt.Errorf("source %s has negative timeout", kind))
		}

		if handle.Decimals < 0 {
			err = multierr.Append(err, fmt.Errorf("source %s has negative decimals", kind))
		}

		if handle.Provider != "" && handle.Provider != kind.DefaultProvider() {
			err = multierr.Append(err, fmt.Errorf("provider %q does not serve source %s", handle.Provider, kind))
		}
	}

	if err != nil {
		return errors.Wrapf(types.ErrInvalidConfig, "%v", err)
	}

	return nil
}

// withDefaults fills optional fields left empty by the caller.
func withDefaults(cfg *types.OracleConfig) *types.OracleConfig {
	cfg = cfg.Copy()

	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = types.DefaultUpdateInterval
	}

	for kind, handle := range cfg.Sources {
		handle.Kind = kind
		if handle.Provider == "" {
			handle.Provider = kind.DefaultProvider()
		}
		if handle.Timeout == 0 {
			handle.Timeout = types.DefaultSourceTimeout
		}
		cfg.Sources[kind] = handle
	}

	return cfg
}
