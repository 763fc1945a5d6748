package types

import (
	"context"
	"sort"
	"time"

	"cosmossdk.io/math"
)

// SourceAdapter fetches a single observation for one asset from one source.
// Implementations must report every failure as an error and never panic on bad upstream data.
type SourceAdapter interface {
	Kind() SourceKind
	Provider() FeedProvider
	Fetch(ctx context.Context, asset string, handle SourceHandle) (*PriceObservation, error)
}

// PriceReader is the read-only view consumed by downstream components (e.g. prediction markets).
type PriceReader interface {
	GetLatestPrice(ctx context.Context, asset string) (*AggregatedPrice, error)
}

// SourceKind enumerates the supported source categories.
type SourceKind uint8

const (
	SourceReference       SourceKind = 1 // pull-based reference feed
	SourceAttested        SourceKind = 2 // push-based signed feed
	SourceRequestResponse SourceKind = 3 // async request-response feed
	SourceDisputeWindow   SourceKind = 4 // optimistic feed with dispute window
)

var sourceKindNames = map[SourceKind]string{
	SourceReference:       "reference",
	SourceAttested:        "attested",
	SourceRequestResponse: "request_response",
	SourceDisputeWindow:   "dispute_window",
}

func (k SourceKind) String() string {
	if name, ok := sourceKindNames[k]; ok {
		return name
	}

	return "unknown"
}

func (k SourceKind) Valid() bool {
	_, ok := sourceKindNames[k]
	return ok
}

// DefaultProvider is the provider backing the source kind when config doesn't name one.
func (k SourceKind) DefaultProvider() FeedProvider {
	switch k {
	case SourceReference:
		return FeedProviderChainlink
	case SourceAttested:
		return FeedProviderStork
	case SourceRequestResponse:
		return FeedProviderRequestResponse
	case SourceDisputeWindow:
		return FeedProviderDisputeWindow
	default:
		return ""
	}
}

// FeedProvider represents the concrete upstream behind a source kind
type FeedProvider string

func (f FeedProvider) String() string {
	return string(f)
}

const (
	FeedProviderChainlink       FeedProvider = "chainlink"
	FeedProviderStork           FeedProvider = "stork"
	FeedProviderRequestResponse FeedProvider = "request_response"
	FeedProviderDisputeWindow   FeedProvider = "dispute_window"
)

// SourceHandle addresses one asset on one source: a contract address, an asset id, etc.
type SourceHandle struct {
	Kind     SourceKind
	Provider FeedProvider
	Handle   string
	Timeout  time.Duration
	// Decimals is the native scale of raw prices on this source, 0 uses the provider default.
	Decimals int32
}

// OracleConfig is the per-asset configuration.
type OracleConfig struct {
	Asset              string
	Sources            map[SourceKind]SourceHandle
	Heartbeat          time.Duration
	DeviationThreshold int64 // basis points
	UpdateInterval     time.Duration
	Decimals           int32
	Active             bool
}

// Copy returns a deep copy so callers never share the sources map with the store.
func (c *OracleConfig) Copy() *OracleConfig {
	if c == nil {
		return nil
	}

	cp := *c
	cp.Sources = make(map[SourceKind]SourceHandle, len(c.Sources))
	for kind, handle := range c.Sources {
		cp.Sources[kind] = handle
	}

	return &cp
}

// EnabledSources lists configured source kinds in ascending order.
func (c *OracleConfig) EnabledSources() []SourceKind {
	kinds := make([]SourceKind, 0, len(c.Sources))
	for kind := range c.Sources {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// PriceObservation is one source's reading for an asset. Price is fixed-point in source-native scale.
type PriceObservation struct {
	Asset      string
	Source     SourceKind
	Provider   FeedProvider
	Price      math.Int
	Timestamp  time.Time
	Confidence int64
	RoundID    string
	IsOutlier  bool
	// Decimals is the scale of Price. The service rescales it to the asset decimals.
	Decimals int32
}

func (o *PriceObservation) Age(now time.Time) time.Duration {
	return now.Sub(o.Timestamp)
}

// AggregatedPrice is the combined result of one committed round.
type AggregatedPrice struct {
	Asset       string
	RoundID     string
	Price       math.Int
	Timestamp   time.Time
	Confidence  int64
	SourcesUsed int
	SpreadBps   int64
	IsValid     bool
}

// IsFresh reports whether the aggregate is valid and no older than maxAge.
func (a *AggregatedPrice) IsFresh(now time.Time, maxAge time.Duration) bool {
	if a == nil || !a.IsValid {
		return false
	}

	return now.Sub(a.Timestamp) <= maxAge
}

type WsConfig struct {
	WebsocketUrl    string
	WebsocketHeader string
	Message         string
}

// KindForProvider maps a provider name to the source kind it serves.
func KindForProvider(provider FeedProvider) (SourceKind, bool) {
	for kind := range sourceKindNames {
		if kind.DefaultProvider() == provider {
			return kind, true
		}
	}

	return 0, false
}
