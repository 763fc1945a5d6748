package types

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidConfig  = errors.New("invalid oracle config")
	ErrOracleInactive = errors.New("oracle is inactive")
	ErrNoValidPrice   = errors.New("no valid price")
	ErrNotImplemented = errors.New("source is not implemented")
)

type InsufficientSourcesError struct {
	Available int
	Required  int
}

func (e *InsufficientSourcesError) Error() string {
	return fmt.Sprintf("insufficient sources: %d available, %d required", e.Available, e.Required)
}

type NoConsensusError struct {
	SpreadBps int64
	MaxBps    int64
}

func (e *NoConsensusError) Error() string {
	return fmt.Sprintf("no consensus between sources: spread %d bps exceeds %d bps", e.SpreadBps, e.MaxBps)
}

type StalePriceError struct {
	Timestamp time.Time
	MaxAge    time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale price: updated at %s, max age %s", e.Timestamp.UTC().Format(time.RFC3339), e.MaxAge)
}

// SourceFailure is returned by adapters for anything that prevents an observation.
type SourceFailure struct {
	Source   SourceKind
	Provider FeedProvider
	Reason   string
	Err      error
}

func NewSourceFailure(kind SourceKind, provider FeedProvider, reason string, err error) *SourceFailure {
	return &SourceFailure{
		Source:   kind,
		Provider: provider,
		Reason:   reason,
		Err:      err,
	}
}

func (e *SourceFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s (%s) failed: %s: %v", e.Source, e.Provider, e.Reason, e.Err)
	}

	return fmt.Sprintf("source %s (%s) failed: %s", e.Source, e.Provider, e.Reason)
}

func (e *SourceFailure) Unwrap() error {
	return e.Err
}

type RejectReason string

const (
	RejectNonPositivePrice RejectReason = "non_positive_price"
	RejectLowConfidence    RejectReason = "low_confidence"
	RejectStale            RejectReason = "stale"
	RejectFutureTimestamp  RejectReason = "future_timestamp"
	RejectOutlier          RejectReason = "outlier"
)

// RejectionError explains why the validator refused an observation.
type RejectionError struct {
	Source       SourceKind
	Reason       RejectReason
	Detail       string
	DeviationBps int64 // set for outliers
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("observation from %s rejected (%s): %s", e.Source, e.Reason, e.Detail)
}
