package types

import "time"

const (
	MinSources    = 2
	MinConfidence = 70
	MaxConfidence = 100

	BasisPoints = 10000

	// MaxPriceDeviationBps is the default per-asset outlier threshold against the previous aggregate.
	MaxPriceDeviationBps = 1000
	// MaxSourceDeviationBps is the widest inter-source spread a round may commit.
	MaxSourceDeviationBps = 500
	// ConfidencePenaltyBps is how many basis points of spread cost one confidence point.
	ConfidencePenaltyBps = 100

	AttestedFeedConfidence = 90

	// ReferenceFeedDecimals is the scale of AggregatorV3 USD answers.
	ReferenceFeedDecimals = 8
	// AttestedFeedDecimals is the scale of Stork prices.
	AttestedFeedDecimals = 18
)

const (
	DefaultUpdateInterval = 1 * time.Minute
	MinUpdateInterval     = 1 * time.Second
	DefaultSourceTimeout  = 15 * time.Second
	MaxClockSkew          = 1 * time.Minute
)

// ReferenceFeedConfidence maps the age of a reference-feed round to a confidence score.
func ReferenceFeedConfidence(age time.Duration) int64 {
	switch {
	case age < time.Hour:
		return 100
	case age < 2*time.Hour:
		return 80
	default:
		return 60
	}
}
