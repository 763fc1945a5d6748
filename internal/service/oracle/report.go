package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

// RoundReport describes what happened to every source during one update round.
type RoundReport struct {
	RoundID   string
	Asset     string
	StartedAt time.Time

	Accepted  []*types.PriceObservation
	Rejected  []*RejectedObservation
	Failures  []*types.SourceFailure
	Aggregate *types.AggregatedPrice

	// Committed is true once the aggregate replaced the previous one.
	Committed bool
}

type RejectedObservation struct {
	Observation *types.PriceObservation
	Rejection   *types.RejectionError
}

// Outliers returns the rejected observations flagged as outliers.
func (r *RoundReport) Outliers() []*types.PriceObservation {
	var outliers []*types.PriceObservation
	for _, rejected := range r.Rejected {
		if rejected.Observation.IsOutlier {
			outliers = append(outliers, rejected.Observation)
		}
	}

	return outliers
}

func configSummary(cfg *types.OracleConfig) string {
	sources := make([]string, 0, len(cfg.Sources))
	for _, kind := range cfg.EnabledSources() {
		sources = append(sources, fmt.Sprintf("%s:%s", kind, cfg.Sources[kind].Provider))
	}

	return fmt.Sprintf("heartbeat=%s deviation=%dbps interval=%s active=%v sources=[%s]",
		cfg.Heartbeat, cfg.DeviationThreshold, cfg.UpdateInterval, cfg.Active, strings.Join(sources, ","))
}
