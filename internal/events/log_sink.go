package events

import (
	"context"
	"fmt"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
)

type logSink struct {
	logger  log.Logger
	svcTags metrics.Tags
}

// NewLogSink writes signals to the structured log and counts them in statsd.
func NewLogSink() Sink {
	return &logSink{
		logger: log.WithField("svc", "events"),
		svcTags: metrics.Tags{
			"svc": "events",
		},
	}
}

func (l *logSink) Emit(_ context.Context, signal *Signal) {
	metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
		s.Count(fmt.Sprintf("events.%s.count", signal.Kind), 1, tagSpec, 1)
	}, l.svcTags)

	fields := log.Fields{
		"kind":  string(signal.Kind),
		"asset": signal.Asset,
	}
	if signal.RoundID.Valid {
		fields["round"] = signal.RoundID.String
	}
	if signal.Source.Valid {
		fields["source"] = signal.Source.String
	}
	if signal.Price.Valid {
		fields["price"] = signal.Price.String
	}
	if signal.Confidence.Valid {
		fields["confidence"] = signal.Confidence.Int64
	}
	if signal.DeviationBps.Valid {
		fields["deviation_bps"] = signal.DeviationBps.Int64
	}

	entry := l.logger.WithFields(fields)
	switch signal.Kind {
	case KindOutlierDetected, KindSourceFailure:
		entry.Warningln(signal.Reason.String)
	case KindObservationRejected:
		entry.Infoln(signal.Reason.String)
	default:
		entry.Debugln(string(signal.Kind))
	}
}
