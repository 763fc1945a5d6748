package events

import (
	"context"
	"time"

	"cosmossdk.io/math"
	uuid "github.com/satori/go.uuid"
	"gopkg.in/guregu/null.v4"
)

type Kind string

const (
	KindSourceUpdate        Kind = "source_update"
	KindAggregateUpdate     Kind = "aggregate_update"
	KindOutlierDetected     Kind = "outlier_detected"
	KindSourceFailure       Kind = "source_failure"
	KindObservationRejected Kind = "observation_rejected"
	KindConfigChanged       Kind = "config_changed"
)

// Signal is an observability record. Optional fields are null when not applicable.
type Signal struct {
	ID           uuid.UUID   `json:"id"`
	Kind         Kind        `json:"kind"`
	Asset        string      `json:"asset"`
	RoundID      null.String `json:"roundId"`
	Source       null.String `json:"source"`
	Price        null.String `json:"price"`
	Confidence   null.Int    `json:"confidence"`
	DeviationBps null.Int    `json:"deviationBps"`
	Reason       null.String `json:"reason"`
	Timestamp    time.Time   `json:"timestamp"`
}

func NewSignal(kind Kind, asset string) *Signal {
	return &Signal{
		ID:        uuid.NewV4(),
		Kind:      kind,
		Asset:     asset,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Signal) WithRound(roundID string) *Signal {
	s.RoundID = null.NewString(roundID, roundID != "")
	return s
}

func (s *Signal) WithSource(source string) *Signal {
	s.Source = null.StringFrom(source)
	return s
}

func (s *Signal) WithPrice(price math.Int) *Signal {
	if !price.IsNil() {
		s.Price = null.StringFrom(price.String())
	}
	return s
}

func (s *Signal) WithConfidence(confidence int64) *Signal {
	s.Confidence = null.IntFrom(confidence)
	return s
}

func (s *Signal) WithDeviation(bps int64) *Signal {
	s.DeviationBps = null.IntFrom(bps)
	return s
}

func (s *Signal) WithReason(reason string) *Signal {
	s.Reason = null.StringFrom(reason)
	return s
}

// Sink receives signals. Emit must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, signal *Signal)
}

type multiSink []Sink

// NewMultiSink fans every signal out to all non-nil sinks in order.
func NewMultiSink(sinks ...Sink) Sink {
	result := make(multiSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			result = append(result, sink)
		}
	}

	return result
}

func (m multiSink) Emit(ctx context.Context, signal *Signal) {
	for _, sink := range m {
		sink.Emit(ctx, signal)
	}
}
