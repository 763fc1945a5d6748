package chainlink

import (
	"math/big"
	"time"
)

// RoundData mirrors the AggregatorV3Interface.latestRoundData() return tuple.
type RoundData struct {
	RoundId         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

func (r *RoundData) UpdatedTime() time.Time {
	return time.Unix(r.UpdatedAt.Int64(), 0)
}

// IsComplete reports whether the answer belongs to the latest round.
func (r *RoundData) IsComplete() bool {
	return r.AnsweredInRound.Cmp(r.RoundId) >= 0
}
