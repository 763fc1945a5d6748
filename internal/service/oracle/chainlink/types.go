package chainlink

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Fetcher interface {
	LatestRound(ctx context.Context, feed common.Address) (*RoundData, error)
}

type Config struct {
	RPCURL      string
	CallTimeout time.Duration
}
