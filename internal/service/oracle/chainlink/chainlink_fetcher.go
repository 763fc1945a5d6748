package chainlink

import (
	"context"
	"strings"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

const aggregatorV3ABI = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

type chainlinkFetcher struct {
	caller      ethereum.ContractCaller
	abi         abi.ABI
	callTimeout time.Duration

	logger  log.Logger
	svcTags metrics.Tags
}

// NewFetcher returns a Fetcher reading AggregatorV3 contracts through caller,
// usually an *ethclient.Client.
func NewFetcher(caller ethereum.ContractCaller) (Fetcher, error) {
	fetcher, err := newFetcher(caller, 0)
	if err != nil {
		return nil, err
	}

	return fetcher, nil
}

// Dial connects to the EVM node at cfg.RPCURL. The returned func closes the connection.
func Dial(ctx context.Context, cfg Config) (Fetcher, func(), error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to dial EVM RPC %s", cfg.RPCURL)
	}

	fetcher, err := newFetcher(client, cfg.CallTimeout)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return fetcher, client.Close, nil
}

func newFetcher(caller ethereum.ContractCaller, callTimeout time.Duration) (*chainlinkFetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse AggregatorV3 ABI")
	}

	fetcher := &chainlinkFetcher{
		caller:      caller,
		abi:         parsed,
		callTimeout: callTimeout,
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": "chainlinkFetcher",
		}),
		svcTags: metrics.Tags{
			"provider": "chainlinkFetcher",
		},
	}

	return fetcher, nil
}

func (f *chainlinkFetcher) LatestRound(ctx context.Context, feed common.Address) (round *RoundData, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(f.svcTags)(&err)

	callData, err := f.abi.Pack("latestRoundData")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack latestRoundData call")
	}

	if f.callTimeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, f.callTimeout)
		defer cancelFn()
	}

	result, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &feed,
		Data: callData,
	}, nil)
	if err != nil {
		metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
			s.Count("feed_provider.chainlink.call_error.count", 1, tagSpec, 1)
		}, f.svcTags)
		return nil, errors.Wrapf(err, "latestRoundData call to %s failed", feed.Hex())
	}

	round = new(RoundData)
	if err := f.abi.UnpackIntoInterface(round, "latestRoundData", result); err != nil {
		return nil, errors.Wrap(err, "failed to unpack latestRoundData result")
	}

	f.logger.WithFields(log.Fields{
		"feed":            feed.Hex(),
		"roundId":         round.RoundId.String(),
		"answer":          round.Answer.String(),
		"updatedAt":       round.UpdatedAt.String(),
		"answeredInRound": round.AnsweredInRound.String(),
	}).Debugln("received Chainlink round")

	return round, nil
}
