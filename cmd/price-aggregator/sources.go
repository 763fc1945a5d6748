package main

import (
	"context"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"
	"github.com/xlab/closer"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/asyncfeed"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/chainlink"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/stork"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

type sourcesConfig struct {
	EVMRPC         string
	EVMCallTimeout time.Duration
	Websocket      types.WsConfig
}

// initSourceAdapters connects every configured upstream and returns one adapter per source kind.
// Attested asset ids found in configs are subscribed right away.
func initSourceAdapters(
	ctx context.Context,
	cfg sourcesConfig,
	configs []*types.OracleConfig,
) ([]types.SourceAdapter, error) {
	adapters := []types.SourceAdapter{
		asyncfeed.NewRequestResponseFeed(),
		asyncfeed.NewDisputeWindowFeed(),
	}

	if len(cfg.EVMRPC) > 0 {
		fetcher, closeFn, err := chainlink.Dial(ctx, chainlink.Config{
			RPCURL:      cfg.EVMRPC,
			CallTimeout: cfg.EVMCallTimeout,
		})
		if err != nil {
			return nil, err
		}
		closer.Bind(closeFn)

		adapters = append(adapters, chainlink.NewChainlinkPriceFeed(fetcher))
		log.WithField("rpc", cfg.EVMRPC).Infoln("connected to EVM RPC for reference feeds")
	} else {
		log.Warningln("EVM RPC is not set, reference feeds are disabled")
	}

	if len(cfg.Websocket.WebsocketUrl) > 0 {
		var assetIDs []string
		for _, assetCfg := range configs {
			if handle, ok := assetCfg.Sources[types.SourceAttested]; ok {
				assetIDs = append(assetIDs, handle.Handle)
			}
		}

		fetcher := stork.NewFetcher(cfg.Websocket, assetIDs...)

		fetcherCtx, cancelFn := context.WithCancel(ctx)
		closer.Bind(cancelFn)

		go func() {
			if err := fetcher.Run(fetcherCtx); err != nil {
				log.WithError(err).Errorln("stork fetcher stopped, attested feeds will fail")
			}
		}()

		adapters = append(adapters, stork.NewStorkPriceFeed(fetcher))
		log.WithField("assets", len(assetIDs)).Infoln("started stork websocket fetcher")
	} else {
		log.Warningln("stork websocket URL is not set, attested feeds are disabled")
	}

	if len(adapters) == 2 {
		return nil, errors.New("no live source configured, set --evm-rpc and/or --websocket-url")
	}

	return adapters, nil
}
