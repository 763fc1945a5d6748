package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/InjectiveLabs/suplog"
	cli "github.com/jawher/mow.cli"
	"github.com/xlab/closer"

	"github.com/InjectiveLabs/price-aggregator/internal/events"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

// probeCmd action validates target asset TOML file and runs one round for it, printing the report.
//
// $ price-aggregator probe <FILE>
func probeCmd(cmd *cli.Cmd) {
	var (
		evmRPC                    *string
		evmCallTimeout            *string
		websocketUrl              *string
		websocketHeader           *string
		websocketSubscribeMessage *string
	)

	tomlSource := cmd.StringArg("FILE", "", "Path to target TOML file with asset config")
	warmup := cmd.String(cli.StringOpt{
		Name:   "warmup",
		Desc:   "How long to wait for pushed prices before running the round",
		EnvVar: "ORACLE_PROBE_WARMUP",
		Value:  "5s",
	})

	initSourcesOptions(
		cmd,
		&evmRPC,
		&evmCallTimeout,
		&websocketUrl,
		&websocketHeader,
		&websocketSubscribeMessage,
	)

	cmd.Action = func() {
		// ensure a clean exit
		defer closer.Close()

		ctx, cancelFn := context.WithCancel(context.Background())
		closer.Bind(cancelFn)

		cfgBody, err := os.ReadFile(*tomlSource)
		if err != nil {
			log.WithField("file", *tomlSource).WithError(err).Fatalln("failed to read asset config")
			return
		}

		cfg, err := oracle.ParseAssetConfig(cfgBody)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"file": *tomlSource,
			}).Errorln("failed to parse asset config")
			return
		}

		adapters, err := initSourceAdapters(ctx, sourcesConfig{
			EVMRPC:         *evmRPC,
			EVMCallTimeout: duration(*evmCallTimeout, 10*time.Second),
			Websocket: types.WsConfig{
				WebsocketUrl:    *websocketUrl,
				WebsocketHeader: *websocketHeader,
				Message:         *websocketSubscribeMessage,
			},
		}, []*types.OracleConfig{cfg})
		if err != nil {
			log.WithError(err).Fatalln("failed to init source adapters")
			return
		}

		if _, ok := cfg.Sources[types.SourceAttested]; ok && len(*websocketUrl) > 0 {
			wait := duration(*warmup, 5*time.Second)
			log.Infof("waiting %s for attested prices", wait)
			time.Sleep(wait)
		}

		svc, err := oracle.NewService(adapters, oracle.WithSink(events.NewMultiSink()))
		if err != nil {
			log.WithError(err).Fatalln("failed to init oracle service")
			return
		}

		report, err := svc.Probe(ctx, cfg)
		if report == nil {
			log.WithError(err).Errorln("probe failed")
			return
		}

		res := oracle.NewProbeResponse(report, cfg.Decimals)
		if err != nil {
			res.Error = err.Error()
		}

		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(out))

		if err != nil {
			log.WithError(err).Warningln("round would not commit")
			return
		}

		log.Infof("Answer: %s", res.Aggregate.Price)
	}
}
