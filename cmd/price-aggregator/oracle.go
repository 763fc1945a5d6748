package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	cli "github.com/jawher/mow.cli"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/xlab/closer"

	"github.com/InjectiveLabs/price-aggregator/internal/events"
	"github.com/InjectiveLabs/price-aggregator/internal/service/api"
	"github.com/InjectiveLabs/price-aggregator/internal/service/health"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/storage/memory"
	"github.com/InjectiveLabs/price-aggregator/internal/storage/postgres"
)

// oracleCmd action runs the service
//
// $ price-aggregator start
func oracleCmd(cmd *cli.Cmd) {
	var (
		// Assets
		assetsDir *string

		// Sources
		evmRPC                    *string
		evmCallTimeout            *string
		websocketUrl              *string
		websocketHeader           *string
		websocketSubscribeMessage *string

		// API
		apiListenAddress  *string
		apiRequestTimeout *string
		apiKey            *string

		// Storage and signals
		postgresDSN  *string
		redisAddr    *string
		redisChannel *string

		// Metrics
		statsdPrefix   *string
		statsdAddr     *string
		statsdStuckDur *string
		statsdMocking  *string
		statsdDisabled *string
	)

	initAssetsOptions(
		cmd,
		&assetsDir,
	)

	initSourcesOptions(
		cmd,
		&evmRPC,
		&evmCallTimeout,
		&websocketUrl,
		&websocketHeader,
		&websocketSubscribeMessage,
	)

	initAPIOptions(
		cmd,
		&apiListenAddress,
		&apiRequestTimeout,
		&apiKey,
	)

	initStorageOptions(
		cmd,
		&postgresDSN,
		&redisAddr,
		&redisChannel,
	)

	initStatsdOptions(
		cmd,
		&statsdPrefix,
		&statsdAddr,
		&statsdStuckDur,
		&statsdMocking,
		&statsdDisabled,
	)

	cmd.Action = func() {
		ctx, cancelFn := context.WithCancel(context.Background())
		// ensure a clean exit
		defer closer.Close()
		closer.Bind(cancelFn)

		startMetricsGathering(
			statsdPrefix,
			statsdAddr,
			statsdStuckDur,
			statsdMocking,
			statsdDisabled,
		)

		waitTimeout := duration(*svcWaitTimeout, time.Minute)

		configs, err := loadAssetConfigs(*assetsDir)
		if err != nil {
			log.WithError(err).Fatalln("failed to load asset configs")
			return
		}

		var (
			configStore    = memory.NewConfigStore()
			aggregateStore = memory.NewAggregateStore()
			svcOptions     []oracle.Option
			sinks          = []events.Sink{events.NewLogSink()}
		)

		if len(*postgresDSN) > 0 {
			store, err := initPostgresStore(ctx, *postgresDSN, waitTimeout)
			if err != nil {
				log.WithError(err).Fatalln("failed to init postgres store")
				return
			}

			configs, err = warmStart(ctx, store, aggregateStore, configs)
			if err != nil {
				log.WithError(err).Fatalln("failed to restore state from postgres")
				return
			}

			svcOptions = append(svcOptions, oracle.WithRecorder(store))
		}

		if len(*redisAddr) > 0 {
			client := redis.NewClient(&redis.Options{Addr: *redisAddr})

			pingCtx, cancelPing := context.WithTimeout(ctx, waitTimeout)
			err := client.Ping(pingCtx).Err()
			cancelPing()
			if err != nil {
				log.WithError(err).WithField("addr", *redisAddr).Fatalln("failed to connect to redis")
				return
			}

			redisSink := events.NewRedisSink(client, *redisChannel, 0)
			go redisSink.Run(ctx)

			closer.Bind(func() {
				_ = client.Close()
			})

			sinks = append(sinks, redisSink)
			log.WithField("channel", *redisChannel).Infoln("publishing signals to redis")
		}

		dialCtx, cancelDial := context.WithTimeout(ctx, waitTimeout)
		adapters, err := initSourceAdapters(dialCtx, sourcesConfig{
			EVMRPC:         *evmRPC,
			EVMCallTimeout: duration(*evmCallTimeout, 10*time.Second),
			Websocket: types.WsConfig{
				WebsocketUrl:    *websocketUrl,
				WebsocketHeader: *websocketHeader,
				Message:         *websocketSubscribeMessage,
			},
		}, configs)
		cancelDial()
		if err != nil {
			log.WithError(err).Fatalln("failed to init source adapters")
			return
		}

		svcOptions = append(svcOptions,
			oracle.WithStores(configStore, memory.NewObservationStore(), aggregateStore),
			oracle.WithSink(events.NewMultiSink(sinks...)),
		)

		svc, err := oracle.NewService(adapters, svcOptions...)
		if err != nil {
			log.Fatalln(err)
		}

		for _, cfg := range configs {
			if err := svc.ConfigureAsset(ctx, cfg); err != nil {
				log.WithError(err).WithField("asset", cfg.Asset).Errorln("failed to configure asset")
			}
		}

		closer.Bind(func() {
			svc.Close()
		})

		go func() {
			if err := svc.Start(ctx); err != nil {
				log.Errorln(err)

				// signal there that the app failed
				os.Exit(1)
			}
		}()

		if len(*apiListenAddress) > 0 {
			healthSvc := health.NewHealthService(svc, svc, log.WithField("svc", "health"), metrics.Tags{
				"svc": "health",
			})

			server := api.NewServer(api.Config{
				ListenAddress:  *apiListenAddress,
				RequestTimeout: duration(*apiRequestTimeout, 30*time.Second),
			}, oracle.NewAPIService(svc, *apiKey), healthSvc)

			closer.Bind(func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				_ = server.Shutdown(shutdownCtx)
			})

			go func() {
				if err := server.ListenAndServe(); err != nil {
					log.WithError(err).Fatalln("API server stopped")
				}
			}()
		}

		closer.Hold()
	}
}

// loadAssetConfigs reads every .toml file under dir. Broken files are logged and skipped.
func loadAssetConfigs(dir string) ([]*types.OracleConfig, error) {
	configs := make([]*types.OracleConfig, 0, 10)
	if len(dir) == 0 {
		log.Warningln("assets dir is not set, starting without configured assets")
		return configs, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		} else if d.IsDir() {
			return nil
		} else if filepath.Ext(path) != ".toml" {
			return nil
		}

		cfgBody, err := os.ReadFile(path)
		if err != nil {
			err = errors.Wrapf(err, "failed to read asset config")
			return err
		}

		cfg, err := oracle.ParseAssetConfig(cfgBody)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"filename": d.Name(),
			}).Errorln("failed to parse asset config")
			return nil
		}

		configs = append(configs, cfg)

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "assets dir is specified, but failed to read from it: %s", dir)
	}

	log.Infof("found %d asset configs", len(configs))
	return configs, nil
}

func initPostgresStore(ctx context.Context, dsn string, waitTimeout time.Duration) (*postgres.Store, error) {
	connCtx, cancelFn := context.WithTimeout(ctx, waitTimeout)
	defer cancelFn()

	pool, err := postgres.NewPool(connCtx, dsn)
	if err != nil {
		return nil, err
	}
	closer.Bind(pool.Close)

	if err := pool.Migrate(connCtx); err != nil {
		return nil, errors.Wrap(err, "failed to apply migrations")
	}

	log.Infoln("connected to postgres")
	return postgres.NewStore(pool), nil
}

// warmStart restores persisted aggregates and merges persisted configs with file ones.
// File configs win over persisted configs of the same asset.
func warmStart(
	ctx context.Context,
	store *postgres.Store,
	aggregates *memory.AggregateStore,
	fileConfigs []*types.OracleConfig,
) ([]*types.OracleConfig, error) {
	persisted, err := store.LoadConfigs(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fileConfigs))
	for _, cfg := range fileConfigs {
		seen[cfg.Asset] = struct{}{}
	}

	configs := fileConfigs
	for _, cfg := range persisted {
		if _, ok := seen[cfg.Asset]; !ok {
			configs = append(configs, cfg)
		}
	}

	restored, err := store.LoadAggregates(ctx)
	if err != nil {
		return nil, err
	}

	for _, agg := range restored {
		if err := aggregates.PutAggregate(ctx, agg); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"configs":    len(persisted),
		"aggregates": len(restored),
	}).Infoln("restored state from postgres")

	return configs, nil
}
