package main

import cli "github.com/jawher/mow.cli"

// initGlobalOptions defines some global CLI options, that are useful for most parts of the app.
// Before adding option to there, consider moving it into the actual Cmd.
func initGlobalOptions(
	envName **string,
	appLogLevel **string,
	svcWaitTimeout **string,
) {
	*envName = app.String(cli.StringOpt{
		Name:   "e env",
		Desc:   "The environment name this app runs in. Used for metrics and error reporting.",
		EnvVar: "ORACLE_ENV",
		Value:  "local",
	})

	*appLogLevel = app.String(cli.StringOpt{
		Name:   "l log-level",
		Desc:   "Available levels: error, warn, info, debug.",
		EnvVar: "ORACLE_LOG_LEVEL",
		Value:  "info",
	})

	*svcWaitTimeout = app.String(cli.StringOpt{
		Name:   "svc-wait-timeout",
		Desc:   "Standard wait timeout for external services (e.g. EVM RPC, Postgres, Redis)",
		EnvVar: "ORACLE_SERVICE_WAIT_TIMEOUT",
		Value:  "1m",
	})
}

func initAssetsOptions(
	cmd *cli.Cmd,
	assetsDir **string,
) {
	*assetsDir = cmd.String(cli.StringOpt{
		Name:   "assets",
		Desc:   "Path to per-asset configuration files in TOML format",
		EnvVar: "ORACLE_ASSETS_DIR",
	})
}

func initSourcesOptions(
	cmd *cli.Cmd,
	evmRPC **string,
	evmCallTimeout **string,
	websocketUrl **string,
	websocketHeader **string,
	websocketSubscribeMessage **string,
) {
	*evmRPC = cmd.String(cli.StringOpt{
		Name:   "evm-rpc",
		Desc:   "EVM JSON-RPC endpoint used to read reference feed contracts",
		EnvVar: "ORACLE_EVM_RPC",
	})

	*evmCallTimeout = cmd.String(cli.StringOpt{
		Name:   "evm-call-timeout",
		Desc:   "Timeout of a single reference feed contract call",
		EnvVar: "ORACLE_EVM_CALL_TIMEOUT",
		Value:  "10s",
	})

	*websocketUrl = cmd.String(cli.StringOpt{
		Name:   "websocket-url",
		Desc:   "Attested feed (Stork) websocket URL",
		EnvVar: "STORK_WEBSOCKET_URL",
	})

	*websocketHeader = cmd.String(cli.StringOpt{
		Name:   "websocket-header",
		Desc:   "Attested feed (Stork) websocket basic auth token",
		EnvVar: "STORK_WEBSOCKET_HEADER",
	})

	*websocketSubscribeMessage = cmd.String(cli.StringOpt{
		Name:   "websocket-subscribe-message",
		Desc:   "Attested feed (Stork) subscribe message template, %s is replaced with the quoted asset id list",
		EnvVar: "STORK_WEBSOCKET_SUBSCRIBE_MESSAGE",
		Value:  `{"type":"subscribe","trace_id":"123","data":["%s"]}`,
	})
}

func initAPIOptions(
	cmd *cli.Cmd,
	apiListenAddress **string,
	apiRequestTimeout **string,
	apiKey **string,
) {
	*apiListenAddress = cmd.String(cli.StringOpt{
		Name:   "api-listen-address",
		Desc:   "HTTP API listen address. Empty disables the API.",
		EnvVar: "ORACLE_API_LISTEN_ADDRESS",
		Value:  "0.0.0.0:9924",
	})

	*apiRequestTimeout = cmd.String(cli.StringOpt{
		Name:   "api-request-timeout",
		Desc:   "HTTP API request timeout",
		EnvVar: "ORACLE_API_REQUEST_TIMEOUT",
		Value:  "30s",
	})

	*apiKey = cmd.String(cli.StringOpt{
		Name:   "api-key",
		Desc:   "API key required for configuring assets and probing. Empty disables these endpoints.",
		EnvVar: "ORACLE_API_KEY",
	})
}

func initStorageOptions(
	cmd *cli.Cmd,
	postgresDSN **string,
	redisAddr **string,
	redisChannel **string,
) {
	*postgresDSN = cmd.String(cli.StringOpt{
		Name:   "postgres-dsn",
		Desc:   "Postgres DSN used to persist configs, observations and aggregates. Empty keeps state in memory only.",
		EnvVar: "ORACLE_POSTGRES_DSN",
	})

	*redisAddr = cmd.String(cli.StringOpt{
		Name:   "redis-addr",
		Desc:   "Redis address to publish monitoring signals to. Empty disables publishing.",
		EnvVar: "ORACLE_REDIS_ADDR",
	})

	*redisChannel = cmd.String(cli.StringOpt{
		Name:   "redis-channel",
		Desc:   "Redis pub/sub channel for monitoring signals",
		EnvVar: "ORACLE_REDIS_CHANNEL",
		Value:  "price-aggregator.signals",
	})
}

// initStatsdOptions sets options for StatsD metrics.
func initStatsdOptions(
	cmd *cli.Cmd,
	statsdPrefix **string,
	statsdAddr **string,
	statsdStuckDur **string,
	statsdMocking **string,
	statsdDisabled **string,
) {
	*statsdPrefix = cmd.String(cli.StringOpt{
		Name:   "statsd-prefix",
		Desc:   "Specify StatsD compatible metrics prefix.",
		EnvVar: "ORACLE_STATSD_PREFIX",
		Value:  "price_aggregator",
	})

	*statsdAddr = cmd.String(cli.StringOpt{
		Name:   "statsd-addr",
		Desc:   "UDP address of a StatsD compatible metrics aggregator.",
		EnvVar: "ORACLE_STATSD_ADDR",
		Value:  "localhost:8125",
	})

	*statsdStuckDur = cmd.String(cli.StringOpt{
		Name:   "statsd-stuck-func",
		Desc:   "Sets a duration to consider a function to be stuck (e.g. in deadlock).",
		EnvVar: "ORACLE_STATSD_STUCK_DUR",
		Value:  "5m",
	})

	*statsdMocking = cmd.String(cli.StringOpt{
		Name:   "statsd-mocking",
		Desc:   "If enabled replaces statsd client with a mock one that simply logs values.",
		EnvVar: "ORACLE_STATSD_MOCKING",
		Value:  "false",
	})

	*statsdDisabled = cmd.String(cli.StringOpt{
		Name:   "statsd-disabled",
		Desc:   "Force disabling statsd reporting completely.",
		EnvVar: "ORACLE_STATSD_DISABLED",
		Value:  "true",
	})
}
