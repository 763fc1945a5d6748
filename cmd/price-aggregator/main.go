package main

import (
	"fmt"
	"os"

	log "github.com/InjectiveLabs/suplog"
	cli "github.com/jawher/mow.cli"

	"github.com/InjectiveLabs/price-aggregator/version"
)

var app = cli.App("price-aggregator", "Multi-source price oracle aggregator with outlier rejection and confidence scoring.")

var (
	envName        *string
	appLogLevel    *string
	svcWaitTimeout *string
)

func main() {
	readEnv()
	initGlobalOptions(
		&envName,
		&appLogLevel,
		&svcWaitTimeout,
	)

	app.Before = func() {
		log.DefaultLogger.SetLevel(logLevel(*appLogLevel))
	}

	app.Command("start", "Starts the aggregator rounds and the HTTP API.", oracleCmd)
	app.Command("probe", "Runs one round for an asset TOML config without committing, then prints the report.", probeCmd)
	app.Command("version", "Print the version information and exit.", versionCmd)

	_ = app.Run(os.Args)
}

func versionCmd(c *cli.Cmd) {
	c.Action = func() {
		fmt.Println(version.Version())
	}
}
