package main

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/xlab/closer"
)

// readEnv is a special utility that reads `.env` file into actual environment variables
// of the current app, similar to `dotenv` Node package.
func readEnv() {
	if envdata, _ := os.ReadFile(".env"); len(envdata) > 0 {
		s := bufio.NewScanner(bytes.NewReader(envdata))
		for s.Scan() {
			line := strings.TrimSpace(s.Text())
			if len(line) == 0 || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			strValue := strings.Trim(parts[1], `"`)
			if err := os.Setenv(parts[0], strValue); err != nil {
				log.WithField("name", parts[0]).WithError(err).Warningln("failed to override ENV variable")
			}
		}
	}
}

func logLevel(s string) log.Level {
	switch s {
	case "1", "error":
		return log.ErrorLevel
	case "2", "warn":
		return log.WarnLevel
	case "3", "info":
		return log.InfoLevel
	case "4", "debug":
		return log.DebugLevel
	default:
		return log.FatalLevel
	}
}

func toBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "t", "yes":
		return true
	default:
		return false
	}
}

func duration(s string, defaults time.Duration) time.Duration {
	dur, err := time.ParseDuration(s)
	if err != nil {
		dur = defaults
	}

	return dur
}

// startMetricsGathering initializes the StatsD client in background, retrying until it succeeds.
func startMetricsGathering(
	statsdPrefix *string,
	statsdAddr *string,
	statsdStuckDur *string,
	statsdMocking *string,
	statsdDisabled *string,
) {
	if toBool(*statsdDisabled) {
		// initializes statsd client with a mock one with no-op enabled
		metrics.Disable()
		return
	}

	go func() {
		for {
			hostname, _ := os.Hostname()
			err := metrics.Init(*statsdAddr, checkStatsdPrefix(*statsdPrefix), &metrics.StatterConfig{
				EnvName:              *envName,
				HostnameTag:          hostname,
				StuckFunctionTimeout: duration(*statsdStuckDur, 5*time.Minute),
				MockingEnabled:       toBool(*statsdMocking) || *envName == "local",
			})
			if err != nil {
				log.WithError(err).Warningln("metrics init failed, will retry in 1 min")
				time.Sleep(time.Minute)
				continue
			}

			break
		}

		closer.Bind(func() {
			metrics.Close()
		})
	}()
}

func checkStatsdPrefix(s string) string {
	if !strings.HasSuffix(s, ".") {
		return s + "."
	}

	return s
}
