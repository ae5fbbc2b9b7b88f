package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "API_ACCEPTOR"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	SuiteDir = &cli.StringFlag{
		Name:     "suites",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("SUITES"),
		Usage:    "Path to the directory containing suite definition files (*.yaml, *.yml, *.json)",
	}
	BaseURL = &cli.StringFlag{
		Name:     "base-url",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("BASE_URL"),
		Usage:    "Base URL of the API under test (eg. 'https://api.example.com')",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "reports",
		EnvVars: prefixEnvVars("REPORT_DIR"),
		Usage:   "Directory where run-report history files are written",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between sweeps (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	HTTPTimeout = &cli.DurationFlag{
		Name:    "http-timeout",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVars("HTTP_TIMEOUT"),
		Usage:   "Per-request timeout when calling the API under test",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
)

var requiredFlags = []cli.Flag{
	SuiteDir,
	BaseURL,
}

var optionalFlags = []cli.Flag{
	ReportDir,
	RunInterval,
	HTTPTimeout,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
