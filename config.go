package acceptor

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/autoapitester/api-acceptor/flags"
)

// Config holds the application configuration
type Config struct {
	SuiteDir    string        // Directory containing suite definition files
	BaseURL     string        // Base URL of the API under test
	ReportDir   string        // Directory for run-report history files
	RunInterval time.Duration // Interval between sweeps; 0 means run-once
	RunOnce     bool          // Exit after one sweep
	HTTPTimeout time.Duration // Per-request timeout for the engine's HTTP client
	Log         *zap.SugaredLogger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suiteDir := ctx.String(flags.SuiteDir.Name)
	if suiteDir == "" {
		return nil, errors.New("suite directory is required")
	}
	baseURL := ctx.String(flags.BaseURL.Name)
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	reportDir := ctx.String(flags.ReportDir.Name)
	if reportDir == "" {
		reportDir = "reports"
	}

	absSuiteDir, err := filepath.Abs(suiteDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite directory '%s': %w", suiteDir, err)
	}
	absReportDir, err := filepath.Abs(reportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", reportDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		SuiteDir:    absSuiteDir,
		BaseURL:     baseURL,
		ReportDir:   absReportDir,
		RunInterval: runInterval,
		RunOnce:     runOnce,
		HTTPTimeout: ctx.Duration(flags.HTTPTimeout.Name),
		Log:         log,
	}, nil
}
