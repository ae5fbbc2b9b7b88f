// Package acceptor wires the suite registry, the execution engine and the
// report store into a runnable service: load suite definitions from disk,
// replay them against a target API, record history, repeat on an interval.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/autoapitester/api-acceptor/metrics"
	"github.com/autoapitester/api-acceptor/registry"
	"github.com/autoapitester/api-acceptor/reporting"
	"github.com/autoapitester/api-acceptor/runner"
	"github.com/autoapitester/api-acceptor/types"
)

// Acceptor runs every registered suite against the configured base URL.
type Acceptor struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	runner    *runner.Runner
	reporter  *reporting.Reporter
	scheduler Scheduler

	lastFailed bool

	shutdownCallback func(error) // signals application shutdown in run-once mode
}

// New creates an Acceptor from config.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Acceptor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debugw("creating acceptor",
		"suiteDir", config.SuiteDir,
		"baseURL", config.BaseURL,
		"reportDir", config.ReportDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Dir: config.SuiteDir,
		Log: config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	var client *http.Client
	if config.HTTPTimeout > 0 {
		client = &http.Client{Timeout: config.HTTPTimeout}
	}
	engine := runner.NewRunner(runner.Config{
		Client: client,
		Log:    config.Log,
	})

	reporter, err := reporting.NewReporter(reporting.Config{
		Dir: config.ReportDir,
		Log: config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reporter: %w", err)
	}

	return &Acceptor{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		runner:           engine,
		reporter:         reporter,
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs a sweep immediately and, unless in run-once mode, keeps
// re-running at the configured interval.
func (a *Acceptor) Start(ctx context.Context) error {
	a.ctx = ctx
	a.scheduler.RegisterCallback(a.runSweep)

	if a.config.RunOnce {
		a.config.Log.Info("starting api-acceptor in run-once mode")
	} else {
		a.config.Log.Infow("starting api-acceptor in continuous mode", "interval", a.config.RunInterval)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return NewRuntimeError(err)
	}

	if a.config.RunOnce {
		if a.lastFailed {
			return NewTestFailureError("one or more test cases failed")
		}
		if a.shutdownCallback != nil {
			go a.shutdownCallback(nil)
		}
	}
	return nil
}

// runSweep executes every registered suite once. Individual case failures
// never abort the sweep; a suite-level configuration error does, because
// nothing meaningful could run.
func (a *Acceptor) runSweep() error {
	start := time.Now()
	a.lastFailed = false

	var runs []suiteRun
	for _, def := range a.registry.Definitions() {
		// Each suite gets a fresh RunContext; captured tokens are
		// scoped to one suite run and never leak across suites.
		rc := runner.NewRunContext(a.config.BaseURL)
		run, err := a.runner.Run(a.ctx, rc, def)
		if err != nil {
			metrics.RecordError("suite_config")
			return fmt.Errorf("suite %q: %w", def.Name, err)
		}
		if err := a.reporter.Append(def.Name, run); err != nil {
			a.config.Log.Errorw("failed to record run", "suite", def.Name, "error", err)
			metrics.RecordError("report_write")
		}
		if run.Failed > 0 {
			a.lastFailed = true
		}
		runs = append(runs, suiteRun{name: def.Name, run: run})
	}

	a.printResultsTable(runs, time.Since(start))
	return nil
}

type suiteRun struct {
	name string
	run  *types.TestRun
}

// printResultsTable prints the sweep's results to the console.
func (a *Acceptor) printResultsTable(runs []suiteRun, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("API Acceptance Results (%.1fs)", elapsed.Seconds()))

	t.AppendHeader(table.Row{"Suite", "Case", "HTTP", "Status", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", AutoMerge: true},
		{Name: "Case", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "HTTP", Align: text.AlignRight},
		{Name: "Message", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	var total, passed, failed int
	for _, sr := range runs {
		for _, res := range sr.run.Results {
			t.AppendRow(table.Row{
				sr.name,
				res.TestName,
				res.HTTPStatus,
				resultString(res.Passed),
				res.Message,
			})
		}
		total += sr.run.Total
		passed += sr.run.Passed
		failed += sr.run.Failed
		t.AppendSeparator()
	}

	if failed == 0 {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{"TOTAL", fmt.Sprintf("%d cases", total), "", fmt.Sprintf("%d pass / %d fail", passed, failed), ""})
	t.Render()
}

func resultString(passed bool) string {
	if passed {
		return "✓ pass"
	}
	return "✗ fail"
}

// Stop stops the acceptor service.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.config.Log.Info("stopping api-acceptor")
	return a.scheduler.Stop()
}

// Stopped returns true if the acceptor service is stopped.
func (a *Acceptor) Stopped() bool {
	return a.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (a *Acceptor) WaitForShutdown(ctx context.Context) error {
	return a.scheduler.WaitForShutdown(ctx)
}
