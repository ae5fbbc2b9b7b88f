package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	acceptor "github.com/autoapitester/api-acceptor"
	"github.com/autoapitester/api-acceptor/flags"
	"github.com/autoapitester/api-acceptor/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "api-acceptor"
	app.Usage = "API Acceptance Tester Service"
	app.Description = "api-acceptor replays recorded test suites against a live API and keeps a run history"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if acceptor.IsRuntimeError(err) {
				// Runtime errors mean the tool itself broke, exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else {
				// Test failures and anything unspecified exit with code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	log, err := newLogger(cliCtx.String(flags.LogLevel.Name))
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create logger: %w", err))
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := acceptor.NewConfig(cliCtx, log)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := service.New(log)
	svc.Start(ctx)
	defer svc.Shutdown()

	app, err := acceptor.New(ctx, cfg, Version, func(error) { stop() })
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create acceptor: %w", err))
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	if cfg.RunOnce {
		return nil
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to stop acceptor: %w", err))
	}
	return app.WaitForShutdown(shutdownCtx)
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
