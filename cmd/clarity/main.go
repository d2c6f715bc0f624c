package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarity-bi/clarity/config"
	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/logger"
	"github.com/clarity-bi/clarity/session"
)

// ============================================================================
// CLARITY CLI: warranty analytics server and offline reports
// ============================================================================

const version = "0.3.0"

// Exit codes.
const (
	exitFailure = 1
	exitUsage   = 2
	exitData    = 3
)

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCodeOf(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeOf(err))
	}
}

// app is what every subcommand shares once the root has loaded config.
type app struct {
	configDir    string
	envFile      string
	windowMonths int

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "clarity",
		Short:         "Warranty sales and claims analytics",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config", "", "Directory holding config.toml (default: search ., ./config, /etc/clarity)")
	pf.StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before config")
	pf.IntVar(&a.windowMonths, "window-months", -1, "Trailing date window applied after load, 0 = none (default: from config)")

	root.AddCommand(
		newServeCmd(a),
		newSummaryCmd(a),
		newDiscoverCmd(a),
		newPredictCmd(a),
		newReportCmd(a),
		newExportCmd(a),
	)
	return root
}

// init loads the env file, config and logger. Only serve logs to stdout;
// the offline commands keep stdout for their output.
func (a *app) init(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return withCode(exitUsage, fmt.Errorf("load %s: %w", a.envFile, err))
		}
	}

	var paths []string
	if a.configDir != "" {
		paths = []string{a.configDir}
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if a.windowMonths >= 0 {
		cfg.Engine.WindowMonths = a.windowMonths
	}

	logCfg := cfg.Log.Logger()
	if cmd.Name() != "serve" && logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("init logger: %w", err))
	}

	a.cfg = cfg
	a.log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))
	return nil
}

func (a *app) newSession() *session.Session {
	e := a.cfg.Engine
	return session.New(
		session.WithLogger(a.log),
		session.WithWindowMonths(e.WindowMonths),
		session.WithEngineOptions(e.Options()...),
		session.WithIngestOptions(dataset.WithSampleSize(a.cfg.Data.SampleSize)),
		session.WithTrendEpsilon(e.TrendEpsilon),
		session.WithAnomalyZ(e.AnomalyZ),
		session.WithForecastPeriods(e.ForecastPeriods),
		session.WithRecentLimit(e.RecentLimit),
	)
}
