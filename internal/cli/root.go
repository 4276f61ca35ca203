package cli

import (
	"fmt"
	"os"

	"github.com/ogulcanaydogan/opsalert/internal/config"
	"github.com/ogulcanaydogan/opsalert/internal/metrics"
	"github.com/ogulcanaydogan/opsalert/pkg/alerts"
	"github.com/ogulcanaydogan/opsalert/pkg/batch"
	"github.com/ogulcanaydogan/opsalert/pkg/clock"
	"github.com/ogulcanaydogan/opsalert/pkg/evaluators"
	"github.com/ogulcanaydogan/opsalert/pkg/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "opsalert",
	Short: "opsalert - business alert evaluation and webhook dispatch",
	Long: `opsalert evaluates business rules (overdue payments, upcoming renewals,
expired services, program stages) against the operational database, records
each detected condition once as an alert, and delivers alerts to webhooks.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.opsalert/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config. Output goes to stderr so
// command output on stdout stays clean.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// app holds the wired components shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *storage.SQLStore
	dispatcher *alerts.Dispatcher
	runner     *batch.Runner
}

// initApp loads config and wires storage, rules, dispatcher and runner.
func initApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	clk := clock.SystemClock{}
	store, err := storage.Open(cfg.Storage.Driver, cfg.StorageDSN(), clk)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rules := evaluators.DefaultRules()
	if cfg.Rules.File != "" {
		rules, err = evaluators.LoadRules(cfg.Rules.File)
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	registry, err := evaluators.NewBuiltins(store, rules, clk, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	sender := alerts.NewWebhookSender(cfg.Webhooks.Secret, cfg.Webhooks.Timeout)
	dispatcher := alerts.NewDispatcher(store, sender, alerts.Endpoints{
		Alerts:          cfg.Webhooks.AlertsURL,
		StageChange:     cfg.Webhooks.StageChangeURL,
		PhaseActivation: cfg.Webhooks.PhaseActivationURL,
	}, clk, logger)

	runner := batch.NewRunner(registry.All(), store, dispatcher, clk, logger, cfg.Dispatch.Concurrency)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		runner:     runner,
	}, nil
}

// Close waits for best-effort deliveries and releases resources.
func (a *app) Close() {
	a.dispatcher.Wait()
	a.store.Close()
	_ = a.logger.Sync()
}
