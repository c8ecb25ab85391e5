package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/config"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/workspace"
)

var (
	configPath string
	workers    int
	store      string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "janus-live",
	Short: "Live incremental Datalog evaluation and type checking",
	Long: `janus-live keeps Datalog programs evaluated and type checked as they change.

Every file is its own context: relations of the same name in different files
are distinct. Edits are applied incrementally, so only the consequences of a
change are recomputed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("workers") {
			cfg.Evaluation.Workers = workers
		}
		if cmd.Flags().Changed("store") {
			cfg.Evaluation.Store = store
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "janus-live.yaml", "configuration file")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker lanes per session (0 = one per CPU)")
	rootCmd.PersistentFlags().StringVar(&store, "store", "", "fact storage backend (memory, badger)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and evaluation annotations")

	rootCmd.AddCommand(checkCmd, evalCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = lc.Format
	if lc.Format == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}

// openWorkspace starts a workspace per the loaded configuration. The
// returned function closes it and stops the metrics endpoint.
func openWorkspace(ctx context.Context) (*workspace.Workspace, func(), error) {
	opts := workspace.Options{
		Workers:   cfg.Evaluation.Workers,
		Store:     cfg.Evaluation.Store,
		MaxRounds: cfg.Evaluation.MaxRounds,
		CacheSize: cfg.Planner.CacheSize,
		Logger:    logger,
	}
	if verbose || cfg.Logging.Annotations {
		opts.Annotations = annotations.NewForwarder(annotations.ConsoleHandler())
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts.EvalMetrics = harness.NewMetrics("janus_live_eval")
		opts.InferMetrics = harness.NewMetrics("janus_live_infer")
		if err := opts.EvalMetrics.RegisterAll(reg); err != nil {
			return nil, nil, err
		}
		if err := opts.InferMetrics.RegisterAll(reg); err != nil {
			return nil, nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("address", cfg.Metrics.Address))
	}

	w, err := workspace.New(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return w, func() {
		if err := w.Close(); err != nil {
			logger.Warn("closing workspace", zap.Error(err))
		}
		if srv != nil {
			shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}
	}, nil
}

func renderer() *annotations.RelationRenderer {
	return annotations.NewRelationRenderer(isatty.IsTerminal(os.Stdout.Fd()))
}
