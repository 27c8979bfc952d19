// Memoryagentd is the code index daemon: it watches registered source
// workspaces, keeps a vector index and a relation graph in sync with
// their files, and answers hybrid search queries over both.
//
// Configuration comes from ~/.config/memoryagent/config.yaml (or
// --config) with MEMORYAGENT_* environment overrides. See
// internal/config for the full schema.
//
// Usage:
//
//	# Start with defaults, watching nothing
//	memoryagentd
//
//	# Watch two repos from the start
//	memoryagentd --workspace ~/src/api --workspace ~/src/web
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/chunker"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/config"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/embeddings"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/engine"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/graphstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/logging"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/parser"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/pipeline"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/planner"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/scheduler"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/secrets"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/telemetry"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		roots      []string
	)

	cmd := &cobra.Command{
		Use:   "memoryagentd",
		Short: "Watch, index and search source workspaces",
		Long: "memoryagentd keeps a per-workspace vector index and relation graph\n" +
			"in sync with source trees and answers hybrid queries over both.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, roots)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/memoryagent/config.yaml)")
	cmd.Flags().StringArrayVar(&roots, "workspace", nil, "workspace root to watch (repeatable, adds to config)")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memoryagentd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n",
				version, gitCommit, buildDate)
		},
	}
}

// run wires the daemon bottom-up and blocks until the context is
// cancelled; shutdown then proceeds in reverse order of construction.
func run(ctx context.Context, configPath string, extraRoots []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := newLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "memoryagentd starting",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		RPS:      cfg.Embeddings.RPS,
		Burst:    cfg.Embeddings.Burst,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}

	vec, err := vectorstore.NewStore(cfg, provider.Dimension(), provider, logger.Underlying())
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}

	graph, err := graphstore.NewSQLiteStore(graphstore.SQLiteConfig{Path: cfg.GraphStore.Path}, logger.Underlying())
	if err != nil {
		return fmt.Errorf("initializing graph store: %w", err)
	}

	registry := workspace.NewRegistry(vec, graph, logger.Underlying())
	tracker := pipeline.NewTracker(graph)

	var redactor *secrets.Redactor
	if cfg.Engine.Redact {
		redactor, err = secrets.NewRedactor()
		if err != nil {
			return fmt.Errorf("initializing secret redactor: %w", err)
		}
	}
	classifier := pipeline.NewClassifier(pipeline.DefaultRules()...)

	newPipeline := func(budget int) (*pipeline.Service, error) {
		var opts []chunker.Option
		if budget > 0 {
			opts = append(opts, chunker.WithTokenBudget(budget))
		}
		return pipeline.New(pipeline.Deps{
			Chunker:    chunker.New(opts...),
			Embedder:   provider,
			Vector:     vec,
			Graph:      graph,
			Tracker:    tracker,
			Redactor:   redactor,
			Classifier: classifier,
			Logger:     logger,
		})
	}
	svc, err := newPipeline(0)
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}

	pl, err := planner.New(planner.Config{
		VectorWeight: cfg.Planner.VectorWeight,
		MaxDepth:     cfg.Planner.MaxDepth,
		CacheSize:    cfg.Planner.CacheSize,
	}, vec, graph, provider, tracker, logger)
	if err != nil {
		return fmt.Errorf("initializing planner: %w", err)
	}

	eng, err := engine.New(engine.Config{
		MaxFileSizeKB: cfg.Engine.MaxFileSizeKB,
		Concurrency:   cfg.Engine.Concurrency,
	}, engine.Deps{
		Registry:    registry,
		Parsers:     parser.NewRegistry(),
		Pipeline:    svc,
		Tracker:     tracker,
		Planner:     pl,
		NewPipeline: newPipeline,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Debounce:   cfg.Scheduler.Debounce.Duration(),
		Workers:    cfg.Scheduler.Workers,
		WatcherTTL: cfg.Scheduler.WatcherTTL.Duration(),
	}, eng, logger)
	eng.AttachScheduler(sched)

	roots := append(append([]string{}, cfg.Workspaces...), extraRoots...)
	for _, root := range roots {
		if err := registerAndIndex(ctx, eng, logger, root); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "workspace registration failed",
				zap.String("root", root), zap.Error(err))
		}
	}

	logger.Info(ctx, "memoryagentd ready", zap.Int("workspaces", len(roots)))
	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")

	return shutdown(logger, eng, vec, graph, provider, tel)
}

// registerAndIndex starts a watcher for root and runs the initial bulk
// index so searches answer immediately.
func registerAndIndex(ctx context.Context, eng *engine.Engine, logger *logging.Logger, root string) error {
	ws, err := eng.RegisterWorkspace(ctx, root)
	if err != nil {
		return err
	}

	report, err := eng.IndexDirectory(ctx, root, true)
	if err != nil {
		return fmt.Errorf("initial index: %w", err)
	}
	logger.Info(ctx, "workspace indexed",
		zap.String("workspace.id", ws.ID),
		zap.Int("indexed", report.FilesIndexed),
		zap.Int("skipped", report.FilesSkipped),
		zap.Int("failed", report.FilesFailed),
		zap.Duration("duration", report.Duration))
	return nil
}

// shutdown tears components down in reverse order of construction:
// watchers drain first so nothing writes to closing stores, telemetry
// flushes last so the teardown itself is traced.
func shutdown(logger *logging.Logger, eng *engine.Engine, vec vectorstore.Store, graph graphstore.Store, provider embeddings.Provider, tel *telemetry.Telemetry) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := eng.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := vec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("vector store: %w", err))
	}
	if err := graph.Close(); err != nil {
		errs = append(errs, fmt.Errorf("graph store: %w", err))
	}
	if err := provider.Close(); err != nil {
		errs = append(errs, fmt.Errorf("embedding provider: %w", err))
	}
	if err := tel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error(ctx, "shutdown finished with errors", zap.Error(err))
		return err
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}

// telemetryConfig maps the daemon config onto the telemetry package's.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.Insecure = cfg.Telemetry.Insecure
	tc.Sampling.Rate = cfg.Telemetry.SamplingRate
	tc.Metrics.ExportInterval = cfg.Telemetry.MetricInterval
	return tc
}

// newLogger maps the daemon config onto the logging package's, bridging
// to OTEL when telemetry is live.
func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.OTEL = tel.IsEnabled()
	return logging.NewLogger(lc, tel.LoggerProvider())
}
