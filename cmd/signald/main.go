// Signald turns a stream of crypto news events into calibrated
// decision signals.
//
// The daemon exposes an HTTP ingestion endpoint, a health check, and
// Prometheus metrics. Configuration comes from an optional YAML file
// and SIGNALD_* environment variables.
//
// Usage:
//
//	# Start with defaults (embedded vector store)
//	signald
//
//	# Start against a remote store
//	SIGNALD_STORE__PROVIDER=qdrant SIGNALD_STORE__HOST=qdrant.local signald
//
//	# Explicit config file
//	signald -config /etc/signald/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/embeddings"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/logging"
	"github.com/fyrsmithlabs/signald/internal/memory"
	"github.com/fyrsmithlabs/signald/internal/pipeline"
	"github.com/fyrsmithlabs/signald/internal/quota"
	"github.com/fyrsmithlabs/signald/internal/reasoning"
	"github.com/fyrsmithlabs/signald/internal/server"
	"github.com/fyrsmithlabs/signald/internal/tools"
	"github.com/fyrsmithlabs/signald/internal/trace"
	"github.com/fyrsmithlabs/signald/internal/vectorstore"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  signald            Start the signald daemon\n")
			fmt.Fprintf(os.Stderr, "  signald version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("signald error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("signald %s\n", version)
	fmt.Printf("  commit: %s\n", gitCommit)
	fmt.Printf("  built:  %s\n", buildDate)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting signald",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	if err := trace.Init(version); err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			logger.Warn("trace shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewProvider(cfg.Embedding, logger.Named("embeddings"))
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}
	defer embedder.Close()

	store, err := vectorstore.NewStore(cfg.Store, cfg.Embedding.Dimension, logger.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	for _, collection := range []string{cfg.Store.EventCollection, cfg.Store.MemoryCollection} {
		if err := store.EnsureCollection(ctx, collection, cfg.Embedding.Dimension); err != nil {
			logger.Warn("collection bootstrap failed",
				zap.String("collection", collection),
				zap.Error(err))
		}
	}

	monitor := vectorstore.NewHealthMonitor(ctx, store, cfg.Store.HealthInterval.Duration(), logger.Named("health"))
	if err := monitor.RegisterCallback(func(healthy bool) {
		if healthy {
			logger.Info("store recovered, store-backed retrieval resumes",
				zap.Time("last_check", monitor.LastCheck()))
			return
		}
		logger.Warn("store unhealthy, retrieval degrades to local index",
			zap.Time("last_check", monitor.LastCheck()))
	}); err != nil {
		return fmt.Errorf("registering health callback: %w", err)
	}
	monitor.Start()
	defer monitor.Stop()

	fingerprinter := event.NewFingerprinter(embedder, event.FingerprinterConfig{
		EmbedTimeout: cfg.Embedding.Timeout.Duration(),
	}, logger.Named("fingerprint"))

	deduplicator, err := dedup.NewDeduplicator(store, cfg.Store.EventCollection, cfg.Dedup, logger.Named("dedup"))
	if err != nil {
		return fmt.Errorf("initializing deduplicator: %w", err)
	}

	localIndex := memory.NewLocalIndex(256)
	retriever := memory.NewRetriever([]memory.Source{
		memory.NewHealthGated(memory.NewVectorSource(store, cfg.Store.MemoryCollection, cfg.Retrieval), monitor),
		memory.NewHealthGated(memory.NewKeywordSource(store, cfg.Store.MemoryCollection, cfg.Retrieval), monitor),
		memory.NewLocalSource(localIndex, cfg.Retrieval),
	}, cfg.Retrieval, logger.Named("memory"))

	recorder, err := memory.NewRecorder(store, cfg.Store.MemoryCollection, localIndex, logger.Named("memory"))
	if err != nil {
		return fmt.Errorf("initializing recorder: %w", err)
	}

	// Without a key the planner runs on category rules alone.
	var backend reasoning.LLMClient
	if cfg.Reasoning.Backend.APIKey.IsSet() {
		backend, err = reasoning.NewLLMClient(cfg.Reasoning.Backend)
		if err != nil {
			return fmt.Errorf("initializing reasoning backend: %w", err)
		}
	}

	orchestrator := reasoning.NewOrchestrator(
		retriever,
		reasoning.NewPlanner(backend, cfg.Reasoning, logger.Named("planner")),
		reasoning.NewExecutor(
			tools.NewRegistry(tools.NewAdapters(cfg.Tools, logger.Named("tools"))...),
			quota.NewGovernor(cfg.Quota, logger.Named("quota")),
			cfg.Tools,
			logger.Named("executor"),
		),
		reasoning.NewSynthesizer(cfg.Reasoning, logger.Named("synthesis")),
		cfg.Reasoning,
		logger.Named("reasoning"),
	)

	p, err := pipeline.New(fingerprinter, deduplicator, orchestrator, recorder, store, cfg.Store.EventCollection, logger.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}

	srv := server.New(cfg.Server, p, logger)
	return srv.Start(ctx)
}
