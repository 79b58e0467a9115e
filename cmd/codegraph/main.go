package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/discover"
	"github.com/codegraphhq/codegraph/internal/embed"
	"github.com/codegraphhq/codegraph/internal/pipeline"
	"github.com/codegraphhq/codegraph/internal/store"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config")
		repoPath    = flag.String("repo", "", "repository to index (overrides config)")
		dbPath      = flag.String("db", "", "SQLite database path (overrides config)")
		changedOnly = flag.Bool("changed-only", false, "reindex only files whose content changed")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("codegraph", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config err=%v", err)
	}
	if *repoPath != "" {
		cfg.RepoPath = *repoPath
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *changedOnly {
		cfg.ChangedOnly = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("store open err=%v", err)
	}
	defer s.Close()

	opts := pipeline.Options{
		ParseWorkers:     cfg.Pipeline.ParseWorkers,
		NodeBatchSize:    cfg.Pipeline.NodeBatchSize,
		EdgeBatchSize:    cfg.Pipeline.EdgeBatchSize,
		ResolveBatch:     cfg.Pipeline.ResolveBatch,
		ResolveWorkers:   cfg.Pipeline.ResolveWorkers,
		ChangedOnly:      cfg.ChangedOnly,
		EmbedBatchSize:   cfg.Embeddings.BatchSize,
		EmbedIdleTimeout: cfg.Embeddings.IdleTimeout,
		Discover: &discover.Options{
			IgnoreFile: cfg.IgnoreFile,
			MaxBytes:   cfg.MaxFileBytes,
		},
	}
	if cfg.Embeddings.Enabled {
		gen, err := embed.NewOpenAIGenerator(cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL, cfg.Embeddings.Model)
		if err != nil {
			log.Fatalf("embeddings err=%v", err)
		}
		opts.Embedder = gen
	}

	stats, err := pipeline.New(ctx, s, opts).Run(cfg.RepoPath)
	if err != nil {
		log.Fatalf("index err=%v", err)
	}

	slog.Info("index.summary",
		"files", stats.FilesProcessed,
		"nodes", stats.NodesCreated,
		"edges", stats.EdgesCreated,
		"resolved", stats.Resolution.Resolved,
		"unresolved", stats.Resolution.Unresolved,
		"ambiguous", stats.Resolution.Ambiguous,
		"embeddings", stats.EmbeddingsGenerated,
		"api_calls_saved", stats.APICallsSaved,
		"errors", stats.Errors)
}
