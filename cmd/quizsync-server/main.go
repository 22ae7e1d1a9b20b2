// Package main provides the reference quiz backend: task generation,
// evaluation, history and analytics over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/db"
	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/llm"
	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/server"
	"github.com/raphaelgruber/quizsync-go/internal/service"
)

const version = "0.1.0"

func main() {
	memory := flag.Bool("memory", false, "keep tasks and events in memory instead of SurrealDB")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	docsDir := flag.String("docs", "", "directory of markdown documents to load (default from config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *docsDir != "" {
		cfg.DocsDir = *docsDir
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel, os.Stderr)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("quizsync-server starting",
		"version", version,
		"port", cfg.ServerPort,
		"llm_provider", cfg.LLMProvider,
		"memory", *memory,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()

	var (
		store history.Store
		docs  service.DocumentStore
	)
	if *memory {
		store = history.NewMemoryStore()
		docs = service.NewMemoryDocuments()
	} else {
		dbClient, err := connectDB(ctx, cfg, logger, collector, *wipeDB)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("closing database connection")
			_ = dbClient.Close(context.Background())
		}()
		store, docs = dbClient, dbClient
	}

	n, err := service.LoadDocuments(ctx, docs, cfg.DocsDir, "default", logger)
	if err != nil {
		logger.Warn("failed to load documents", "dir", cfg.DocsDir, "error", err)
	} else {
		logger.Info("documents loaded", "dir", cfg.DocsDir, "count", n)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	model, err := llm.NewModel(initCtx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to create generation model", "error", err)
		os.Exit(1)
	}
	grader := llm.NewGrader(cfg, model, collector, logger)
	if grader == nil {
		logger.Warn("no grader configured; free-text evaluation disabled")
	}

	recorder := history.NewRecorder(store, logger)
	generation := service.NewGenerationService(docs, recorder,
		llm.NewGenerator(model, collector, logger),
		service.NewJobManager(logger), cfg.GenerationWorkers, logger)
	tasks := service.NewTaskService(store, recorder, grader, logger)
	analytics := service.NewAnalyticsService(store)

	srv := server.New(generation, tasks, analytics, logger)
	if err := srv.ListenAndServe(ctx, ":"+cfg.ServerPort, 10*time.Second); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped", "uptime_seconds", collector.Snapshot().UptimeSeconds)
}

func connectDB(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Collector, wipe bool) (*db.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, m)
	if err != nil {
		return nil, err
	}

	// Wipe database if requested (via flag or env var)
	if wipe || os.Getenv("QUIZSYNC_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			_ = dbClient.Close(ctx)
			return nil, err
		}
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		_ = dbClient.Close(ctx)
		return nil, err
	}
	return dbClient, nil
}
