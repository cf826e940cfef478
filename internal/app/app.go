// Package app wires configuration into a ready-to-use question pipeline.
// Binaries build one App and close it on shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/salesqa/salesqa/internal/config"
	"github.com/salesqa/salesqa/internal/llm"
	"github.com/salesqa/salesqa/internal/nl2sql"
	"github.com/salesqa/salesqa/internal/pipeline"
	"github.com/salesqa/salesqa/internal/postgres"
	"github.com/salesqa/salesqa/internal/query"
	duckdbengine "github.com/salesqa/salesqa/internal/query/duckdb"
	postgresengine "github.com/salesqa/salesqa/internal/query/postgres"
	"github.com/salesqa/salesqa/internal/querylog"
	querylogpostgres "github.com/salesqa/salesqa/internal/querylog/postgres"
	"github.com/salesqa/salesqa/internal/retrieval"
	"github.com/salesqa/salesqa/internal/retrieval/pgvector"
	"github.com/salesqa/salesqa/internal/storage"
	s3store "github.com/salesqa/salesqa/internal/storage/s3"
)

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	LLM       llm.Client
	Pipeline  *pipeline.Service
	QueryLogs *querylogpostgres.Repository
	Recorder  *querylog.Recorder

	store storage.ObjectStore
}

// New opens the database, the model client and, for the duckdb backend, the
// object store, then assembles the pipeline.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	db, err := postgres.Open(ctx, postgres.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, DB: db}

	client, err := llm.New(ctx, cfg.AI)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init %s client: %w", cfg.AI.Provider, err)
	}
	a.LLM = client

	engine, err := a.queryEngine(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	executor, err := query.NewExecutor(engine, cfg.SQL.RowLimit)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	retriever, err := retrieval.NewRetriever(client, pgvector.NewSearcher(db), cfg.Retrieval.Threshold)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	generator, err := nl2sql.NewGenerator(client)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.QueryLogs = querylogpostgres.NewRepository(db)
	opts := pipeline.Options{
		MaxRetries:      cfg.SQL.MaxRetries,
		DisableRetry:    cfg.SQL.MaxRetries == 0,
		SQLContextCount: cfg.Retrieval.SQLCount,
		RAGContextCount: cfg.Retrieval.RAGCount,
		Logger:          logger,
	}
	if cfg.QueryLog.Enabled {
		a.Recorder = querylog.NewRecorder(a.QueryLogs, querylog.RecorderConfig{
			QueueSize: cfg.QueryLog.QueueSize,
			Timeout:   cfg.QueryLog.Timeout,
		}, logger)
		opts.Recorder = a.Recorder
	}

	service, err := pipeline.NewService(retriever, generator, executor, client, opts)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Pipeline = service
	return a, nil
}

// ObjectStore connects to the configured bucket on first use.
func (a *App) ObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := s3store.New(ctx, s3store.ConfigFrom(a.Config.ObjectStore))
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	a.store = store
	return store, nil
}

// Ready reports whether the database answers within timeout.
func (a *App) Ready(ctx context.Context) error {
	return postgres.Ping(ctx, a.DB, time.Second)
}

// Close drains the query log queue before closing the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Recorder != nil {
		if err := a.Recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain query log: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) queryEngine(ctx context.Context) (query.Engine, error) {
	switch a.Config.SQL.Backend {
	case config.BackendDuckDB:
		store, err := a.ObjectStore(ctx)
		if err != nil {
			return nil, err
		}
		return duckdbengine.NewEngine(store, a.Config.SQL.SnapshotPrefix), nil
	case config.BackendPostgres, "":
		return postgresengine.NewEngine(a.DB, a.Config.SQL.StatementTimeout), nil
	default:
		return nil, fmt.Errorf("unknown sql backend %q", a.Config.SQL.Backend)
	}
}
