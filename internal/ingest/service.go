// Package ingest chunks source documents, embeds the chunks and stores them
// in rag_chunks for similarity search.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salesqa/salesqa/internal/observability"
	"github.com/salesqa/salesqa/internal/retrieval"
	"github.com/salesqa/salesqa/internal/retrieval/pgvector"
)

const (
	deleteChunksQuery = `DELETE FROM rag_chunks WHERE doc_id = $1`
	insertChunkQuery  = `
INSERT INTO rag_chunks (doc_id, chunk_idx, content, metadata, embedding)
VALUES ($1, $2, $3, $4::jsonb, $5::vector)`
)

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int
}

type Result struct {
	DocID  string
	Chunks int
}

type Service struct {
	db       *sql.DB
	embedder retrieval.Embedder
	logger   *slog.Logger
	cfg      Config
}

func NewService(db *sql.DB, embedder retrieval.Embedder, cfg Config, logger *slog.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Service{db: db, embedder: embedder, logger: logger, cfg: cfg}, nil
}

// IngestDocument replaces every stored chunk of doc.ID in one transaction, so
// re-running ingestion never duplicates rows.
func (s *Service) IngestDocument(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()
	chunks := ChunkText(doc.Text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)

	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		vectors, err = s.embedder.Embed(ctx, chunks)
		if err != nil {
			return Result{}, fmt.Errorf("embed %s: %w", doc.ID, err)
		}
		if len(vectors) != len(chunks) {
			return Result{}, fmt.Errorf("embed %s: got %d vectors for %d chunks", doc.ID, len(vectors), len(chunks))
		}
	}

	metadata, err := json.Marshal(map[string]string{"source": doc.Source})
	if err != nil {
		return Result{}, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin ingest tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, deleteChunksQuery, doc.ID); err != nil {
		return Result{}, fmt.Errorf("delete chunks for %s: %w", doc.ID, err)
	}
	for i, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, insertChunkQuery, doc.ID, i, chunk, string(metadata), pgvector.EncodeVector(vectors[i])); err != nil {
			return Result{}, fmt.Errorf("insert chunk %d for %s: %w", i, doc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit ingest tx: %w", err)
	}
	committed = true

	observability.AddIngestChunks(doc.ID, len(chunks))
	s.logger.Info("document ingested",
		slog.String("doc_id", doc.ID),
		slog.String("source", doc.Source),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return Result{DocID: doc.ID, Chunks: len(chunks)}, nil
}

// IngestSource ingests every document of source with bounded concurrency and
// returns results in source order. The first failure cancels the rest.
func (s *Service) IngestSource(ctx context.Context, source Source) ([]Result, error) {
	docs, err := source.Documents(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(docs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Concurrency)
	for i, doc := range docs {
		group.Go(func() error {
			result, err := s.IngestDocument(groupCtx, doc)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
