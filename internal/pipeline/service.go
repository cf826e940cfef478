// Package pipeline answers sales questions in RAG mode (grounded on
// retrieved documents) and SQL mode (generated, validated and executed SQL
// with one corrective retry by default).
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/observability"
	"github.com/salesqa/salesqa/internal/querylog"
	"github.com/salesqa/salesqa/internal/retrieval"
)

// NoDocumentsAnswer is returned in RAG mode when no chunk clears the
// similarity threshold.
const NoDocumentsAnswer = "관련 문서를 찾을 수 없습니다."

type Retriever interface {
	Retrieve(ctx context.Context, question string, count int) ([]retrieval.Chunk, error)
}

type Recorder interface {
	Record(entry querylog.Entry)
}

type Source struct {
	DocID      string  `json:"doc_id"`
	Similarity float64 `json:"similarity"`
}

type RAGResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// SQLResponse carries Data on success and Error otherwise. Answer is empty
// only when the explanation call itself failed.
type SQLResponse struct {
	SQL      string           `json:"sql"`
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data,omitempty"`
	RowCount int              `json:"rowCount"`
	Error    string           `json:"error,omitempty"`
	Answer   string           `json:"answer"`
	Attempts int              `json:"-"`
}

type Options struct {
	// MaxRetries is the number of corrective regenerations after a failed
	// statement. Zero selects DefaultMaxRetries.
	MaxRetries int
	// DisableRetry runs each statement once regardless of MaxRetries.
	DisableRetry    bool
	SQLContextCount int
	RAGContextCount int
	Recorder        Recorder
	Logger          *slog.Logger
}

type Service struct {
	retriever  Retriever
	retry      *RetryController
	composer   *Composer
	recorder   Recorder
	logger     *slog.Logger
	maxRetries int
	sqlCount   int
	ragCount   int
}

func NewService(retriever Retriever, generator SQLGenerator, executor SQLExecutor, gen TextGenerator, opts Options) (*Service, error) {
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	retry, err := NewRetryController(generator, executor, logger)
	if err != nil {
		return nil, err
	}
	composer, err := NewComposer(gen)
	if err != nil {
		return nil, err
	}

	maxRetries := opts.MaxRetries
	switch {
	case opts.DisableRetry:
		maxRetries = 0
	case maxRetries <= 0:
		maxRetries = DefaultMaxRetries
	}
	sqlCount := opts.SQLContextCount
	if sqlCount <= 0 {
		sqlCount = retrieval.SQLContextCount
	}
	ragCount := opts.RAGContextCount
	if ragCount <= 0 {
		ragCount = retrieval.RAGContextCount
	}

	return &Service{
		retriever:  retriever,
		retry:      retry,
		composer:   composer,
		recorder:   opts.Recorder,
		logger:     logger,
		maxRetries: maxRetries,
		sqlCount:   sqlCount,
		ragCount:   ragCount,
	}, nil
}

// RunRAGQuery answers question from retrieved documents. Zero retrieved
// chunks is not an error: it yields NoDocumentsAnswer without a generation
// call.
func (s *Service) RunRAGQuery(ctx context.Context, question string, turns []history.Turn) (RAGResponse, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		observability.ObservePipelineQuery(querylog.ModeRAG, "invalid", time.Since(start))
		return RAGResponse{}, ErrInvalidQuestion
	}
	logger := observability.LoggerWithTrace(ctx, s.logger)

	chunks, err := s.retrieve(ctx, question, s.ragCount)
	if err != nil {
		return RAGResponse{}, s.failRAG(logger, question, start, err)
	}

	if len(chunks) == 0 {
		response := RAGResponse{Answer: NoDocumentsAnswer, Sources: []Source{}}
		s.record(querylog.Entry{
			Mode:     querylog.ModeRAG,
			Question: question,
			Answer:   response.Answer,
			Sources:  response.Sources,
			Success:  true,
		})
		observability.ObservePipelineQuery(querylog.ModeRAG, "no_context", time.Since(start))
		return response, nil
	}

	composeStart := time.Now()
	answer, err := s.composer.ComposeRAGAnswer(ctx, question, retrieval.BuildContext(chunks), turns)
	observability.ObserveStage(StageCompose, time.Since(composeStart))
	if err != nil {
		return RAGResponse{}, s.failRAG(logger, question, start, &UpstreamError{Stage: StageGeneration, Err: err})
	}

	sources := make([]Source, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, Source{DocID: chunk.DocID, Similarity: chunk.Similarity})
	}
	response := RAGResponse{Answer: answer, Sources: sources}
	s.record(querylog.Entry{
		Mode:     querylog.ModeRAG,
		Question: question,
		Answer:   answer,
		Sources:  sources,
		Success:  true,
	})
	observability.ObservePipelineQuery(querylog.ModeRAG, "success", time.Since(start))
	logger.Info("rag query answered", slog.Int("sources", len(sources)), slog.Duration("elapsed", time.Since(start)))
	return response, nil
}

// RunSQLQuery answers question by generating and executing SQL. A statement
// that still fails after the retries is reported in the response, not as an
// error; only invalid input and upstream failures return errors.
func (s *Service) RunSQLQuery(ctx context.Context, question string, turns []history.Turn) (SQLResponse, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		observability.ObservePipelineQuery(querylog.ModeSQL, "invalid", time.Since(start))
		return SQLResponse{}, ErrInvalidQuestion
	}
	logger := observability.LoggerWithTrace(ctx, s.logger)

	chunks, err := s.retrieve(ctx, question, s.sqlCount)
	if err != nil {
		return SQLResponse{}, s.failSQL(logger, question, "", start, err)
	}

	sqlStart := time.Now()
	outcome, err := s.retry.Run(ctx, question, retrieval.BuildContext(chunks), turns, s.maxRetries)
	observability.ObserveStage("sql", time.Since(sqlStart))
	if err != nil {
		return SQLResponse{}, s.failSQL(logger, question, outcome.SQL, start, err)
	}

	response := SQLResponse{
		SQL:      outcome.SQL,
		Success:  outcome.Attempt.Success,
		Attempts: outcome.Attempts,
	}
	if response.Success {
		response.Data = outcome.Attempt.Data
		if response.Data == nil {
			response.Data = []map[string]any{}
		}
		response.RowCount = outcome.Attempt.RowCount
	} else {
		response.Error = outcome.Attempt.Error
	}

	composeStart := time.Now()
	answer, err := s.composer.ComposeSQLAnswer(ctx, question, outcome.SQL, outcome.Attempt)
	observability.ObserveStage(StageCompose, time.Since(composeStart))
	if err != nil {
		logger.Warn("sql answer generation failed", slog.Any("error", err))
	} else {
		response.Answer = answer
	}

	entry := querylog.Entry{
		Mode:         querylog.ModeSQL,
		Question:     question,
		Answer:       response.Answer,
		SQLGenerated: response.SQL,
		Success:      response.Success,
		ErrorMessage: response.Error,
	}
	if response.Success {
		entry.Data = response.Data
	}
	s.record(entry)

	outcomeLabel := "success"
	if !response.Success {
		outcomeLabel = "sql_failed"
	}
	observability.ObservePipelineQuery(querylog.ModeSQL, outcomeLabel, time.Since(start))
	logger.Info("sql query finished",
		slog.Bool("success", response.Success),
		slog.Int("attempts", response.Attempts),
		slog.Int("rows", response.RowCount),
		slog.Duration("elapsed", time.Since(start)),
	)
	return response, nil
}

func (s *Service) retrieve(ctx context.Context, question string, count int) ([]retrieval.Chunk, error) {
	retrieveStart := time.Now()
	chunks, err := s.retriever.Retrieve(ctx, question, count)
	observability.ObserveStage(StageRetrieval, time.Since(retrieveStart))
	if err != nil {
		return nil, &UpstreamError{Stage: StageRetrieval, Err: err}
	}
	observability.ObserveRetrievalChunks(len(chunks))
	return chunks, nil
}

func (s *Service) failRAG(logger *slog.Logger, question string, start time.Time, err error) error {
	logger.Error("rag query failed", slog.Any("error", err))
	s.record(querylog.Entry{
		Mode:         querylog.ModeRAG,
		Question:     question,
		Success:      false,
		ErrorMessage: err.Error(),
	})
	observability.ObservePipelineQuery(querylog.ModeRAG, "error", time.Since(start))
	return err
}

func (s *Service) failSQL(logger *slog.Logger, question, sql string, start time.Time, err error) error {
	logger.Error("sql query failed", slog.Any("error", err))
	s.record(querylog.Entry{
		Mode:         querylog.ModeSQL,
		Question:     question,
		SQLGenerated: sql,
		Success:      false,
		ErrorMessage: err.Error(),
	})
	observability.ObservePipelineQuery(querylog.ModeSQL, "error", time.Since(start))
	return err
}

func (s *Service) record(entry querylog.Entry) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(entry)
}
