package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/nl2sql"
	"github.com/salesqa/salesqa/internal/observability"
	"github.com/salesqa/salesqa/internal/query"
)

const DefaultMaxRetries = 1

type SQLGenerator interface {
	Generate(ctx context.Context, request nl2sql.Request) (string, error)
}

type SQLExecutor interface {
	Execute(ctx context.Context, sql string) query.Attempt
}

// Outcome is the final attempt of a run. Earlier attempts are not kept.
type Outcome struct {
	SQL      string
	Attempt  query.Attempt
	Attempts int
}

type RetryController struct {
	generator SQLGenerator
	executor  SQLExecutor
	logger    *slog.Logger
}

func NewRetryController(generator SQLGenerator, executor SQLExecutor, logger *slog.Logger) (*RetryController, error) {
	if generator == nil {
		return nil, errors.New("sql generator is required")
	}
	if executor == nil {
		return nil, errors.New("sql executor is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RetryController{generator: generator, executor: executor, logger: logger}, nil
}

// Run makes up to maxRetries+1 generate/execute attempts and stops at the
// first success. Each retry sees the previous attempt's error text as its
// hint. Rejected or failed statements are retried; a generation failure is
// returned as an *UpstreamError.
func (c *RetryController) Run(ctx context.Context, question, groundingContext string, turns []history.Turn, maxRetries int) (Outcome, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	logger := observability.LoggerWithTrace(ctx, c.logger)

	var outcome Outcome
	lastError := ""
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			observability.IncrementSQLRetry()
		}
		sql, err := c.generator.Generate(ctx, nl2sql.Request{
			Question:         question,
			GroundingContext: groundingContext,
			History:          turns,
			ErrorHint:        lastError,
		})
		if err != nil {
			return Outcome{}, &UpstreamError{Stage: StageGeneration, Err: err}
		}

		result := c.executor.Execute(ctx, sql)
		observability.ObserveSQLAttempt(result.Success)
		outcome = Outcome{SQL: sql, Attempt: result, Attempts: attempt + 1}
		if result.Success {
			return outcome, nil
		}

		lastError = result.Error
		logger.Info("sql attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries+1),
			slog.String("error", result.Error),
		)
	}
	return outcome, nil
}
