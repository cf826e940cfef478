package pipeline

import (
	"context"
	"sync"

	"github.com/salesqa/salesqa/internal/nl2sql"
	"github.com/salesqa/salesqa/internal/query"
	"github.com/salesqa/salesqa/internal/querylog"
	"github.com/salesqa/salesqa/internal/retrieval"
)

type fakeRetriever struct {
	chunks []retrieval.Chunk
	err    error
	counts []int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, count int) ([]retrieval.Chunk, error) {
	r.counts = append(r.counts, count)
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

type scriptedGenerator struct {
	sqls     []string
	err      error
	requests []nl2sql.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, request nl2sql.Request) (string, error) {
	g.requests = append(g.requests, request)
	if g.err != nil {
		return "", g.err
	}
	i := len(g.requests) - 1
	if i >= len(g.sqls) {
		i = len(g.sqls) - 1
	}
	return g.sqls[i], nil
}

type scriptedExecutor struct {
	attempts []query.Attempt
	calls    []string
}

func (e *scriptedExecutor) Execute(_ context.Context, sql string) query.Attempt {
	e.calls = append(e.calls, sql)
	i := len(e.calls) - 1
	if i >= len(e.attempts) {
		i = len(e.attempts) - 1
	}
	attempt := e.attempts[i]
	attempt.SQL = sql
	return attempt
}

type recordingText struct {
	answer  string
	err     error
	prompts []string
}

func (g *recordingText) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []querylog.Entry
}

func (r *memoryRecorder) Record(entry querylog.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func failed(err string) query.Attempt {
	return query.Attempt{Error: err}
}

func succeeded(rows ...map[string]any) query.Attempt {
	return query.Attempt{Success: true, Data: rows, RowCount: len(rows)}
}
