package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/query"
	"github.com/salesqa/salesqa/internal/querylog"
	"github.com/salesqa/salesqa/internal/retrieval"
)

type serviceFixture struct {
	retriever *fakeRetriever
	generator *scriptedGenerator
	executor  *scriptedExecutor
	text      *recordingText
	recorder  *memoryRecorder
	service   *Service
}

func newServiceFixture(t *testing.T, chunks []retrieval.Chunk, attempts ...query.Attempt) *serviceFixture {
	t.Helper()
	if len(attempts) == 0 {
		attempts = []query.Attempt{succeeded()}
	}
	f := &serviceFixture{
		retriever: &fakeRetriever{chunks: chunks},
		generator: &scriptedGenerator{sqls: []string{"SELECT 1", "SELECT 2"}},
		executor:  &scriptedExecutor{attempts: attempts},
		text:      &recordingText{answer: "answer"},
		recorder:  &memoryRecorder{},
	}
	service, err := NewService(f.retriever, f.generator, f.executor, f.text, Options{
		MaxRetries: DefaultMaxRetries,
		Recorder:   f.recorder,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	f.service = service
	return f
}

var sampleChunks = []retrieval.Chunk{
	{DocID: "metrics", Content: "매출은 공급가액 기준", Similarity: 0.82},
	{DocID: "business_rules", Content: "반품은 7일 이내", Similarity: 0.61},
}

func TestRunRAGQueryWithoutChunksSkipsGeneration(t *testing.T) {
	f := newServiceFixture(t, nil)

	response, err := f.service.RunRAGQuery(context.Background(), "  없는 문서?  ", nil)
	if err != nil {
		t.Fatalf("RunRAGQuery() error = %v", err)
	}
	want := RAGResponse{Answer: "관련 문서를 찾을 수 없습니다.", Sources: []Source{}}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	if len(f.text.prompts) != 0 {
		t.Fatalf("generation calls = %d, want 0", len(f.text.prompts))
	}
	if len(f.recorder.entries) != 1 || f.recorder.entries[0].Mode != querylog.ModeRAG {
		t.Fatalf("entries = %+v", f.recorder.entries)
	}
}

func TestRunRAGQueryComposesFromChunks(t *testing.T) {
	f := newServiceFixture(t, sampleChunks)
	turns := []history.Turn{history.UserTurn("이전 질문")}

	response, err := f.service.RunRAGQuery(context.Background(), "반품 기준은?", turns)
	if err != nil {
		t.Fatalf("RunRAGQuery() error = %v", err)
	}
	want := RAGResponse{Answer: "answer", Sources: []Source{
		{DocID: "metrics", Similarity: 0.82},
		{DocID: "business_rules", Similarity: 0.61},
	}}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	if f.retriever.counts[0] != retrieval.RAGContextCount {
		t.Fatalf("retrieval count = %d, want %d", f.retriever.counts[0], retrieval.RAGContextCount)
	}
	prompt := f.text.prompts[0]
	if !strings.Contains(prompt, "[metrics]\n매출은 공급가액 기준\n\n---\n\n[business_rules]") {
		t.Fatalf("prompt missing grounding context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "사용자: 이전 질문") {
		t.Fatalf("prompt missing history:\n%s", prompt)
	}
}

func TestRunQueriesRejectBlankQuestion(t *testing.T) {
	f := newServiceFixture(t, sampleChunks)

	if _, err := f.service.RunRAGQuery(context.Background(), " \t", nil); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("RunRAGQuery() error = %v", err)
	}
	if _, err := f.service.RunSQLQuery(context.Background(), "", nil); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if len(f.retriever.counts) != 0 {
		t.Fatal("blank question reached retrieval")
	}
}

func TestRunRAGQueryRetrievalFailureIsUpstream(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.retriever.err = errors.New("embedding quota")

	_, err := f.service.RunRAGQuery(context.Background(), "q", nil)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Stage != StageRetrieval {
		t.Fatalf("RunRAGQuery() error = %v", err)
	}
	if len(f.recorder.entries) != 1 || f.recorder.entries[0].Success {
		t.Fatalf("entries = %+v", f.recorder.entries)
	}
}

func TestRunRAGQueryGenerationFailureIsUpstream(t *testing.T) {
	f := newServiceFixture(t, sampleChunks)
	f.text.err = errors.New("503")

	_, err := f.service.RunRAGQuery(context.Background(), "q", nil)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Stage != StageGeneration {
		t.Fatalf("RunRAGQuery() error = %v", err)
	}
}

func TestRunSQLQuerySuccess(t *testing.T) {
	f := newServiceFixture(t, sampleChunks, succeeded(map[string]any{"total": 1000.0}))

	response, err := f.service.RunSQLQuery(context.Background(), "2024년 매출은?", nil)
	if err != nil {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if !response.Success || response.SQL != "SELECT 1" || response.RowCount != 1 || response.Answer != "answer" || response.Error != "" {
		t.Fatalf("response = %+v", response)
	}
	if f.retriever.counts[0] != retrieval.SQLContextCount {
		t.Fatalf("retrieval count = %d", f.retriever.counts[0])
	}
	if f.generator.requests[0].GroundingContext != retrieval.BuildContext(sampleChunks) {
		t.Fatalf("grounding context = %q", f.generator.requests[0].GroundingContext)
	}

	entry := f.recorder.entries[0]
	if entry.Mode != querylog.ModeSQL || entry.SQLGenerated != "SELECT 1" || !entry.Success || entry.Data == nil {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestRunSQLQueryExhaustedRetriesReportsLastError(t *testing.T) {
	f := newServiceFixture(t, nil, failed("DB 오류: first"), failed("DB 오류: second"))

	response, err := f.service.RunSQLQuery(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if response.Success || response.SQL != "SELECT 2" || response.Error != "DB 오류: second" || response.Data != nil {
		t.Fatalf("response = %+v", response)
	}
	if response.Attempts != 2 {
		t.Fatalf("attempts = %d", response.Attempts)
	}
	if len(f.text.prompts) != 1 || !strings.Contains(f.text.prompts[0], "결과: 오류: DB 오류: second") {
		t.Fatalf("failure was not explained: %v", f.text.prompts)
	}
	if f.recorder.entries[0].ErrorMessage != "DB 오류: second" {
		t.Fatalf("entry = %+v", f.recorder.entries[0])
	}
}

func TestRunSQLQueryExplanationFailureKeepsResult(t *testing.T) {
	f := newServiceFixture(t, nil, succeeded())
	f.text.err = errors.New("timeout")

	response, err := f.service.RunSQLQuery(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if !response.Success || response.Answer != "" || response.Data == nil {
		t.Fatalf("response = %+v", response)
	}
}

func TestRunSQLQueryGenerationFailureIsUpstream(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.generator.err = errors.New("model down")

	_, err := f.service.RunSQLQuery(context.Background(), "q", nil)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Stage != StageGeneration {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if len(f.executor.calls) != 0 {
		t.Fatal("executor ran after generation failure")
	}
}

func TestRunSQLQueryWithoutRecorder(t *testing.T) {
	service, err := NewService(&fakeRetriever{}, &scriptedGenerator{sqls: []string{"SELECT 1"}}, &scriptedExecutor{attempts: []query.Attempt{succeeded()}}, &recordingText{answer: "a"}, Options{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if _, err := service.RunSQLQuery(context.Background(), "q", nil); err != nil {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
}

func TestNewServiceZeroOptionsRetriesOnce(t *testing.T) {
	executor := &scriptedExecutor{attempts: []query.Attempt{failed("DB 오류: first"), succeeded()}}
	service, err := NewService(&fakeRetriever{}, &scriptedGenerator{sqls: []string{"SELECT 1", "SELECT 2"}}, executor, &recordingText{answer: "a"}, Options{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	response, err := service.RunSQLQuery(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if !response.Success || len(executor.calls) != DefaultMaxRetries+1 {
		t.Fatalf("RunSQLQuery() success = %v, executions = %d", response.Success, len(executor.calls))
	}
}

func TestNewServiceDisableRetryRunsOnce(t *testing.T) {
	executor := &scriptedExecutor{attempts: []query.Attempt{failed("DB 오류: first"), succeeded()}}
	service, err := NewService(&fakeRetriever{}, &scriptedGenerator{sqls: []string{"SELECT 1", "SELECT 2"}}, executor, &recordingText{answer: "a"}, Options{MaxRetries: 3, DisableRetry: true})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	response, err := service.RunSQLQuery(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("RunSQLQuery() error = %v", err)
	}
	if response.Success || len(executor.calls) != 1 {
		t.Fatalf("RunSQLQuery() success = %v, executions = %d", response.Success, len(executor.calls))
	}
}
