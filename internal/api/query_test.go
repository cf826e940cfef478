package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/salesqa/salesqa/internal/config"
	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/pipeline"
	"github.com/salesqa/salesqa/internal/querylog"
)

func TestRAGQueryEndpointReturnsAnswerAndSources(t *testing.T) {
	service := &fakeQueryService{rag: pipeline.RAGResponse{
		Answer:  "매출은 supply_amount 기준입니다.",
		Sources: []pipeline.Source{{DocID: "metrics", Similarity: 0.82}},
	}}
	h := newTestHandler(t, Dependencies{Queries: service})

	rr := serve(h, http.MethodPost, "/v1/query/rag", `{"question":"  매출 기준은?  ","history":[{"role":"user","content":"안녕"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["question"] != "매출 기준은?" {
		t.Fatalf("body = %v", body)
	}
	sources, _ := body["sources"].([]any)
	if len(sources) != 1 {
		t.Fatalf("sources = %v", body["sources"])
	}
	if diff := cmp.Diff([]history.Turn{history.UserTurn("안녕")}, service.turns); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestRAGQueryEndpointEncodesEmptySources(t *testing.T) {
	h := newTestHandler(t, Dependencies{Queries: &fakeQueryService{rag: pipeline.RAGResponse{Answer: pipeline.NoDocumentsAnswer}}})

	rr := serve(h, http.MethodPost, "/v1/query/rag", `{"question":"q"}`)
	if !strings.Contains(rr.Body.String(), `"sources":[]`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestSQLQueryEndpointIncludesEmptyDataOnSuccess(t *testing.T) {
	h := newTestHandler(t, Dependencies{Queries: &fakeQueryService{sql: pipeline.SQLResponse{
		SQL:     "SELECT 1 WHERE false",
		Success: true,
		Data:    []map[string]any{},
		Answer:  "결과가 없습니다.",
	}}})

	rr := serve(h, http.MethodPost, "/v1/query/sql", `{"question":"q"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"data":[]`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), `"error"`) {
		t.Fatalf("unexpected error field: %s", rr.Body.String())
	}
}

func TestSQLQueryEndpointReportsFailedStatement(t *testing.T) {
	h := newTestHandler(t, Dependencies{Queries: &fakeQueryService{sql: pipeline.SQLResponse{
		SQL:     "SELECT revenue FROM sales_clean",
		Success: false,
		Error:   `DB 오류: column "revenue" does not exist`,
		Answer:  "revenue 컬럼이 없어 조회하지 못했습니다.",
	}}})

	rr := serve(h, http.MethodPost, "/v1/query/sql", `{"question":"q"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false || body["error"] == nil {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["data"]; ok {
		t.Fatalf("data should be absent on failure: %v", body)
	}
}

func TestQueryEndpointsRejectEmptyQuestion(t *testing.T) {
	service := &fakeQueryService{}
	h := newTestHandler(t, Dependencies{Queries: service})

	for _, path := range []string{"/v1/query/rag", "/v1/query/sql"} {
		rr := serve(h, http.MethodPost, path, `{"question":"   "}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
		if body := decodeBody(t, rr); body["error_code"] != "QUESTION_REQUIRED" {
			t.Fatalf("%s error_code = %v", path, body["error_code"])
		}
	}
	if service.calls != 0 {
		t.Fatalf("pipeline calls = %d", service.calls)
	}
}

func TestQueryEndpointRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(t, Dependencies{Queries: &fakeQueryService{}})

	for _, payload := range []string{`{"question":`, `{"question":"q","sql":"DROP TABLE x"}`} {
		rr := serve(h, http.MethodPost, "/v1/query/sql", payload)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("payload %q status = %d", payload, rr.Code)
		}
		if body := decodeBody(t, rr); body["error_code"] != "INVALID_JSON" {
			t.Fatalf("payload %q error_code = %v", payload, body["error_code"])
		}
	}
}

func TestQueryEndpointMapsUpstreamErrorTo502(t *testing.T) {
	h := newTestHandler(t, Dependencies{Queries: &fakeQueryService{
		err: &pipeline.UpstreamError{Stage: pipeline.StageRetrieval, Err: errors.New("embedding quota exceeded")},
	}})

	rr := serve(h, http.MethodPost, "/v1/query/rag", `{"question":"q"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "UPSTREAM_FAILED" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
	extra, _ := body["context"].(map[string]any)
	if extra["stage"] != pipeline.StageRetrieval {
		t.Fatalf("context = %v", body["context"])
	}
}

func TestQueryEndpointAppliesQueryTimeout(t *testing.T) {
	service := &fakeQueryService{}
	h := newTestHandler(t, Dependencies{Queries: service, QueryTimeout: time.Minute})

	serve(h, http.MethodPost, "/v1/query/sql", `{"question":"q"}`)
	if !service.hadDeadline {
		t.Fatal("expected pipeline context to carry a deadline")
	}
}

func TestQueryEndpointWithoutPipelineReturns501(t *testing.T) {
	h := newTestHandler(t, Dependencies{})
	rr := serve(h, http.MethodPost, "/v1/query/rag", `{"question":"q"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQueryLogsEndpointParsesFilter(t *testing.T) {
	created := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	reader := &fakeQueryLogReader{page: querylog.Page{
		Entries: []querylog.Entry{{ID: "a1", Mode: querylog.ModeSQL, Question: "q", Success: true, CreatedAt: created}},
		Total:   41,
		Limit:   10,
		Offset:  20,
	}}
	h := newTestHandler(t, Dependencies{QueryLogs: reader})

	rr := serve(h, http.MethodGet, "/v1/query-logs?mode=sql&limit=10&offset=20&from=2025-03-01&to=2025-03-02", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if reader.filter.Mode != querylog.ModeSQL || reader.filter.Limit != 10 || reader.filter.Offset != 20 {
		t.Fatalf("filter = %+v", reader.filter)
	}
	if reader.filter.From == nil || reader.filter.From.Day() != 1 || reader.filter.To == nil || reader.filter.To.Day() != 2 {
		t.Fatalf("filter dates = %v %v", reader.filter.From, reader.filter.To)
	}

	var body queryLogsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if !body.Success || body.Total != 41 || len(body.Data) != 1 || body.Data[0].ID != "a1" {
		t.Fatalf("body = %+v", body)
	}
}

func TestQueryLogsEndpointTreatsMalformedNumbersAsDefaults(t *testing.T) {
	reader := &fakeQueryLogReader{}
	h := newTestHandler(t, Dependencies{QueryLogs: reader})

	rr := serve(h, http.MethodGet, "/v1/query-logs?limit=abc&offset=-", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if reader.filter.Limit != 0 || reader.filter.Offset != 0 {
		t.Fatalf("filter = %+v", reader.filter)
	}
	if !strings.Contains(rr.Body.String(), `"data":[]`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestQueryLogsEndpointRejectsBadDate(t *testing.T) {
	h := newTestHandler(t, Dependencies{QueryLogs: &fakeQueryLogReader{}})
	rr := serve(h, http.MethodGet, "/v1/query-logs?from=03/01/2025", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQueryLogsEndpointStorageFailure(t *testing.T) {
	h := newTestHandler(t, Dependencies{QueryLogs: &fakeQueryLogReader{err: errors.New("connection refused")}})
	rr := serve(h, http.MethodGet, "/v1/query-logs", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func newTestHandler(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	cfg, err := config.Load("salesqa-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, deps)
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}

type fakeQueryService struct {
	rag         pipeline.RAGResponse
	sql         pipeline.SQLResponse
	err         error
	calls       int
	turns       []history.Turn
	hadDeadline bool
}

func (f *fakeQueryService) RunRAGQuery(ctx context.Context, _ string, turns []history.Turn) (pipeline.RAGResponse, error) {
	f.calls++
	f.turns = turns
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return pipeline.RAGResponse{}, f.err
	}
	return f.rag, nil
}

func (f *fakeQueryService) RunSQLQuery(ctx context.Context, _ string, turns []history.Turn) (pipeline.SQLResponse, error) {
	f.calls++
	f.turns = turns
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return pipeline.SQLResponse{}, f.err
	}
	return f.sql, nil
}

type fakeQueryLogReader struct {
	page   querylog.Page
	err    error
	filter querylog.Filter
}

func (f *fakeQueryLogReader) List(_ context.Context, filter querylog.Filter) (querylog.Page, error) {
	f.filter = filter
	if f.err != nil {
		return querylog.Page{}, f.err
	}
	return f.page, nil
}
