package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeEngine struct {
	calls    int
	requests []Request
	result   Result
	err      error
}

func (f *fakeEngine) Execute(_ context.Context, request Request) (Result, error) {
	f.calls++
	f.requests = append(f.requests, request)
	return f.result, f.err
}

func TestExecuteSuccess(t *testing.T) {
	engine := &fakeEngine{result: Result{
		Columns: []string{"year", "sales"},
		Rows:    [][]any{{int64(2023), 1500.0}, {int64(2024), 1800.0}},
	}}
	executor, err := NewExecutor(engine, 200)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	attempt := executor.Execute(context.Background(), "SELECT year, sales FROM t")
	if !attempt.Success || attempt.Error != "" {
		t.Fatalf("attempt = %+v", attempt)
	}
	if attempt.RowCount != 2 {
		t.Fatalf("RowCount = %d", attempt.RowCount)
	}
	want := []map[string]any{
		{"year": int64(2023), "sales": 1500.0},
		{"year": int64(2024), "sales": 1800.0},
	}
	if diff := cmp.Diff(want, attempt.Data); diff != "" {
		t.Fatalf("Data mismatch (-want +got):\n%s", diff)
	}
	if engine.requests[0].RowLimit != 200 {
		t.Fatalf("RowLimit = %d", engine.requests[0].RowLimit)
	}
}

func TestExecuteEmptyResultIsSuccess(t *testing.T) {
	executor, _ := NewExecutor(&fakeEngine{result: Result{Columns: []string{"x"}}}, 0)
	attempt := executor.Execute(context.Background(), "SELECT x FROM t WHERE false")
	if !attempt.Success || attempt.RowCount != 0 || attempt.Data == nil {
		t.Fatalf("attempt = %+v", attempt)
	}
}

func TestExecuteReportsGuardFailureWithoutCallingEngine(t *testing.T) {
	engine := &fakeEngine{}
	executor, _ := NewExecutor(engine, 0)

	attempt := executor.Execute(context.Background(), "DELETE FROM sales_clean")
	if attempt.Success {
		t.Fatal("expected failure")
	}
	if attempt.Error != ErrForbiddenStatement.Error() {
		t.Fatalf("Error = %q", attempt.Error)
	}
	if attempt.SQL != "DELETE FROM sales_clean" {
		t.Fatalf("SQL = %q", attempt.SQL)
	}
	if engine.calls != 0 {
		t.Fatalf("engine calls = %d, want 0", engine.calls)
	}
}

func TestExecuteReportsEngineErrorWithPrefix(t *testing.T) {
	executor, _ := NewExecutor(&fakeEngine{err: errors.New(`column "revenue" does not exist`)}, 0)
	attempt := executor.Execute(context.Background(), "SELECT revenue FROM sales_clean")
	if attempt.Success {
		t.Fatal("expected failure")
	}
	if attempt.Error != `DB 오류: column "revenue" does not exist` {
		t.Fatalf("Error = %q", attempt.Error)
	}
}

func TestNewExecutorRequiresEngine(t *testing.T) {
	if _, err := NewExecutor(nil, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestResultRecordsPadsShortRows(t *testing.T) {
	records := Result{Columns: []string{"a", "b"}, Rows: [][]any{{1}}}.Records()
	if diff := cmp.Diff([]map[string]any{{"a": 1, "b": nil}}, records); diff != "" {
		t.Fatalf("Records() mismatch (-want +got):\n%s", diff)
	}
}
