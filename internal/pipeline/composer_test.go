package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/query"
)

func TestSQLAnswerPromptWithRows(t *testing.T) {
	prompt, err := SQLAnswerPrompt("2024년 매출은?", "SELECT SUM(supply_amount) AS total FROM sales_clean", query.Attempt{
		Success: true,
		Data:    []map[string]any{{"total": 1234567.0, "name": "A&B"}},
	})
	if err != nil {
		t.Fatalf("SQLAnswerPrompt() error = %v", err)
	}
	for _, want := range []string{
		"세일즈 데이터 분석 전문가로서 SQL 결과를 설명하세요.",
		"질문: 2024년 매출은?\nSQL: SELECT SUM(supply_amount) AS total FROM sales_clean\n결과: [\n  {\n    \"name\": \"A&B\",\n    \"total\": 1234567\n  }\n]",
		"금액은 천 단위 콤마 사용 (예: 1,234,567원)",
		"연도는 콤마 없이 그대로 표시",
		"소수점 1자리까지",
		"해당 조건에 맞는 데이터가 없습니다",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "답변:") {
		t.Fatal("prompt does not end with answer marker")
	}
}

func TestSQLAnswerPromptWithEmptyRows(t *testing.T) {
	prompt, err := SQLAnswerPrompt("q", "SELECT 1", query.Attempt{Success: true})
	if err != nil {
		t.Fatalf("SQLAnswerPrompt() error = %v", err)
	}
	if !strings.Contains(prompt, "결과: []\n") {
		t.Fatalf("prompt = %s", prompt)
	}
}

func TestSQLAnswerPromptWithError(t *testing.T) {
	prompt, err := SQLAnswerPrompt("q", "SELECT x", query.Attempt{Error: "DB 오류: syntax error"})
	if err != nil {
		t.Fatalf("SQLAnswerPrompt() error = %v", err)
	}
	if !strings.Contains(prompt, "결과: 오류: DB 오류: syntax error\n") {
		t.Fatalf("prompt = %s", prompt)
	}
}

func TestRAGAnswerPrompt(t *testing.T) {
	prompt := RAGAnswerPrompt("반품 기준은?", "[business_rules]\n반품은 7일 이내", []history.Turn{
		history.UserTurn("배송 기준은?"),
		history.AssistantTurn("3일 이내 배송입니다."),
	})
	order := []string{
		"# 참고 문서\n[business_rules]\n반품은 7일 이내",
		"# 이전 대화\n사용자: 배송 기준은?",
		"# 질문\n반품 기준은?",
		"# 답변 지침",
		"문서에서 해당 정보를 찾을 수 없습니다",
		"이전 대화를 가리킬 때만",
	}
	last := -1
	for _, want := range order {
		idx := strings.Index(prompt, want)
		if idx <= last {
			t.Fatalf("prompt section %q missing or out of order:\n%s", want, prompt)
		}
		last = idx
	}
}

func TestRAGAnswerPromptWithoutHistory(t *testing.T) {
	prompt := RAGAnswerPrompt("q", "ctx", nil)
	if strings.Contains(prompt, "# 이전 대화") {
		t.Fatal("empty history rendered a section")
	}
}

func TestComposerReturnsTextVerbatim(t *testing.T) {
	gen := &recordingText{answer: "  1,234,567원입니다.\n"}
	composer, err := NewComposer(gen)
	if err != nil {
		t.Fatalf("NewComposer() error = %v", err)
	}
	answer, err := composer.ComposeSQLAnswer(context.Background(), "q", "SELECT 1", query.Attempt{Success: true})
	if err != nil {
		t.Fatalf("ComposeSQLAnswer() error = %v", err)
	}
	if answer != "  1,234,567원입니다.\n" || len(gen.prompts) != 1 {
		t.Fatalf("answer = %q, calls = %d", answer, len(gen.prompts))
	}
}
