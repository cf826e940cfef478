package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/query"
)

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const sqlAnswerGuidelines = `답변 지침:
- 고객명/제품명은 질문이 아닌 SQL 결과 데이터에 있는 실제 이름을 사용 (오타 교정 반영)
- 금액은 천 단위 콤마 사용 (예: 1,234,567원)
- 매출은 "원" 단위 표시
- 연도는 콤마 없이 그대로 표시 (예: 2019, 2020, 2024)
- 비율/퍼센트는 소수점 1자리까지 표시 (예: 12.3%)
- 간결하고 명확하게
- 결과 없으면 "해당 조건에 맞는 데이터가 없습니다" 안내
- SQL 오류가 있으면 원인 설명`

const ragAnswerGuidelines = `# 답변 지침
1. 문서에 있는 정보만 사용하세요
2. 명확하고 구체적으로 답변하세요
3. 관련 수치나 예시가 있다면 포함하세요
4. 문서에 없는 내용이면 "문서에서 해당 정보를 찾을 수 없습니다"라고 답변하세요
5. 질문이 이전 대화를 가리킬 때만 이전 대화 내용을 참고하세요`

// Composer turns pipeline results into natural-language answers. Each
// compose call makes exactly one generation request and returns its text
// unchanged.
type Composer struct {
	gen TextGenerator
}

func NewComposer(gen TextGenerator) (*Composer, error) {
	if gen == nil {
		return nil, errors.New("text generator is required")
	}
	return &Composer{gen: gen}, nil
}

func (c *Composer) ComposeSQLAnswer(ctx context.Context, question, sql string, attempt query.Attempt) (string, error) {
	prompt, err := SQLAnswerPrompt(question, sql, attempt)
	if err != nil {
		return "", err
	}
	return c.gen.Generate(ctx, prompt)
}

func (c *Composer) ComposeRAGAnswer(ctx context.Context, question, groundingContext string, turns []history.Turn) (string, error) {
	return c.gen.Generate(ctx, RAGAnswerPrompt(question, groundingContext, turns))
}

// SQLAnswerPrompt renders the rows as indented JSON on success and the error
// text otherwise.
func SQLAnswerPrompt(question, sql string, attempt query.Attempt) (string, error) {
	resultText := "오류: " + attempt.Error
	if attempt.Success {
		encoded, err := encodeRows(attempt.Data)
		if err != nil {
			return "", fmt.Errorf("encode result rows: %w", err)
		}
		resultText = encoded
	}

	var b strings.Builder
	b.WriteString("세일즈 데이터 분석 전문가로서 SQL 결과를 설명하세요.\n\n")
	fmt.Fprintf(&b, "질문: %s\nSQL: %s\n결과: %s\n\n", question, sql, resultText)
	b.WriteString(sqlAnswerGuidelines)
	b.WriteString("\n\n답변:")
	return b.String(), nil
}

func RAGAnswerPrompt(question, groundingContext string, turns []history.Turn) string {
	var b strings.Builder
	b.WriteString("당신은 세일즈 데이터 분석 전문가입니다. 아래 문서 내용을 바탕으로 질문에 답변해주세요.\n\n")
	b.WriteString("# 참고 문서\n")
	b.WriteString(groundingContext)
	b.WriteString("\n\n")
	if historyText := history.Format(turns, history.ModeRAG); historyText != "" {
		b.WriteString(historyText)
		b.WriteString("\n")
	}
	b.WriteString("# 질문\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(ragAnswerGuidelines)
	b.WriteString("\n\n답변:")
	return b.String()
}

func encodeRows(rows []map[string]any) (string, error) {
	if rows == nil {
		rows = []map[string]any{}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
