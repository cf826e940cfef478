// Package history keeps the bounded conversation history shared by the
// query modes and renders it into prompt text.
package history

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxTurns bounds both the stored history and the rendered prompt section.
const MaxTurns = 10

type Mode string

const (
	ModeSQL Mode = "sql"
	ModeRAG Mode = "rag"
)

const (
	sqlSummaryRunes = 200
	ragSummaryRunes = 300
)

// Turn is one message of the conversation. SQL and RowCount are only set on
// assistant turns produced by the SQL mode.
type Turn struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	SQL      string `json:"sql,omitempty"`
	RowCount *int   `json:"rowCount,omitempty"`
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// SQLAssistantTurn records an assistant answer together with the statement it ran.
func SQLAssistantTurn(content, sql string, rowCount int) Turn {
	count := rowCount
	return Turn{Role: RoleAssistant, Content: content, SQL: sql, RowCount: &count}
}

// History is an append-only window of at most MaxTurns turns. It is not safe
// for concurrent use; each session owns its own History.
type History struct {
	turns []Turn
}

func New(turns ...Turn) *History {
	h := &History{}
	for _, turn := range turns {
		h.Append(turn)
	}
	return h
}

// Append adds turn and drops the oldest entries beyond MaxTurns.
func (h *History) Append(turn Turn) {
	h.turns = append(h.turns, turn)
	if overflow := len(h.turns) - MaxTurns; overflow > 0 {
		h.turns = append([]Turn(nil), h.turns[overflow:]...)
	}
}

func (h *History) Turns() []Turn {
	if h == nil {
		return nil
	}
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

func (h *History) Reset() {
	if h == nil {
		return
	}
	h.turns = nil
}

// Format renders turns for inclusion in a prompt. Only the last MaxTurns
// turns are rendered and an empty history renders as "".
func Format(turns []Turn, mode Mode) string {
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}

	limit := ragSummaryRunes
	if mode == ModeSQL {
		limit = sqlSummaryRunes
	}

	parts := make([]string, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == RoleUser {
			parts = append(parts, "사용자: "+turn.Content)
			continue
		}
		var b strings.Builder
		b.WriteString("시스템 답변 요약: ")
		b.WriteString(truncateRunes(turn.Content, limit))
		if mode == ModeSQL {
			if turn.SQL != "" {
				b.WriteString("\n[실행된 SQL]\n")
				b.WriteString(turn.SQL)
			}
			if turn.RowCount != nil {
				fmt.Fprintf(&b, "\n[결과 건수: %d건]", *turn.RowCount)
			}
		}
		parts = append(parts, b.String())
	}
	body := strings.Join(parts, "\n\n")

	if mode == ModeSQL {
		return "# 이전 대화 맥락\n" + body + "\n\n" + sqlContextRules
	}
	return "# 이전 대화\n" + body + "\n"
}

const sqlContextRules = `# 맥락 활용 규칙 (반드시 따를 것)
- 질문이 "그 기업들", "위 결과", "해당 거래처", "이 제품들"처럼 이전 결과를 가리키면
  직전에 실행된 SQL을 WITH(CTE)로 감싸 새 SQL 안에서 재사용하세요.
- 이전 결과의 값을 SQL에 직접 나열(하드코딩)하지 마세요.
- 예시: WITH prev_result AS ( <이전 SQL> ) SELECT ... FROM sales_clean WHERE customer_name IN (SELECT customer_name FROM prev_result)
- 이전 대화와 관계없는 새 질문이면 맥락을 무시하고 독립적인 SQL을 생성하세요.
`

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
