// Package chat runs the interactive question loop used by `salesqa chat`.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/pipeline"
)

type QueryService interface {
	RunRAGQuery(ctx context.Context, question string, turns []history.Turn) (pipeline.RAGResponse, error)
	RunSQLQuery(ctx context.Context, question string, turns []history.Turn) (pipeline.SQLResponse, error)
}

var exitWords = map[string]bool{"exit": true, "quit": true, "q": true, "종료": true}

// Session keeps one conversation. Each answered question adds a user turn
// and an assistant turn; failed questions leave the history unchanged.
type Session struct {
	Mode    history.Mode
	Queries QueryService
	In      io.Reader
	Out     io.Writer

	history *history.History
}

func (s *Session) Run(ctx context.Context) error {
	if s.Queries == nil {
		return fmt.Errorf("query service is required")
	}
	if s.Mode != history.ModeRAG && s.Mode != history.ModeSQL {
		return fmt.Errorf("unknown chat mode %q", s.Mode)
	}
	if s.history == nil {
		s.history = history.New()
	}
	s.banner()

	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		s.printf("질문: ")
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			s.printf("\n종료합니다.\n\n")
			return nil
		}
		s.ask(ctx, input)
	}
	return scanner.Err()
}

// Turns returns the current history, oldest first.
func (s *Session) Turns() []history.Turn {
	return s.history.Turns()
}

func (s *Session) ask(ctx context.Context, question string) {
	prior := s.history.Turns()
	switch s.Mode {
	case history.ModeRAG:
		s.printf("\n처리 중...\n")
		response, err := s.Queries.RunRAGQuery(ctx, question, prior)
		if err != nil {
			s.printf("\n오류: %v\n\n", err)
			return
		}
		s.printf("\n%s\n", response.Answer)
		for _, source := range response.Sources {
			s.printf("  - %s (%.3f)\n", source.DocID, source.Similarity)
		}
		s.printf("\n")
		s.history.Append(history.UserTurn(question))
		s.history.Append(history.AssistantTurn(response.Answer))
	case history.ModeSQL:
		s.printf("\n분석 중...\n")
		response, err := s.Queries.RunSQLQuery(ctx, question, prior)
		if err != nil {
			s.printf("\n오류: %v\n\n", err)
			return
		}
		s.printf("SQL: %s\n\n", response.SQL)
		s.history.Append(history.UserTurn(question))
		if !response.Success {
			s.printf("실행 실패: %s\n\n", response.Error)
			s.history.Append(history.AssistantTurn("오류: " + response.Error))
			return
		}
		s.printf("%s\n\n", response.Answer)
		s.history.Append(history.SQLAssistantTurn(response.Answer, response.SQL, response.RowCount))
	}
}

func (s *Session) banner() {
	switch s.Mode {
	case history.ModeRAG:
		s.printf("\n세일즈 RAG 챗봇\n")
		s.printf("비즈니스 규칙, 데이터 정의 등에 대해 질문하세요.\n")
	case history.ModeSQL:
		s.printf("\n세일즈 SQL 챗봇\n")
		s.printf("매출 데이터에 대해 질문하면 SQL을 자동 생성하여 답변합니다.\n")
	}
	s.printf("대화가 이어지므로 후속 질문이 가능합니다.\n")
	s.printf("종료: exit / quit / q\n\n")
}

func (s *Session) printf(format string, args ...any) {
	if s.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(s.Out, format, args...)
}
