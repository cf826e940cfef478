package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/salesqa/salesqa/internal/auth"
	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/pipeline"
)

const maxQuestionBodyBytes = 1 << 20

type questionRequest struct {
	Question string         `json:"question"`
	History  []history.Turn `json:"history"`
}

type ragQueryResponse struct {
	Success  bool              `json:"success"`
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Sources  []pipeline.Source `json:"sources"`
}

// Data is an interface so an empty result set still encodes as [].
type sqlQueryResponse struct {
	Success  bool   `json:"success"`
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Data     any    `json:"data,omitempty"`
	RowCount int    `json:"rowCount"`
	Error    string `json:"error,omitempty"`
	Answer   string `json:"answer"`
}

func handleRAGQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	request, ok := decodeQuestion(deps, w, r)
	if !ok {
		return
	}

	ctx, cancel := queryContext(r.Context(), deps)
	defer cancel()

	response, err := deps.Queries.RunRAGQuery(ctx, request.Question, request.History)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	sources := response.Sources
	if sources == nil {
		sources = []pipeline.Source{}
	}
	writeJSON(w, http.StatusOK, ragQueryResponse{
		Success:  true,
		Question: strings.TrimSpace(request.Question),
		Answer:   response.Answer,
		Sources:  sources,
	})
}

func handleSQLQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	request, ok := decodeQuestion(deps, w, r)
	if !ok {
		return
	}

	ctx, cancel := queryContext(r.Context(), deps)
	defer cancel()

	response, err := deps.Queries.RunSQLQuery(ctx, request.Question, request.History)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	payload := sqlQueryResponse{
		Success:  response.Success,
		Question: strings.TrimSpace(request.Question),
		SQL:      response.SQL,
		RowCount: response.RowCount,
		Error:    response.Error,
		Answer:   response.Answer,
	}
	if response.Success {
		data := response.Data
		if data == nil {
			data = []map[string]any{}
		}
		payload.Data = data
	}
	writeJSON(w, http.StatusOK, payload)
}

func decodeQuestion(deps Dependencies, w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	if deps.Queries == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return questionRequest{}, false
	}
	if err := auth.RequireRole(r.Context(), auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return questionRequest{}, false
	}

	var request questionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return questionRequest{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "질문을 입력해주세요.", false, nil)
		return questionRequest{}, false
	}
	return request, true
}

func queryContext(parent context.Context, deps Dependencies) (context.Context, context.CancelFunc) {
	if deps.QueryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, deps.QueryTimeout)
}

func writePipelineError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrInvalidQuestion) {
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "질문을 입력해주세요.", false, nil)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(ctx, w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "question timed out", true, map[string]any{"details": err.Error()})
		return
	}
	var upstreamErr *pipeline.UpstreamError
	if errors.As(err, &upstreamErr) {
		writeError(ctx, w, http.StatusBadGateway, "UPSTREAM_FAILED", "서버 오류가 발생했습니다.", true, map[string]any{
			"stage":   upstreamErr.Stage,
			"details": upstreamErr.Error(),
		})
		return
	}
	writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "서버 오류가 발생했습니다.", false, map[string]any{"details": err.Error()})
}
