package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/salesqa/salesqa/internal/auth"
	"github.com/salesqa/salesqa/internal/querylog"
)

const queryLogDateLayout = "2006-01-02"

type queryLogsResponse struct {
	Success bool             `json:"success"`
	Data    []querylog.Entry `json:"data"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func handleListQueryLogs(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryLogs == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_LOGS_NOT_CONFIGURED", "query log storage is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleLogReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	values := r.URL.Query()
	filter := querylog.Filter{
		Mode:   strings.TrimSpace(values.Get("mode")),
		Limit:  parseIntOrZero(values.Get("limit")),
		Offset: parseIntOrZero(values.Get("offset")),
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{name: "from", dst: &filter.From},
		{name: "to", dst: &filter.To},
	} {
		raw := strings.TrimSpace(values.Get(bound.name))
		if raw == "" {
			continue
		}
		day, err := time.Parse(queryLogDateLayout, raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATE", bound.name+" must be YYYY-MM-DD", false, map[string]any{"value": raw})
			return
		}
		*bound.dst = &day
	}

	page, err := deps.QueryLogs.List(r.Context(), filter)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_LOGS_FAILED", "서버 오류가 발생했습니다.", true, map[string]any{"details": err.Error()})
		return
	}
	entries := page.Entries
	if entries == nil {
		entries = []querylog.Entry{}
	}
	writeJSON(w, http.StatusOK, queryLogsResponse{
		Success: true,
		Data:    entries,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// parseIntOrZero treats malformed numbers as absent so the listing defaults apply.
func parseIntOrZero(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}
