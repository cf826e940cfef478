package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/salesqa/salesqa/internal/observability"
)

const dbErrorPrefix = "DB 오류: "

// Attempt is the normalized outcome of one generated statement.
type Attempt struct {
	SQL      string           `json:"sql"`
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"rowCount"`
	Error    string           `json:"error,omitempty"`
}

type Executor struct {
	engine   Engine
	rowLimit int
}

func NewExecutor(engine Engine, rowLimit int) (*Executor, error) {
	if engine == nil {
		return nil, errors.New("query engine is required")
	}
	if rowLimit < 0 {
		rowLimit = 0
	}
	return &Executor{engine: engine, rowLimit: rowLimit}, nil
}

// Execute validates and runs sql. It never returns an error: guard
// rejections and engine failures are both reported through Attempt.Error.
func (e *Executor) Execute(ctx context.Context, sql string) Attempt {
	if _, err := Validate(sql); err != nil {
		observability.IncrementSQLRejected()
		return Attempt{SQL: sql, Error: err.Error()}
	}
	result, err := e.engine.Execute(ctx, Request{SQL: sql, RowLimit: e.rowLimit})
	if err != nil {
		return Attempt{SQL: sql, Error: fmt.Sprintf("%s%v", dbErrorPrefix, err)}
	}
	data := result.Records()
	return Attempt{SQL: sql, Success: true, Data: data, RowCount: len(data)}
}
