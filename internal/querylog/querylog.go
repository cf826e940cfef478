// Package querylog records answered questions for later review. Writes are
// best effort and never change what a caller receives.
package querylog

import (
	"context"
	"time"
)

const (
	ModeRAG = "rag"
	ModeSQL = "sql"

	DefaultListLimit = 30
	MaxListLimit     = 100
)

type Entry struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	SQLGenerated string    `json:"sql_generated,omitempty"`
	Data         any       `json:"data,omitempty"`
	Sources      any       `json:"sources,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filter selects a page of entries. From and To are calendar days; To
// includes the whole day.
type Filter struct {
	Mode   string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type Page struct {
	Entries []Entry
	Total   int
	Limit   int
	Offset  int
}

type Sink interface {
	Insert(ctx context.Context, entry Entry) error
}

type Reader interface {
	List(ctx context.Context, filter Filter) (Page, error)
}

// NormalizeFilter applies the listing defaults: unknown modes are ignored,
// the limit defaults to 30 and is capped at 100, negative offsets become 0.
func NormalizeFilter(filter Filter) Filter {
	if filter.Mode != ModeRAG && filter.Mode != ModeSQL {
		filter.Mode = ""
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}
