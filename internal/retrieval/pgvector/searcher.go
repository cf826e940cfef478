// Package pgvector implements retrieval.Searcher on top of the
// match_documents function installed by the migrations.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/salesqa/salesqa/internal/retrieval"
)

const matchDocumentsQuery = `
SELECT doc_id, content, similarity
FROM match_documents($1::vector, $2, $3)`

type Searcher struct {
	db *sql.DB
}

func NewSearcher(db *sql.DB) *Searcher {
	return &Searcher{db: db}
}

func (s *Searcher) Search(ctx context.Context, vector []float32, threshold float64, count int) ([]retrieval.Chunk, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("pgvector searcher is not configured")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	rows, err := s.db.QueryContext(ctx, matchDocumentsQuery, EncodeVector(vector), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("match documents: %w", err)
	}
	defer rows.Close()

	chunks := make([]retrieval.Chunk, 0, count)
	for rows.Next() {
		var chunk retrieval.Chunk
		if err := rows.Scan(&chunk.DocID, &chunk.Content, &chunk.Similarity); err != nil {
			return nil, fmt.Errorf("scan matched document: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matched documents: %w", err)
	}
	return chunks, nil
}

// EncodeVector renders vector in the pgvector text input format, e.g. "[0.1,0.2]".
func EncodeVector(vector []float32) string {
	var b strings.Builder
	b.Grow(len(vector)*10 + 2)
	b.WriteByte('[')
	for i, value := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(value), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
