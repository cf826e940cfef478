package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/salesqa/salesqa/internal/querylog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, entry querylog.Entry) error {
	data, err := jsonColumn(entry.Data)
	if err != nil {
		return fmt.Errorf("encode query log data: %w", err)
	}
	sources, err := jsonColumn(entry.Sources)
	if err != nil {
		return fmt.Errorf("encode query log sources: %w", err)
	}

	query := `
INSERT INTO query_logs (id, mode, question, answer, sql_generated, data, sources, success, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Mode,
		entry.Question,
		entry.Answer,
		nullString(entry.SQLGenerated),
		data,
		sources,
		entry.Success,
		nullString(entry.ErrorMessage),
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// List returns the newest entries first together with the total number of
// entries matching filter.
func (r *Repository) List(ctx context.Context, filter querylog.Filter) (querylog.Page, error) {
	filter = querylog.NormalizeFilter(filter)
	where, args := whereClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM query_logs`+where, args...).Scan(&total); err != nil {
		return querylog.Page{}, fmt.Errorf("count query logs: %w", err)
	}

	listArgs := append(append([]any(nil), args...), filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
SELECT id, mode, question, answer, sql_generated, success, error_message, created_at
FROM query_logs%s
ORDER BY created_at DESC
LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return querylog.Page{}, fmt.Errorf("list query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]querylog.Entry, 0)
	for rows.Next() {
		var entry querylog.Entry
		var answer, sqlGenerated, errorMessage sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.Mode,
			&entry.Question,
			&answer,
			&sqlGenerated,
			&entry.Success,
			&errorMessage,
			&entry.CreatedAt,
		); err != nil {
			return querylog.Page{}, fmt.Errorf("scan query log row: %w", err)
		}
		entry.Answer = answer.String
		entry.SQLGenerated = sqlGenerated.String
		entry.ErrorMessage = errorMessage.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return querylog.Page{}, fmt.Errorf("iterate query log rows: %w", err)
	}

	return querylog.Page{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func whereClause(filter querylog.Filter) (string, []any) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Mode != "" {
		args = append(args, filter.Mode)
		conditions = append(conditions, fmt.Sprintf("mode = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, startOfDay(*filter.From))
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, startOfDay(*filter.To).Add(24*time.Hour))
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(conditions, " AND "), args
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func jsonColumn(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
