// Package duckdb answers SQL-mode statements from the latest parquet
// snapshot of sales_clean instead of the live database.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/salesqa/salesqa/internal/query"
	"github.com/salesqa/salesqa/internal/snapshot"
	"github.com/salesqa/salesqa/internal/storage"
)

// similarity() stands in for pg_trgm so generated fuzzy-name CTEs run unchanged.
const similarityMacro = `CREATE OR REPLACE MACRO similarity(a, b) AS jaro_winkler_similarity(CAST(a AS VARCHAR), CAST(b AS VARCHAR))`

var ErrMultipleStatements = errors.New("only a single statement is allowed")

var lockdownSettings = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

type Engine struct {
	Store  storage.ObjectStore
	Prefix string
}

func NewEngine(store storage.ObjectStore, prefix string) *Engine {
	return &Engine{Store: store, Prefix: prefix}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	dataPath, err := e.resolveSnapshot(ctx)
	if err != nil {
		return query.Result{}, err
	}

	workDir, err := os.MkdirTemp("", "salesqa-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	reader, err := e.Store.Get(ctx, dataPath)
	if err != nil {
		return query.Result{}, fmt.Errorf("get snapshot %q: %w", dataPath, err)
	}
	localPath := filepath.Join(workDir, snapshot.TableName+".parquet")
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return query.Result{}, fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return query.Result{}, fmt.Errorf("close snapshot %q: %w", dataPath, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, loadTableSQL(localPath)); err != nil {
		return query.Result{}, fmt.Errorf("load table %q: %w", snapshot.TableName, err)
	}
	if _, err := conn.ExecContext(ctx, similarityMacro); err != nil {
		return query.Result{}, fmt.Errorf("create similarity macro: %w", err)
	}
	// Generated SQL must not reach the filesystem or change settings back.
	for _, setting := range lockdownSettings {
		if _, err := conn.ExecContext(ctx, setting); err != nil {
			return query.Result{}, fmt.Errorf("apply %q: %w", setting, err)
		}
	}

	if hasStatementSeparator(sqlText) {
		return query.Result{}, ErrMultipleStatements
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	// Prepare accepts exactly one statement.
	stmt, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) resolveSnapshot(ctx context.Context) (string, error) {
	pointer := storage.SnapshotPointerPath(e.Prefix)
	reader, err := e.Store.Get(ctx, pointer)
	if err != nil {
		return "", fmt.Errorf("read snapshot pointer %q: %w", pointer, err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(io.LimitReader(reader, 4096))
	if err != nil {
		return "", fmt.Errorf("read snapshot pointer %q: %w", pointer, err)
	}
	dataPath := strings.TrimSpace(string(body))
	if dataPath == "" {
		return "", fmt.Errorf("snapshot pointer %q is empty", pointer)
	}
	return dataPath, nil
}

func loadTableSQL(localPath string) string {
	return fmt.Sprintf(
		`CREATE TABLE %s AS SELECT * REPLACE (CAST(sale_date AS DATE) AS sale_date, epoch_ms(inserted_at) AS inserted_at) FROM read_parquet(%s)`,
		quoteIdent(snapshot.TableName),
		quoteString(localPath),
	)
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case goduckdb.Decimal:
			normalized[i] = typed.Float64()
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// hasStatementSeparator reports a ';' outside quoted text and comments.
func hasStatementSeparator(sqlText string) bool {
	for i := 0; i < len(sqlText); i++ {
		switch sqlText[i] {
		case ';':
			return true
		case '\'', '"':
			end := strings.IndexByte(sqlText[i+1:], sqlText[i])
			if end < 0 {
				return false
			}
			i += end + 1
		case '-':
			if strings.HasPrefix(sqlText[i:], "--") {
				end := strings.IndexByte(sqlText[i:], '\n')
				if end < 0 {
					return false
				}
				i += end
			}
		case '/':
			if strings.HasPrefix(sqlText[i:], "/*") {
				end := strings.Index(sqlText[i+2:], "*/")
				if end < 0 {
					return false
				}
				i += end + 3
			}
		}
	}
	return false
}
