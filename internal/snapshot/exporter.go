package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salesqa/salesqa/internal/storage"
)

const selectRowsQuery = `
SELECT id, row_no, sale_date, customer_name, customer_code, sales_rep, product_name, product_group,
       qty, unit_price, supply_amount, margin_rate_pct, vat, total_amount, inserted_at
FROM sales_clean
ORDER BY id`

type Exporter struct {
	DB     *sql.DB
	Store  storage.ObjectStore
	Prefix string
	Logger *slog.Logger
	NewID  func() string
}

type Result struct {
	SnapshotID  string
	DataPath    string
	RecordCount int64
	Bytes       int64
	MinSaleDate string
	MaxSaleDate string
	Duration    time.Duration
}

func NewExporter(db *sql.DB, store storage.ObjectStore, prefix string, logger *slog.Logger) *Exporter {
	return &Exporter{DB: db, Store: store, Prefix: prefix, Logger: logger, NewID: uuid.NewString}
}

// Export writes the current sales_clean contents as a new snapshot and then
// moves the LATEST pointer to it. Readers never observe a partial snapshot.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	if e.DB == nil {
		return Result{}, fmt.Errorf("database is required")
	}
	if e.Store == nil {
		return Result{}, fmt.Errorf("object store is required")
	}
	start := time.Now()

	rows, err := e.readRows(ctx)
	if err != nil {
		return Result{}, err
	}
	encoded, err := Encode(rows)
	if err != nil {
		return Result{}, err
	}

	newID := e.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	snapshotID := newID()
	dataPath, err := storage.SnapshotDataPath(e.Prefix, snapshotID, 0)
	if err != nil {
		return Result{}, err
	}
	if _, err := e.Store.Put(ctx, dataPath, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"}); err != nil {
		return Result{}, fmt.Errorf("upload snapshot: %w", err)
	}

	pointer := storage.SnapshotPointerPath(e.Prefix)
	if _, err := e.Store.Put(ctx, pointer, strings.NewReader(dataPath), int64(len(dataPath)), storage.PutOptions{ContentType: "text/plain"}); err != nil {
		return Result{}, fmt.Errorf("update snapshot pointer: %w", err)
	}

	result := Result{
		SnapshotID:  snapshotID,
		DataPath:    dataPath,
		RecordCount: encoded.RecordCount,
		Bytes:       int64(len(encoded.Data)),
		MinSaleDate: encoded.MinSaleDate,
		MaxSaleDate: encoded.MaxSaleDate,
		Duration:    time.Since(start),
	}
	if e.Logger != nil {
		e.Logger.InfoContext(ctx, "snapshot exported",
			slog.String("snapshot_id", result.SnapshotID),
			slog.String("data_path", result.DataPath),
			slog.Int64("records", result.RecordCount),
			slog.Int64("bytes", result.Bytes),
		)
	}
	return result, nil
}

func (e *Exporter) readRows(ctx context.Context) ([]Row, error) {
	rs, err := e.DB.QueryContext(ctx, selectRowsQuery)
	if err != nil {
		return nil, fmt.Errorf("read sales_clean: %w", err)
	}
	defer func() { _ = rs.Close() }()

	rows := make([]Row, 0, 1024)
	for rs.Next() {
		var (
			row        Row
			rowNo      sql.NullInt64
			saleDate   time.Time
			insertedAt time.Time
			text       [5]sql.NullString
			numbers    [6]sql.NullFloat64
		)
		if err := rs.Scan(
			&row.ID, &rowNo, &saleDate,
			&text[0], &text[1], &text[2], &text[3], &text[4],
			&numbers[0], &numbers[1], &numbers[2], &numbers[3], &numbers[4], &numbers[5],
			&insertedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sales_clean row: %w", err)
		}
		if rowNo.Valid {
			value := rowNo.Int64
			row.RowNo = &value
		}
		row.SaleDate = saleDate.Format("2006-01-02")
		row.CustomerName = stringPtr(text[0])
		row.CustomerCode = stringPtr(text[1])
		row.SalesRep = stringPtr(text[2])
		row.ProductName = stringPtr(text[3])
		row.ProductGroup = stringPtr(text[4])
		row.Qty = floatPtr(numbers[0])
		row.UnitPrice = floatPtr(numbers[1])
		row.SupplyAmount = floatPtr(numbers[2])
		row.MarginRatePct = floatPtr(numbers[3])
		row.VAT = floatPtr(numbers[4])
		row.TotalAmount = floatPtr(numbers[5])
		row.InsertedAtUnixMs = insertedAt.UTC().UnixMilli()
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales_clean rows: %w", err)
	}
	return rows, nil
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	out := value.String
	return &out
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	out := value.Float64
	return &out
}
