// Package snapshot exports sales_clean to parquet in the object store so the
// DuckDB backend can answer SQL-mode questions without the live database.
package snapshot

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

const TableName = "sales_clean"

// Row mirrors one sales_clean record. sale_date is kept as YYYY-MM-DD text
// and inserted_at as epoch milliseconds; readers cast them back.
type Row struct {
	ID               int64    `parquet:"id"`
	RowNo            *int64   `parquet:"row_no,optional"`
	SaleDate         string   `parquet:"sale_date"`
	CustomerName     *string  `parquet:"customer_name,optional"`
	CustomerCode     *string  `parquet:"customer_code,optional"`
	SalesRep         *string  `parquet:"sales_rep,optional"`
	ProductName      *string  `parquet:"product_name,optional"`
	ProductGroup     *string  `parquet:"product_group,optional"`
	Qty              *float64 `parquet:"qty,optional"`
	UnitPrice        *float64 `parquet:"unit_price,optional"`
	SupplyAmount     *float64 `parquet:"supply_amount,optional"`
	MarginRatePct    *float64 `parquet:"margin_rate_pct,optional"`
	VAT              *float64 `parquet:"vat,optional"`
	TotalAmount      *float64 `parquet:"total_amount,optional"`
	InsertedAtUnixMs int64    `parquet:"inserted_at"`
}

type EncodeResult struct {
	Data        []byte
	RecordCount int64
	MinSaleDate string
	MaxSaleDate string
}

func Encode(rows []Row) (EncodeResult, error) {
	if len(rows) == 0 {
		return EncodeResult{}, fmt.Errorf("rows are required")
	}

	var minDate, maxDate string
	for _, row := range rows {
		if row.SaleDate == "" {
			continue
		}
		if minDate == "" || row.SaleDate < minDate {
			minDate = row.SaleDate
		}
		if maxDate == "" || row.SaleDate > maxDate {
			maxDate = row.SaleDate
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Row](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		MinSaleDate: minDate,
		MaxSaleDate: maxDate,
	}, nil
}

// Decode reads an encoded snapshot back into rows.
func Decode(data []byte) ([]Row, error) {
	rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows, nil
}
