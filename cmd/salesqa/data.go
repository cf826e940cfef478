package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesqa/salesqa/internal/ingest"
	"github.com/salesqa/salesqa/internal/postgres"
	"github.com/salesqa/salesqa/internal/querylog"
	querylogpostgres "github.com/salesqa/salesqa/internal/querylog/postgres"
	"github.com/salesqa/salesqa/internal/snapshot"
	s3store "github.com/salesqa/salesqa/internal/storage/s3"
)

func newIngestCmd() *cobra.Command {
	var dir, objectPrefix string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store reference documents in rag_chunks",
		Long: `Reads .md and .txt documents from a local directory (default rag_docs/)
or from an object-store prefix and replaces their chunks in rag_chunks.
The document id is the file name without extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := openApp(cmd.Context(), "salesqa-ingest")
			if err != nil {
				return err
			}
			defer closeApp(application)
			cfg := application.Config

			var source ingest.Source
			if objectPrefix != "" {
				store, err := application.ObjectStore(cmd.Context())
				if err != nil {
					return err
				}
				source = ingest.ObjectSource{Store: store, Prefix: objectPrefix}
			} else {
				if dir == "" {
					dir = cfg.Ingest.DocsDir
				}
				source = ingest.FSSource{FS: os.DirFS(dir), Name: dir}
			}

			service, err := ingest.NewService(application.DB, application.LLM, ingest.Config{
				ChunkSize:    cfg.Ingest.ChunkSize,
				ChunkOverlap: cfg.Ingest.ChunkOverlap,
				Concurrency:  cfg.Ingest.Concurrency,
			}, application.Logger)
			if err != nil {
				return err
			}
			results, err := service.IngestSource(cmd.Context(), source)
			if err != nil {
				return err
			}
			total := 0
			for _, result := range results {
				total += result.Chunks
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", result.DocID, result.Chunks)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents, %d chunks\n", len(results), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "local document directory (default from SALESQA_INGEST_DOCS_DIR)")
	cmd.Flags().StringVar(&objectPrefix, "object-prefix", "", "read documents from this object-store prefix instead")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Export sales_clean to a parquet snapshot for the duckdb backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig("salesqa-snapshot")
			if err != nil {
				return err
			}
			db, err := postgres.Open(cmd.Context(), postgres.ConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			store, err := s3store.New(cmd.Context(), s3store.ConfigFrom(cfg.ObjectStore))
			if err != nil {
				return fmt.Errorf("init object store: %w", err)
			}

			result, err := snapshot.NewExporter(db, store, cfg.SQL.SnapshotPrefix, logger).Export(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("snapshot exported", slog.String("snapshot_id", result.SnapshotID))
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"snapshot_id":   result.SnapshotID,
				"data_path":     result.DataPath,
				"record_count":  result.RecordCount,
				"bytes":         result.Bytes,
				"min_sale_date": result.MinSaleDate,
				"max_sale_date": result.MaxSaleDate,
				"duration_ms":   result.Duration.Milliseconds(),
			})
		},
	}
}

func newLogsCmd() *cobra.Command {
	var mode, from, to string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List recorded questions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := querylog.Filter{Mode: mode, Limit: limit, Offset: offset}
			for _, bound := range []struct {
				raw string
				dst **time.Time
			}{{from, &filter.From}, {to, &filter.To}} {
				if bound.raw == "" {
					continue
				}
				day, err := time.Parse("2006-01-02", bound.raw)
				if err != nil {
					return fmt.Errorf("invalid date %q: use YYYY-MM-DD", bound.raw)
				}
				*bound.dst = &day
			}

			cfg, _, err := loadConfig("salesqa-logs")
			if err != nil {
				return err
			}
			db, err := postgres.Open(cmd.Context(), postgres.ConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			page, err := querylogpostgres.NewRepository(db).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"data":   page.Entries,
				"total":  page.Total,
				"limit":  page.Limit,
				"offset": page.Offset,
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "rag or sql (default both)")
	cmd.Flags().IntVar(&limit, "limit", querylog.DefaultListLimit, "page size, at most 100")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	return cmd
}
