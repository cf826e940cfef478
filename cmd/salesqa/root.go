package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesqa/salesqa/internal/app"
	"github.com/salesqa/salesqa/internal/cli/chat"
	"github.com/salesqa/salesqa/internal/config"
	"github.com/salesqa/salesqa/internal/history"
	"github.com/salesqa/salesqa/internal/observability"
)

var (
	envFile string
	logJSON bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "salesqa",
		Short: "Ask questions about sales data in RAG or SQL mode",
		Long: `salesqa answers questions about the sales_clean dataset.

RAG mode answers from ingested reference documents (business rules, metric
definitions, data dictionary). SQL mode turns the question into a read-only
statement, runs it and explains the result.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envFile == "" {
				return config.LoadDotEnv()
			}
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write JSON logs to stderr")

	root.AddCommand(newChatCmd(), newAskCmd(), newIngestCmd(), newSnapshotCmd(), newLogsCmd())
	return root
}

func newChatCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation (exit / quit / q / 종료 to leave)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chatMode, err := parseMode(mode)
			if err != nil {
				return err
			}
			application, err := openApp(cmd.Context(), "salesqa-chat")
			if err != nil {
				return err
			}
			defer closeApp(application)

			session := &chat.Session{
				Mode:    chatMode,
				Queries: application.Pipeline,
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
			}
			return session.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(history.ModeSQL), "rag or sql")
	return cmd
}

func newAskCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			askMode, err := parseMode(mode)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			application, err := openApp(cmd.Context(), "salesqa-ask")
			if err != nil {
				return err
			}
			defer closeApp(application)

			var response any
			switch askMode {
			case history.ModeRAG:
				response, err = application.Pipeline.RunRAGQuery(cmd.Context(), question, nil)
			default:
				response, err = application.Pipeline.RunSQLQuery(cmd.Context(), question, nil)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), response)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(history.ModeSQL), "rag or sql")
	return cmd
}

func parseMode(raw string) (history.Mode, error) {
	switch mode := history.Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case history.ModeRAG, history.ModeSQL:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid mode %q: use rag or sql", raw)
	}
}

func loadConfig(serviceName string) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFromEnv(serviceName)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Observability.LogJSON = logJSON
	if !logJSON && cfg.Observability.LogLevel < slog.LevelWarn {
		cfg.Observability.LogLevel = slog.LevelWarn
	}
	return cfg, observability.NewLogger(cfg, os.Stderr), nil
}

func openApp(ctx context.Context, serviceName string) (*app.App, error) {
	cfg, logger, err := loadConfig(serviceName)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func closeApp(application *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Close(ctx); err != nil {
		application.Logger.Warn("close failed", slog.Any("error", err))
	}
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
