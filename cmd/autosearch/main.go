package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/autosearch/pkg/clients"
	"github.com/mikeboe/autosearch/pkg/config"
	"github.com/mikeboe/autosearch/pkg/stream"
)

var (
	rounds         int
	followUps      int
	searchProvider string
	llmProvider    string
)

func main() {
	// Events go to stdout, logs to stderr.
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "autosearch [query]",
		Short: "Adaptive multi-round web search",
		Long:  `autosearch classifies a query, searches the web, lets an LLM pick the relevant results and refines the search with follow-up queries. Every step is written to stdout as a Server-Sent Event.`,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Fprint(os.Stderr, "Enter search query: ")
				input, _ := reader.ReadString('\n')
				query = strings.TrimSpace(input)
				if query == "" {
					return fmt.Errorf("query cannot be empty")
				}
			}

			cfg := config.Load()
			if cmd.Flags().Changed("rounds") {
				cfg.MaxRounds = rounds
			}
			if cmd.Flags().Changed("follow-ups") {
				cfg.MaxFollowUps = followUps
			}
			if searchProvider != "" {
				cfg.SearchProvider = strings.ToLower(searchProvider)
			}
			if llmProvider != "" {
				cfg.LLMProvider = strings.ToLower(llmProvider)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if cfg.SessionTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.SessionTimeout)
				defer cancel()
			}

			engine, err := clients.NewEngine(ctx, cfg, slog.Default(), nil)
			if err != nil {
				return fmt.Errorf("error initializing engine: %w", err)
			}

			slog.Info("Starting search", "query", query, "llm", cfg.LLMProvider, "provider", cfg.SearchProvider, "rounds", engine.Config.MaxRounds)

			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()

			result, err := engine.Run(ctx, query, stream.NewSSEWriter(flushWriter{out}))
			if err != nil {
				return err
			}
			slog.Info("Search complete", "session_id", result.SessionID.String(), "results", len(result.Results))
			return nil
		},
	}

	rootCmd.Flags().IntVarP(&rounds, "rounds", "r", 1, "Number of follow-up rounds")
	rootCmd.Flags().IntVarP(&followUps, "follow-ups", "f", 3, "Maximum follow-up queries per round")
	rootCmd.Flags().StringVarP(&searchProvider, "provider", "p", "", "Search provider: serper, duckduckgo or arxiv (default $SEARCH_PROVIDER)")
	rootCmd.Flags().StringVarP(&llmProvider, "llm", "l", "", "LLM provider: googleai, openai or gemini (default $LLM_PROVIDER)")
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// flushWriter lets the SSE writer flush stdout after every event.
type flushWriter struct {
	*bufio.Writer
}

func (w flushWriter) Flush() {
	_ = w.Writer.Flush()
}
