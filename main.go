// manuscript-desk runs the editorial support desk: an HTTP API, an
// interactive chat, single-shot queries and corpus stats.
//
// Usage:
//
//	manuscript-desk serve
//	manuscript-desk chat
//	manuscript-desk ask "Where is MS-2024-1234?"
//	manuscript-desk ask --file queries.txt
//	manuscript-desk stats
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/app"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

var rootFlags struct {
	envFile string
	asJSON  bool
}

var askFlags struct {
	file string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "manuscript-desk",
		Short:        "Editorial support desk for manuscript status queries",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().BoolVar(&rootFlags.asJSON, "json", false, "print results as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the desk on stdin",
		RunE:  runChat,
	}
	askCmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a single query, or every line of --file as a batch",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().StringVarP(&askFlags.file, "file", "f", "", "file with one query per line")
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus and model stats",
		RunE:  runStats,
	}

	root.AddCommand(serveCmd, chatCmd, askCmd, statsCmd)
	return root
}

func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig(rootFlags.envFile)
	if err != nil {
		return nil, err
	}
	cfg.InitLogger()
	desk, err := app.New(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to start the desk")
		return nil, err
	}
	return desk, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	desk, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer desk.Close()
	return desk.Serve(ctx)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	desk, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer desk.Close()

	conv, err := desk.Service.StartConversation(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Conversation %s started. Type 'quit' to leave.\n", conv.ID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nyou> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return nil
		}

		res, err := desk.Service.HandleMessage(ctx, conv.ID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if rootFlags.asJSON {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			printTurn(out, res)
		}
		if res.Closed {
			fmt.Fprintln(out, "\nConversation closed.")
			return nil
		}
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var queries []string
	switch {
	case askFlags.file != "":
		lines, err := readQueries(askFlags.file)
		if err != nil {
			return err
		}
		queries = lines
	case len(args) == 1:
		queries = []string{args[0]}
	default:
		return fmt.Errorf("pass a query or --file")
	}

	desk, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer desk.Close()
	out := cmd.OutOrStdout()

	if len(queries) == 1 && askFlags.file == "" {
		res, err := desk.Service.Ask(ctx, queries[0])
		if err != nil {
			return err
		}
		if rootFlags.asJSON {
			return printJSON(out, res)
		}
		printTurn(out, res)
		return nil
	}

	summary, err := desk.Service.AskBatch(ctx, queries)
	if err != nil {
		return err
	}
	if rootFlags.asJSON {
		return printJSON(out, summary)
	}
	for i, res := range summary.Results {
		fmt.Fprintf(out, "\n[%d] %s\n", i+1, res.Query)
		printTurn(out, res)
	}
	fmt.Fprintf(out, "\nQueries: %d  Avg confidence: %.2f  Escalations: %d  Total time: %s\n",
		summary.Total, summary.AverageConfidence, summary.Escalations, summary.TotalTime)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	desk, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer desk.Close()
	return printJSON(cmd.OutOrStdout(), desk.Service.Stats())
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries file: %w", err)
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	return queries, scanner.Err()
}

func printTurn(w io.Writer, res *model.TurnResult) {
	fmt.Fprintf(w, "desk> %s\n", res.Response)
	fmt.Fprintf(w, "      confidence %.2f | state %s", res.Confidence, res.State)
	if res.Classification != nil {
		fmt.Fprintf(w, " | %s/%s", res.Classification.Category, res.Classification.Urgency)
	}
	if res.ShouldEscalate {
		fmt.Fprintf(w, " | escalated: %s", res.EscalationReason)
	}
	fmt.Fprintln(w)
	for _, c := range res.SimilarCases {
		fmt.Fprintf(w, "      similar %s (%.2f)\n", c.ID, c.RelevanceScore)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
