package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/prism"
	"github.com/ashita-ai/prism/internal/engine"
	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/runstore"
)

var errRunFailed = errors.New("every model failed")

type rootFlags struct {
	envFile string
	runsDir string
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "prism",
		Short:         "Evaluate a prompt across several language models",
		Long:          "PRISM sends one prompt to several models concurrently, synthesizes an answer and measures how much the models disagree.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// A missing .env is normal outside development.
			if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", flags.envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	root.PersistentFlags().StringVar(&flags.runsDir, "runs-dir", "", "run store directory (overrides PRISM_RUNS_DIR)")

	open := func(extra ...prism.Option) (*prism.App, error) {
		opts := []prism.Option{prism.WithLogger(logger), prism.WithVersion(version)}
		if flags.runsDir != "" {
			opts = append(opts, prism.WithRunStore(flags.runsDir))
		}
		return prism.New(append(opts, extra...)...)
	}

	root.AddCommand(
		newServeCmd(open),
		newEvalCmd(open),
		newModelsCmd(open),
		newRunsCmd(open),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

type openFunc func(extra ...prism.Option) (*prism.App, error)

func newServeCmd(open openFunc) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var extra []prism.Option
			if port != 0 {
				extra = append(extra, prism.WithPort(port))
			}
			app, err := open(extra...)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PRISM_PORT)")
	return cmd
}

type evalFlags struct {
	models      []string
	temperature float64
	maxTokens   int
	timeoutS    float64
	method      string
}

func newEvalCmd(open openFunc) *cobra.Command {
	var f evalFlags
	cmd := &cobra.Command{
		Use:   "eval [prompt]",
		Short: "Run one evaluation locally and print the result as JSON",
		Long:  "Run one evaluation without a server. The prompt is taken from the arguments, or from stdin when it is \"-\" or omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			app, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			req := model.EvaluateRequest{
				Prompt:          prompt,
				Models:          f.models,
				Temperature:     f.temperature,
				MaxTokens:       f.maxTokens,
				TimeoutS:        f.timeoutS,
				SynthesisMethod: model.Strategy(f.method),
			}
			// Interrupting cancels the remaining models; the run is still recorded.
			ctx := cmd.Context()
			resp, err := app.Engine().Evaluate(context.WithoutCancel(ctx), req, engine.ContextAbort(ctx))
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if resp.Status == model.RunStatusFailed {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&f.models, "model", "m", nil, "model id to evaluate; repeat or comma-separate (default: every available model)")
	cmd.Flags().Float64Var(&f.temperature, "temperature", model.DefaultTemperature, "sampling temperature (0-1)")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", model.DefaultMaxTokens, "maximum tokens per generation")
	cmd.Flags().Float64Var(&f.timeoutS, "timeout", model.DefaultTimeoutS, "per-model timeout in seconds")
	cmd.Flags().StringVar(&f.method, "method", string(model.StrategyLongestNonempty), "synthesis method: longest_nonempty, consensus_overlap or best_of_n")
	return cmd
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	return string(data), nil
}

func newModelsCmd(open openFunc) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models and whether they are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			models, err := app.Engine().Registry().ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), model.ModelsResponse{Models: models})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tPROVIDER\tAVAILABLE\tREASON")
			for _, m := range models {
				reason := ""
				if m.Reason != nil {
					reason = *m.Reason
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", m.ID, m.Provider, m.Available, reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newRunsCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted runs",
	}

	var (
		limit  int
		status string
		hash   string
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := runstore.ListFilter{Limit: limit, Status: model.RunStatus(status), Hash: hash}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid status %q", status)
			}
			app, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			runs, err := app.Runs().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []model.RunSummary{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": runs})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCREATED\tSTATUS\tHASH")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RunID, r.CreatedAt.Format("2006-01-02T15:04:05Z"), r.Status, shortHash(r.RunHash))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", runstore.DefaultListLimit, "maximum runs to list")
	list.Flags().StringVar(&status, "status", "", "only runs with this status (success, partial, failed)")
	list.Flags().StringVar(&hash, "hash", "", "only runs with this configuration hash")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	get := &cobra.Command{
		Use:   "get <run_id>",
		Short: "Print one run document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !runstore.ValidRunID(args[0]) {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			app, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			doc, err := app.Runs().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
