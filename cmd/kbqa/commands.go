package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbqa/internal/domain"
	"kbqa/internal/logging"
	"kbqa/internal/server"
	"kbqa/internal/tui"
)

func newRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "kbqa",
		Short: "Question answering over a local knowledge base",
		Long: `kbqa splits the documents of a knowledge base into token windows, embeds them
into an exact vector index on disk, and answers questions from the nearest chunks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.addFlags(root.PersistentFlags())

	root.AddCommand(
		newIngestCommand(o),
		newQueryCommand(o),
		newAskCommand(o),
		newTUICommand(o),
		newServeCommand(o),
	)
	return root
}

func newIngestCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(o, cmd.Flags(), false)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.svc.Ingest(cmd.Context())
			if err != nil {
				a.log.Error("ingest failed", logging.Err(err)...)
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range report.Sources {
				fmt.Fprintf(out, "%-40s %d chunks\n", s.Source, s.Chunks)
			}
			fmt.Fprintf(out, "indexed %d chunks from %d documents (model %s, dimension %d) as generation %s in %s\n",
				report.Count, report.Documents, report.Model, report.Dimension, report.Generation,
				report.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newQueryCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Print the chunks nearest to a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o, cmd.Flags(), false)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.svc.Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newAskCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o, cmd.Flags(), true)
			if err != nil {
				return err
			}
			defer a.close()

			ans, err := a.svc.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ans)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Sources:")
			for _, r := range ans.Sources {
				fmt.Fprintf(out, "  %d. %s\n", r.Rank+1, r.Source)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}

func newTUICommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(o, cmd.Flags(), true)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.svc.Reload(); err != nil {
				return err
			}
			_, err = tea.NewProgram(tui.New(a.svc), tea.WithAltScreen()).Run()
			return err
		},
	}
}

func newServeCommand(o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve query and ask over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(o, cmd.Flags(), true)
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if a.cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.svc.Reload(); err != nil {
				if !errors.Is(err, domain.ErrStoreNotFound) {
					return err
				}
				a.log.Warn("no index yet, serving until one is published", zap.String("data", a.cfg.Paths.Data))
			}
			if err := a.svc.Watch(ctx); err != nil {
				return err
			}
			return server.New(a.svc, a.log).Run(ctx, a.cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func printResults(w io.Writer, results []domain.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "#%d  %s  (distance %.4f)\n", r.Rank+1, r.Source, r.Distance)
		fmt.Fprintln(w, strings.TrimSpace(r.Text))
		fmt.Fprintln(w)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
