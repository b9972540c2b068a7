package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"joke_contest/internal/domain"
	sqlitestore "joke_contest/internal/store/sqlite"
	"joke_contest/internal/transcript"
)

func newJournalCmd(opts *options) *cobra.Command {
	var limit int
	var showMessages bool
	cmd := &cobra.Command{
		Use:   "journal [run-id]",
		Short: "List journaled runs, or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Journal.DBPath == sqlitestore.MemoryPath {
				return fmt.Errorf("journal is in memory; pass --db or set journal.db_path")
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := a.journal.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				printRuns(out, runs)
				return nil
			}

			run, err := a.journal.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			records, err := a.journal.ListRunRecords(ctx, run.ID)
			if err != nil {
				return err
			}
			decisions, err := a.journal.ListRunDecisions(ctx, run.ID, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s: %s (%d rounds)\n", run.ID, run.Status, run.MaxRounds)
			if run.LastError != "" {
				fmt.Fprintf(out, "error: %s\n", run.LastError)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, transcript.Markdown("Run "+run.ID, records))
			fmt.Fprintln(out, "## Decisions")
			fmt.Fprintln(out)
			fmt.Fprint(out, renderDecisions(decisions))

			if showMessages {
				msgs, err := a.journal.ListRunMessages(ctx, run.ID, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "## Messages")
				fmt.Fprintln(out)
				for _, m := range msgs {
					fmt.Fprintf(out, "%s %s -> %s %s %s\n", m.CreatedAt.Format("15:04:05"), m.FromAgent, m.Topic, m.Type, trimLine(string(m.Payload), 96))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to list")
	cmd.Flags().BoolVar(&showMessages, "messages", false, "also show bus messages")
	return cmd
}

func printRuns(w io.Writer, runs []domain.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-8s  rounds=%d  %s", r.ID, r.Status, r.MaxRounds, r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.LastError != "" {
			line += "  " + trimLine(r.LastError, 64)
		}
		fmt.Fprintln(w, line)
	}
}

func renderDecisions(items []domain.DecisionLog) string {
	if len(items) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, d := range items {
		fmt.Fprintf(&b, "%s %-12s %-18s %s\n", d.CreatedAt.Format("15:04:05"), d.Actor, d.Action, trimLine(string(d.Payload), 80))
	}
	return b.String()
}

func trimLine(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
