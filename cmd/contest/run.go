package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"joke_contest/internal/domain"
	"joke_contest/internal/orchestrator"
	"joke_contest/internal/transcript"
)

func newRunCmd(opts *options) *cobra.Command {
	var htmlPath, markdownPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one contest and print every record as it arrives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.wireDriver(); err != nil {
				return err
			}

			c, err := a.service.RunContest(ctx, a.rounds(opts.rounds))
			if err != nil {
				return err
			}
			defer c.Close()

			records, runErr := printContest(ctx, cmd.OutOrStdout(), c)
			title := "Joke contest " + c.RunID()
			if err := exportTranscript(htmlPath, markdownPath, title, records); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "write an HTML transcript to this file")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "write a Markdown transcript to this file")
	return cmd
}

// printContest is the console sink. It returns every record it printed.
func printContest(ctx context.Context, w io.Writer, c *orchestrator.Contest) ([]domain.Record, error) {
	var records []domain.Record
	for {
		rec, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			fmt.Fprintf(w, "contest aborted: %v\n", err)
			return records, err
		}
		records = append(records, rec)
		fmt.Fprintln(w, formatRecord(rec))
	}
}

func formatRecord(rec domain.Record) string {
	switch rec.Kind {
	case domain.RecordGenerator:
		return fmt.Sprintf("----- round %d -----\njoke: %s", rec.Round, rec.Text())
	case domain.RecordEvaluator:
		if rec.Evaluate != nil {
			return fmt.Sprintf("score: %d/%d, reason: %s", rec.Evaluate.Score, domain.MaxScore, rec.Evaluate.Reason)
		}
	case domain.RecordSummary:
		return strings.Repeat("-", 20) + "\nsummary: " + rec.Text()
	}
	return fmt.Sprintf("%s: %s", rec.Kind, rec.Text())
}

func exportTranscript(htmlPath, markdownPath, title string, records []domain.Record) error {
	if markdownPath != "" {
		if err := os.WriteFile(markdownPath, []byte(transcript.Markdown(title, records)), 0o644); err != nil {
			return fmt.Errorf("write markdown transcript: %w", err)
		}
	}
	if htmlPath == "" {
		return nil
	}
	f, err := os.Create(htmlPath)
	if err != nil {
		return fmt.Errorf("create html transcript: %w", err)
	}
	if err := transcript.HTML(f, title, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
