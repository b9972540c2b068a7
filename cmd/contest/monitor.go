package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"joke_contest/internal/domain"
	"joke_contest/internal/orchestrator"
)

func newMonitorCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run contests in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.wireDriver(); err != nil {
				return err
			}
			return runMonitor(ctx, a, a.rounds(opts.rounds))
		},
	}
}

// monitor is the terminal Presentation Sink. One contest runs at a time.
type monitor struct {
	a   *app
	ctx context.Context
	ui  *tview.Application

	contestView   *tview.TextView
	scoreTable    *tview.Table
	decisionsView *tview.TextView
	summaryView   *tview.TextView
	statusView    *tview.TextView
	roundsInput   *tview.InputField

	mu      sync.Mutex
	current *orchestrator.Contest
}

func runMonitor(ctx context.Context, a *app, rounds int) error {
	m := &monitor{a: a, ctx: ctx, ui: tview.NewApplication()}

	m.contestView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	m.contestView.SetTitle("Contest").SetBorder(true)

	m.scoreTable = tview.NewTable().
		SetBorders(false)
	m.scoreTable.SetTitle("Scores").SetBorder(true)

	m.decisionsView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	m.decisionsView.SetTitle("Decisions").SetBorder(true)

	m.summaryView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	m.summaryView.SetTitle("Commentary").SetBorder(true)

	m.roundsInput = tview.NewInputField().
		SetLabel("Rounds: ").
		SetText(strconv.Itoa(rounds)).
		SetFieldWidth(6).
		SetAcceptanceFunc(tview.InputFieldInteger)
	m.roundsInput.SetBorder(true).SetTitle("Enter = start contest")

	m.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	m.statusView.SetBorder(true).SetTitle("Status")
	m.statusView.SetText(fmt.Sprintf("provider=%s model=%s | shortcuts: Enter start, Esc stop, F10 quit",
		a.cfg.Model.Provider, a.cfg.Model.Name))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(m.scoreTable, 0, 1, false).
		AddItem(m.decisionsView, 0, 2, false)
	mainLayout := tview.NewFlex().
		AddItem(m.contestView, 0, 2, false).
		AddItem(right, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 10, false).
		AddItem(m.summaryView, 6, 0, false).
		AddItem(m.roundsInput, 3, 0, true).
		AddItem(m.statusView, 3, 0, false)

	m.roundsInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		n, err := strconv.Atoi(m.roundsInput.GetText())
		if err != nil {
			m.statusView.SetText("[red]rounds must be a number")
			return
		}
		m.start(n)
	})

	m.ui.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			m.ui.Stop()
			return nil
		case tcell.KeyEscape:
			if m.stop() {
				m.statusView.SetText("[yellow]contest stopped")
			}
			return nil
		}
		return event
	})

	go func() {
		<-ctx.Done()
		m.ui.Stop()
	}()

	err := m.ui.SetRoot(root, true).EnableMouse(true).SetFocus(m.roundsInput).Run()
	m.stop()
	if err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

// start must be called from the UI goroutine.
func (m *monitor) start(rounds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.statusView.SetText("[yellow]a contest is already running (Esc to stop)")
		return
	}
	c, err := m.a.service.RunContest(m.ctx, rounds)
	if err != nil {
		m.statusView.SetText("[red]" + tview.Escape(err.Error()))
		return
	}
	m.current = c

	m.contestView.Clear()
	m.summaryView.Clear()
	m.decisionsView.Clear()
	renderScores(m.scoreTable, nil)
	m.statusView.SetText(fmt.Sprintf("run %s: %d rounds", shortID(c.RunID()), rounds))

	go m.consume(c)
}

func (m *monitor) stop() bool {
	m.mu.Lock()
	c := m.current
	m.mu.Unlock()
	if c == nil {
		return false
	}
	// Close waits for agent handlers, keep it off the UI goroutine
	go c.Close()
	return true
}

func (m *monitor) consume(c *orchestrator.Contest) {
	var scores []domain.Record
	var err error
	for {
		var rec domain.Record
		rec, err = c.Next(m.ctx)
		if err != nil {
			break
		}
		if rec.Kind == domain.RecordEvaluator {
			scores = append(scores, rec)
		}
		decisions := m.decisions(c.RunID())
		shown := append([]domain.Record(nil), scores...)
		m.ui.QueueUpdateDraw(func() {
			appendRecord(m.contestView, m.summaryView, rec)
			renderScores(m.scoreTable, shown)
			m.decisionsView.SetText(renderDecisions(decisions))
		})
	}
	c.Close()

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	decisions := m.decisions(c.RunID())
	status := fmt.Sprintf("[green]run %s finished", shortID(c.RunID()))
	if !errors.Is(err, io.EOF) {
		status = fmt.Sprintf("[red]run %s: %s", shortID(c.RunID()), tview.Escape(err.Error()))
	}
	m.ui.QueueUpdateDraw(func() {
		m.decisionsView.SetText(renderDecisions(decisions))
		m.statusView.SetText(status)
	})
}

func (m *monitor) decisions(runID string) []domain.DecisionLog {
	items, err := m.a.journal.ListRunDecisions(context.WithoutCancel(m.ctx), runID, 30)
	if err != nil {
		m.a.logger.Debug("list decisions failed", "run", runID, "err", err)
		return nil
	}
	return items
}

func appendRecord(contestView, summaryView *tview.TextView, rec domain.Record) {
	switch rec.Kind {
	case domain.RecordGenerator:
		fmt.Fprintf(contestView, "[::b]Round %d[::-]\n[white]%s\n", rec.Round, tview.Escape(rec.Text()))
	case domain.RecordEvaluator:
		if rec.Evaluate != nil {
			fmt.Fprintf(contestView, "[yellow]%d/%d[-] %s\n\n", rec.Evaluate.Score, domain.MaxScore, tview.Escape(rec.Evaluate.Reason))
		}
	case domain.RecordSummary:
		summaryView.SetText(tview.Escape(rec.Text()))
	}
	contestView.ScrollToEnd()
}

func renderScores(table *tview.Table, evaluations []domain.Record) {
	table.Clear()
	for i, h := range []string{"Round", "Score"} {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	total := 0
	for i, rec := range evaluations {
		if rec.Evaluate == nil {
			continue
		}
		total += rec.Evaluate.Score
		table.SetCell(i+1, 0, tview.NewTableCell(strconv.Itoa(rec.Round)))
		table.SetCell(i+1, 1, tview.NewTableCell(strconv.Itoa(rec.Evaluate.Score)))
	}
	if n := len(evaluations); n > 0 {
		table.SetCell(n+1, 0, tview.NewTableCell("avg").SetAttributes(tcell.AttrBold))
		table.SetCell(n+1, 1, tview.NewTableCell(fmt.Sprintf("%.1f", float64(total)/float64(n))))
	}
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
