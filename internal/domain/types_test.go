package domain

import (
	"errors"
	"testing"
	"time"
)

func TestResultValidation(t *testing.T) {
	tests := []struct {
		name    string
		v       interface{ Validate() error }
		wantErr error
	}{
		{name: "joke ok", v: GenerateResult{Content: "A"}},
		{name: "joke blank", v: GenerateResult{Content: "  "}, wantErr: ErrValidation},
		{name: "score ok", v: EvaluateResult{Score: 7, Reason: "ok"}},
		{name: "score low bound", v: EvaluateResult{Score: 0, Reason: "flat"}},
		{name: "score high bound", v: EvaluateResult{Score: 10, Reason: "great"}},
		{name: "score negative", v: EvaluateResult{Score: -1, Reason: "x"}, wantErr: ErrValidation},
		{name: "score too high", v: EvaluateResult{Score: 11, Reason: "x"}, wantErr: ErrValidation},
		{name: "score without reason", v: EvaluateResult{Score: 5}, wantErr: ErrValidation},
		{name: "summary blank", v: SummaryResult{}, wantErr: ErrValidation},
		{name: "generate round zero", v: GenerateRequest{Round: 0}, wantErr: ErrValidation},
		{name: "evaluate round ok", v: EvaluateRequest{Content: "A", Round: 1}},
		{name: "summarize mismatch", v: SummarizeRequest{Contents: []string{"a"}, Scores: []int{1, 2}, Reasons: []string{"r"}}, wantErr: ErrInvariant},
		{name: "summarize empty", v: SummarizeRequest{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.v.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRecordText(t *testing.T) {
	if got := NewGenerateRecord(1, GenerateResult{Content: "A"}).Text(); got != "A" {
		t.Fatalf("generator text=%q", got)
	}
	if got := NewEvaluateRecord(1, EvaluateResult{Score: 7, Reason: "ok"}).Text(); got != "7 ok" {
		t.Fatalf("evaluator text=%q", got)
	}
	rec := NewSummaryRecord(SummaryResult{Summary: "done"})
	if got := rec.Text(); got != "done" {
		t.Fatalf("summary text=%q", got)
	}
	if !rec.IsTerminal() {
		t.Fatalf("summary record should be terminal")
	}
	if (Record{Kind: RecordEvaluator}).Text() != "" {
		t.Fatalf("record without payload should render empty")
	}
}

func TestStalledRoundError(t *testing.T) {
	cause := errors.New("bad json")
	err := error(&StalledRoundError{Round: 2, Role: AgentEvaluator, Waited: time.Second, Cause: cause})
	if !errors.Is(err, ErrStalledRound) {
		t.Fatalf("expected ErrStalledRound")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	var stalled *StalledRoundError
	if !errors.As(err, &stalled) || stalled.Round != 2 {
		t.Fatalf("errors.As failed: %v", err)
	}
	if got := err.Error(); got != "stalled round 2 after 1s in evaluator: bad json" {
		t.Fatalf("message=%q", got)
	}
}
