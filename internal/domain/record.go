package domain

import (
	"fmt"
	"time"
)

// RecordKind tags the producer of a streamed record.
type RecordKind string

const (
	RecordGenerator RecordKind = "generator"
	RecordEvaluator RecordKind = "evaluator"
	RecordSummary   RecordKind = "summary"
)

// Record is the tagged variant pushed onto the result stream. Exactly one
// of Generate, Evaluate, Summary is set and Kind says which.
type Record struct {
	Kind      RecordKind      `json:"kind"`
	Round     int             `json:"round,omitempty"`
	Generate  *GenerateResult `json:"generate,omitempty"`
	Evaluate  *EvaluateResult `json:"evaluate,omitempty"`
	Summary   *SummaryResult  `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewGenerateRecord(round int, r GenerateResult) Record {
	return Record{Kind: RecordGenerator, Round: round, Generate: &r, CreatedAt: time.Now().UTC()}
}

func NewEvaluateRecord(round int, r EvaluateResult) Record {
	return Record{Kind: RecordEvaluator, Round: round, Evaluate: &r, CreatedAt: time.Now().UTC()}
}

func NewSummaryRecord(r SummaryResult) Record {
	return Record{Kind: RecordSummary, Summary: &r, CreatedAt: time.Now().UTC()}
}

// Text renders the display payload of the record.
func (r Record) Text() string {
	switch r.Kind {
	case RecordGenerator:
		if r.Generate != nil {
			return r.Generate.Content
		}
	case RecordEvaluator:
		if r.Evaluate != nil {
			return fmt.Sprintf("%d %s", r.Evaluate.Score, r.Evaluate.Reason)
		}
	case RecordSummary:
		if r.Summary != nil {
			return r.Summary.Summary
		}
	}
	return ""
}

func (r Record) IsTerminal() bool {
	return r.Kind == RecordSummary
}
