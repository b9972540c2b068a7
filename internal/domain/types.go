package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	TopicGenerate  = "joke_generator"
	TopicEvaluate  = "joke_evaluation"
	TopicSummarize = "joke_contest_summary"
)

const (
	AgentGenerator    = "generator"
	AgentEvaluator    = "evaluator"
	AgentCommentator  = "commentator"
	AgentOrchestrator = "orchestrator"
)

const (
	MinScore = 0
	MaxScore = 10
)

type MessageType string

const (
	MessageTypeGenerate  MessageType = "GENERATE"
	MessageTypeEvaluate  MessageType = "EVALUATE"
	MessageTypeSummarize MessageType = "SUMMARIZE"
)

// TopicMessageType maps each topic to the only message type it carries.
var TopicMessageType = map[string]MessageType{
	TopicGenerate:  MessageTypeGenerate,
	TopicEvaluate:  MessageTypeEvaluate,
	TopicSummarize: MessageTypeSummarize,
}

type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusDone     RunStatus = "done"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// Message is the envelope routed by the bus. Payload holds one of the
// request records below, JSON encoded.
type Message struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Topic     string          `json:"topic"`
	FromAgent string          `json:"from_agent"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type GenerateRequest struct {
	Round int `json:"round"`
}

func (r GenerateRequest) Validate() error {
	if r.Round < 1 {
		return fmt.Errorf("%w: generate request round must be positive, got %d", ErrValidation, r.Round)
	}
	return nil
}

type GenerateResult struct {
	Content string `json:"content" jsonschema_description:"The joke text"`
}

func (r GenerateResult) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: joke content is empty", ErrValidation)
	}
	return nil
}

type EvaluateRequest struct {
	Content string `json:"content"`
	Round   int    `json:"round"`
}

func (r EvaluateRequest) Validate() error {
	if r.Round < 1 {
		return fmt.Errorf("%w: evaluate request round must be positive, got %d", ErrValidation, r.Round)
	}
	return nil
}

type EvaluateResult struct {
	Score  int    `json:"score" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Humor score from 0 (not funny) to 10 (very funny)"`
	Reason string `json:"reason" jsonschema_description:"Short reason for the score"`
}

func (r EvaluateResult) Validate() error {
	if r.Score < MinScore || r.Score > MaxScore {
		return fmt.Errorf("%w: score %d outside [%d,%d]", ErrValidation, r.Score, MinScore, MaxScore)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("%w: score reason is empty", ErrValidation)
	}
	return nil
}

type SummarizeRequest struct {
	Contents []string `json:"contents"`
	Scores   []int    `json:"scores"`
	Reasons  []string `json:"reasons"`
}

func (r SummarizeRequest) Validate() error {
	if len(r.Contents) != len(r.Scores) || len(r.Contents) != len(r.Reasons) {
		return fmt.Errorf("%w: summarize request lengths differ contents=%d scores=%d reasons=%d",
			ErrInvariant, len(r.Contents), len(r.Scores), len(r.Reasons))
	}
	return nil
}

// Rounds returns the number of completed rounds carried by the request.
func (r SummarizeRequest) Rounds() int {
	return len(r.Contents)
}

type SummaryResult struct {
	Summary string `json:"summary" jsonschema_description:"Closing commentary on the whole contest"`
}

func (r SummaryResult) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("%w: summary is empty", ErrValidation)
	}
	return nil
}

// Turn is one entry of the conversation handed to the completion service.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

type DecisionLog struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type RunInfo struct {
	ID        string    `json:"id"`
	MaxRounds int       `json:"max_rounds"`
	Status    RunStatus `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
