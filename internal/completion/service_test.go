package completion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"joke_contest/internal/domain"
)

func TestCompleteDecodesAndValidates(t *testing.T) {
	svc := NewScripted(Reply{Text: "```json\n{\"score\": 7, \"reason\": \"ok\"}\n```"})
	var out domain.EvaluateResult
	err := Complete(context.Background(), svc, "score it", []domain.Turn{{Role: domain.TurnRoleUser, Content: "joke"}}, &out)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Score != 7 || out.Reason != "ok" {
		t.Fatalf("out=%+v", out)
	}
	calls := svc.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls=%d", len(calls))
	}
	if calls[0].Instructions != "score it" || calls[0].Schema.Name != "EvaluateResult" {
		t.Fatalf("request=%+v", calls[0])
	}
}

func TestCompleteValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "ha ha"},
		{name: "unknown field", raw: `{"score": 5, "reason": "x", "mood": "sad"}`},
		{name: "score out of range", raw: `{"score": 42, "reason": "x"}`},
		{name: "fractional score", raw: `{"score": 7.5, "reason": "x"}`},
		{name: "missing reason", raw: `{"score": 5}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out domain.EvaluateResult
			err := Complete(context.Background(), NewScripted(Reply{Text: tc.raw}), "", nil, &out)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err=%v want validation error", err)
			}
			if errors.Is(err, domain.ErrCollaborator) {
				t.Fatalf("validation failure classified as collaborator error")
			}
		})
	}
}

func TestCompleteCollaboratorError(t *testing.T) {
	boom := errors.New("connection refused")
	var out domain.GenerateResult
	err := Complete(context.Background(), NewScripted(Reply{Err: boom}), "", nil, &out)
	if !errors.Is(err, domain.ErrCollaborator) || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestCompleteRejectsNonPointer(t *testing.T) {
	err := Complete(context.Background(), NewScripted(), "", nil, domain.GenerateResult{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
}

func TestSchemaForIsStrict(t *testing.T) {
	schema, err := SchemaFor(&domain.EvaluateResult{})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	raw, err := json.Marshal(schema.Definition)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if _, ok := doc["$schema"]; ok {
		t.Fatalf("$schema keyword kept: %s", raw)
	}
	if doc["additionalProperties"] != false {
		t.Fatalf("additionalProperties=%v", doc["additionalProperties"])
	}
	props, _ := doc["properties"].(map[string]any)
	score, _ := props["score"].(map[string]any)
	if score["type"] != "integer" || score["maximum"] != float64(10) {
		t.Fatalf("score schema=%v", score)
	}
	required, _ := doc["required"].([]any)
	if len(required) != 2 {
		t.Fatalf("required=%v", required)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                        `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"```\n{\"a\":1}\n```":            `{"a":1}`,
		"Sure! here it is {\"a\":1} bye": `{"a":1}`,
		"no json here":                   "no json here",
	}
	for in, want := range tests {
		if got := extractJSONObject(in); got != want {
			t.Fatalf("extractJSONObject(%q)=%q want %q", in, got, want)
		}
	}
}

func TestOfflineProducesValidResults(t *testing.T) {
	svc := &Offline{}
	ctx := context.Background()
	for round := 0; round < 5; round++ {
		var joke domain.GenerateResult
		if err := Complete(ctx, svc, "", nil, &joke); err != nil {
			t.Fatalf("joke: %v", err)
		}
		var score domain.EvaluateResult
		if err := Complete(ctx, svc, "", nil, &score); err != nil {
			t.Fatalf("score: %v", err)
		}
	}
	var summary domain.SummaryResult
	if err := Complete(ctx, svc, "", nil, &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(summary.Summary, "5 jokes") {
		t.Fatalf("summary=%q", summary.Summary)
	}
}

func TestTrimKeepsRuneBoundaries(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"笑话笑话", 8, "笑..."},
		{"笑话笑话", 0, "笑话笑话"},
	}
	for _, tc := range cases {
		got := trim(tc.in, tc.n)
		if got != tc.want || !utf8.ValidString(got) {
			t.Fatalf("trim(%q, %d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
