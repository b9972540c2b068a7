package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"joke_contest/internal/domain"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("expected defaults")
	}
}

func TestLoadOverridesRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	content := "roles:\n  evaluator:\n    instructions: |\n      Score harshly.\n  generator:\n    instructions: \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Evaluator != "Score harshly." {
		t.Fatalf("evaluator=%q", got.Evaluator)
	}
	if got.Generator != Defaults().Generator {
		t.Fatalf("blank override replaced generator default")
	}
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  heckler:\n    instructions: boo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTranscriptListsEveryRound(t *testing.T) {
	out := Transcript(domain.SummarizeRequest{
		Contents: []string{"joke one", "joke two"},
		Scores:   []int{3, 8},
		Reasons:  []string{"weak", "sharp"},
	})
	for _, want := range []string{"Round 1:\nJoke: joke one\nScore: 3\nReason: weak", "Round 2:\nJoke: joke two\nScore: 8\nReason: sharp"} {
		if !strings.Contains(out, want) {
			t.Fatalf("transcript missing %q:\n%s", want, out)
		}
	}
}

func TestRoundPrompts(t *testing.T) {
	if got := GeneratePrompt(domain.GenerateRequest{Round: 2}); !strings.Contains(got, "round 2") {
		t.Fatalf("generate prompt=%q", got)
	}
	if got := EvaluatePrompt(domain.EvaluateRequest{Content: "knock knock", Round: 3}); !strings.Contains(got, "knock knock") || !strings.Contains(got, "round 3") {
		t.Fatalf("evaluate prompt=%q", got)
	}
}
