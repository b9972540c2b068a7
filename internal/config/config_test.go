package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"joke_contest/internal/domain"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDecodesSections(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[model]
provider = "mock"
name = "gpt-test"
timeout_ms = 1500
retries = 2

[contest]
max_rounds = 5
stall_timeout_ms = 250
instructions_file = "roles.yaml"

[journal]
db_path = "journal.db"

[extra]
unused = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != ProviderMock || cfg.Model.Name != "gpt-test" || cfg.Model.Retries != 2 {
		t.Fatalf("model=%+v", cfg.Model)
	}
	if cfg.Model.Timeout() != 1500*time.Millisecond {
		t.Fatalf("timeout=%s", cfg.Model.Timeout())
	}
	if cfg.Contest.MaxRounds != 5 || cfg.Contest.StallTimeout() != 250*time.Millisecond {
		t.Fatalf("contest=%+v", cfg.Contest)
	}
	if cfg.Contest.InstructionsFile != filepath.Join(dir, "roles.yaml") {
		t.Fatalf("instructions file=%q", cfg.Contest.InstructionsFile)
	}
	if cfg.Journal.DBPath != "journal.db" {
		t.Fatalf("db path=%q", cfg.Journal.DBPath)
	}
	if cfg.Path != path {
		t.Fatalf("path=%q", cfg.Path)
	}
	found := false
	for _, key := range cfg.Undecoded {
		if key == "extra.unused" {
			found = true
		}
	}
	if !found {
		t.Fatalf("undecoded=%v", cfg.Undecoded)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "[model]\nname = \"x\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != ProviderOpenAI || cfg.Model.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("model defaults=%+v", cfg.Model)
	}
	if cfg.Contest.MaxRounds != 3 || cfg.Contest.StreamBuffer != 16 || cfg.Contest.BusBuffer != 64 {
		t.Fatalf("contest defaults=%+v", cfg.Contest)
	}
	if cfg.Journal.DBPath != ":memory:" {
		t.Fatalf("journal default=%q", cfg.Journal.DBPath)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default config: %v", err)
	}
	if cfg.Path != "" || cfg.Contest.MaxRounds != 3 {
		t.Fatalf("default config=%+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("missing explicit config accepted")
	}
}

func TestLoadExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, "[journal]\ndb_path = \"~/runs.db\"\n")

	cfg, err := Load("~/config.toml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Journal.DBPath != filepath.Join(home, "runs.db") {
		t.Fatalf("db path=%q", cfg.Journal.DBPath)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"provider": "[model]\nprovider = \"llama-on-a-toaster\"\n",
		"rounds":   "[contest]\nmax_rounds = -2\n",
		"syntax":   "[model\nname = 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, t.TempDir(), body)); !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("err=%v", err)
			}
		})
	}
}
