package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"joke_contest/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

type Config struct {
	Model   ModelConfig   `toml:"model"`
	Contest ContestConfig `toml:"contest"`
	Journal JournalConfig `toml:"journal"`
	// Undecoded lists keys present in the file that no field consumed.
	Undecoded []string `toml:"-"`
	Path      string   `toml:"-"`
}

type ModelConfig struct {
	Provider       string `toml:"provider"`
	Name           string `toml:"name"`
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutMS      int    `toml:"timeout_ms"`
	Retries        int    `toml:"retries"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
}

type ContestConfig struct {
	MaxRounds        int    `toml:"max_rounds"`
	StallTimeoutMS   int    `toml:"stall_timeout_ms"`
	StreamBuffer     int    `toml:"stream_buffer"`
	BusBuffer        int    `toml:"bus_buffer"`
	InstructionsFile string `toml:"instructions_file"`
}

type JournalConfig struct {
	DBPath string `toml:"db_path"`
}

// Default is the configuration used when no file exists at the default path.
func Default() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderOpenAI
	}
	if c.Model.Name == "" {
		c.Model.Name = "gpt-4o-mini"
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model.TimeoutMS <= 0 {
		c.Model.TimeoutMS = 60_000
	}
	if c.Model.Retries < 0 {
		c.Model.Retries = 0
	}
	if c.Model.RetryBackoffMS <= 0 {
		c.Model.RetryBackoffMS = 500
	}
	if c.Contest.MaxRounds == 0 {
		c.Contest.MaxRounds = 3
	}
	if c.Contest.StallTimeoutMS <= 0 {
		c.Contest.StallTimeoutMS = 120_000
	}
	if c.Contest.StreamBuffer <= 0 {
		c.Contest.StreamBuffer = 16
	}
	if c.Contest.BusBuffer <= 0 {
		c.Contest.BusBuffer = 64
	}
	if c.Journal.DBPath == "" {
		c.Journal.DBPath = ":memory:"
	}
	return c
}

func (c Config) Validate() error {
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("%w: unknown model provider %q", domain.ErrConfiguration, c.Model.Provider)
	}
	if c.Contest.MaxRounds < 1 {
		return fmt.Errorf("%w: contest.max_rounds must be at least 1, got %d", domain.ErrConfiguration, c.Contest.MaxRounds)
	}
	return nil
}

func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

func (m ModelConfig) RetryBackoff() time.Duration {
	return time.Duration(m.RetryBackoffMS) * time.Millisecond
}

func (c ContestConfig) StallTimeout() time.Duration {
	return time.Duration(c.StallTimeoutMS) * time.Millisecond
}

// Load reads path, or the default path when empty. A missing file at the
// default path yields Default(); a missing explicit path is an error.
func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	resolved, err := ExpandPath(resolved)
	if err != nil {
		return Config{}, err
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if path == "" && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(bytes), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: decode config file %s: %w", domain.ErrConfiguration, resolved, err)
	}
	for _, key := range meta.Undecoded() {
		cfg.Undecoded = append(cfg.Undecoded, key.String())
	}
	cfg = cfg.withDefaults()
	if cfg.Contest.InstructionsFile != "" {
		p, err := ExpandPath(cfg.Contest.InstructionsFile)
		if err != nil {
			return Config{}, err
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(resolved), p)
		}
		cfg.Contest.InstructionsFile = p
	}
	if cfg.Journal.DBPath != ":memory:" {
		p, err := ExpandPath(cfg.Journal.DBPath)
		if err != nil {
			return Config{}, err
		}
		cfg.Journal.DBPath = p
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Path = resolved
	return cfg, nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(p, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		p = filepath.Join(home, trimmed)
	}
	return filepath.Clean(p), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".joke_contest/config.toml"
	}
	return filepath.Join(home, ".joke_contest", "config.toml")
}
