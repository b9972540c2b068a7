package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"joke_contest/internal/completion"
	"joke_contest/internal/config"
	"joke_contest/internal/orchestrator"
	"joke_contest/internal/prompts"
	sqlitestore "joke_contest/internal/store/sqlite"
)

// app holds everything a subcommand needs for one process.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	journal *sqlitestore.Store
	service *orchestrator.Service

	closers []func() error
}

// newApp loads configuration, the logger and the journal. quietLogs sends
// logs nowhere unless a log file is set.
func newApp(ctx context.Context, opts *options, quietLogs bool) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.Journal.DBPath = opts.dbPath
	}
	if opts.mock {
		cfg.Model.Provider = config.ProviderMock
	}

	a := &app{cfg: cfg}
	var logOut io.Writer = os.Stderr
	if quietLogs {
		logOut = io.Discard
	}
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		logOut = f
	}
	a.logger, err = newLogger(logOut, opts.logLevel)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, key := range cfg.Undecoded {
		a.logger.Warn("unknown config key ignored", "key", key, "path", cfg.Path)
	}

	a.journal, err = sqlitestore.Open(cfg.Journal.DBPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.journal.Close)
	if err := a.journal.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Debug("app ready", "journal", cfg.Journal.DBPath)
	return a, nil
}

// wireDriver builds the completion backend and the run driver. Commands
// that only read the journal never call it.
func (a *app) wireDriver() error {
	instructions := prompts.Defaults()
	if a.cfg.Contest.InstructionsFile != "" {
		var err error
		instructions, err = prompts.Load(a.cfg.Contest.InstructionsFile)
		if err != nil {
			return err
		}
	}

	backend, err := buildCompletion(a.cfg.Model, a.logger)
	if err != nil {
		return err
	}
	a.service = orchestrator.New(backend, instructions, a.journal, orchestrator.Config{
		StallTimeout: a.cfg.Contest.StallTimeout(),
		StreamBuffer: a.cfg.Contest.StreamBuffer,
		BusBuffer:    a.cfg.Contest.BusBuffer,
	}, a.logger)
	a.logger.Debug("driver ready", "provider", a.cfg.Model.Provider, "model", a.cfg.Model.Name)
	return nil
}

func (a *app) rounds(flag int) int {
	if flag != 0 {
		return flag
	}
	return a.cfg.Contest.MaxRounds
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func buildCompletion(cfg config.ModelConfig, logger *slog.Logger) (completion.Service, error) {
	if cfg.Provider == config.ProviderMock {
		return &completion.Offline{}, nil
	}
	svc, err := completion.NewOpenAI(completion.OpenAIConfig{
		APIKey:  os.Getenv(cfg.APIKeyEnv),
		BaseURL: cfg.BaseURL,
		Model:   cfg.Name,
		Timeout: cfg.Timeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set %s or use --mock)", err, cfg.APIKeyEnv)
	}
	return completion.WithRetry(svc, cfg.Retries, cfg.RetryBackoff(), logger), nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
