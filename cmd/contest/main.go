package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	dbPath     string
	logLevel   string
	logFile    string
	rounds     int
	mock       bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "contest: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "contest",
		Short:         "Run a joke contest between a generator, an evaluator and a commentator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.toml (default: ~/.joke_contest/config.toml)")
	flags.StringVar(&opts.dbPath, "db", "", "journal sqlite path override (\":memory:\" keeps nothing)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	flags.IntVar(&opts.rounds, "rounds", 0, "number of rounds (default: contest.max_rounds)")
	flags.BoolVar(&opts.mock, "mock", false, "use the offline completion backend")

	root.AddCommand(newRunCmd(opts), newMonitorCmd(opts), newJournalCmd(opts))
	return root
}
