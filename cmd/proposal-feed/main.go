package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ryosukesatoh/proposal-feed/internal/config"
	"github.com/ryosukesatoh/proposal-feed/internal/logging"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "proposal-feed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var once bool
	var logLevel string

	flagSet := pflag.NewFlagSet("proposal-feed", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", defaultConfigPath, "path to YAML config file")
	flagSet.BoolVar(&once, "once", false, "wait for the bot to be ready, run one cycle and exit")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	// Without an explicit --config a missing default file means defaults
	// plus environment.
	if !flagSet.Changed("config") {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting proposal feed",
		"source", cfg.Source.Type,
		"summarizer", cfg.Summarizer.Type,
		"publisher", cfg.Publisher.Type,
		"once", once)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return a.run(ctx, once)
}
