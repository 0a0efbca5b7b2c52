package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryosukesatoh/proposal-feed/internal/bot"
	"github.com/ryosukesatoh/proposal-feed/internal/config"
	"github.com/ryosukesatoh/proposal-feed/internal/dedup"
	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
	"github.com/ryosukesatoh/proposal-feed/internal/health"
	"github.com/ryosukesatoh/proposal-feed/internal/publisher"
	"github.com/ryosukesatoh/proposal-feed/internal/retry"
	"github.com/ryosukesatoh/proposal-feed/internal/runner"
	"github.com/ryosukesatoh/proposal-feed/internal/summarizer"
)

const shutdownTimeout = 5 * time.Second

// app holds the wired process. bot and health are nil when not configured.
type app struct {
	runner *runner.Runner
	bot    *bot.Bot
	health *health.Server
	logger *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	f, err := fetcher.New(cfg.Source, logger.With("component", "fetcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to build fetcher: %w", err)
	}

	s, err := summarizer.New(ctx, cfg.Summarizer, logger.With("component", "summarizer"))
	if err != nil {
		return nil, fmt.Errorf("failed to build summarizer: %w", err)
	}

	var sender publisher.EmbedSender
	if cfg.Publisher.Type == "bot" {
		a.bot, err = bot.New(cfg.Publisher.Discord.Token, logger.With("component", "bot"))
		if err != nil {
			return nil, err
		}
		sender = a.bot.Session()
	}

	p, err := publisher.New(cfg.Publisher, sender, logger.With("component", "publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to build publisher: %w", err)
	}

	a.runner = runner.New(f, s, p, dedup.New(), runner.Options{
		Schedule:   cfg.Schedule,
		RunOnStart: cfg.ShouldRunOnStart(),
	}, logger.With("component", "runner"))

	if cfg.Health.HealthEnabled() {
		a.health = health.NewServer(cfg.Health.Addr, logger.With("component", "health"))
	}

	return a, nil
}

// ready connects the bot and returns its readiness signal. Without a bot the
// signal is already closed.
func (a *app) ready(ctx context.Context) (<-chan struct{}, error) {
	if a.bot == nil {
		ch := make(chan struct{})
		close(ch)
		return ch, nil
	}
	if err := a.bot.Connect(ctx, retry.DefaultConfig()); err != nil {
		return nil, err
	}
	return a.bot.Ready(), nil
}

// run serves until ctx is cancelled, or for a single cycle when once is set.
func (a *app) run(ctx context.Context, once bool) error {
	if a.health != nil {
		if err := a.health.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.health.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("health server shutdown error", "error", err)
			}
		}()
	}

	ready, err := a.ready(ctx)
	if err != nil {
		return err
	}
	if a.bot != nil {
		defer func() {
			if err := a.bot.Close(); err != nil {
				a.logger.Error("failed to close discord session", "error", err)
			}
		}()
	}

	if once {
		return a.runOnce(ctx, ready)
	}

	if err := a.runner.Start(ctx, ready); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info("shutdown before ready")
			return nil
		}
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down")
	a.runner.Stop()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *app) runOnce(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
	}

	report := a.runner.RunCycle(ctx)
	if report.Skipped != "" {
		return fmt.Errorf("cycle skipped: %s", report.Skipped)
	}
	a.logger.Info("done", "published", report.Published, "failed", report.Failed)
	return nil
}
