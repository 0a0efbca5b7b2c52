package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/ryosukesatoh/proposal-feed/internal/dedup"
	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
	"github.com/ryosukesatoh/proposal-feed/internal/publisher"
	"github.com/ryosukesatoh/proposal-feed/internal/summarizer"
)

// State is the scheduler's lifecycle position.
type State int32

const (
	// StateWaiting means the runner is blocked on the ready signal.
	StateWaiting State = iota
	// StatePolling means cycles are being scheduled.
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StatePolling:
		return "polling"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options controls scheduling.
type Options struct {
	Schedule   string
	RunOnStart bool
}

// Report describes one cycle. Skipped is non-empty when preflight stopped the
// cycle before fetching.
type Report struct {
	Fetched   int
	New       int
	Published int
	Failed    int
	Skipped   string
}

// preflighter is implemented by components that can tell up front that a
// cycle would be pointless, such as a missing API key or channel.
type preflighter interface {
	Preflight() error
}

// Runner orchestrates the fetch -> dedup -> summarize -> publish pipeline.
type Runner struct {
	fetcher    fetcher.Fetcher
	summarizer summarizer.Summarizer
	publisher  publisher.Publisher
	seen       *dedup.Set
	opts       Options
	logger     *slog.Logger

	state atomic.Int32

	// cycleMu serializes cycles; the seen set is not safe for concurrent use.
	cycleMu sync.Mutex

	mu   sync.Mutex
	cron *cron.Cron
}

func New(f fetcher.Fetcher, s summarizer.Summarizer, p publisher.Publisher, seen *dedup.Set, opts Options, logger *slog.Logger) *Runner {
	if seen == nil {
		seen = dedup.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fetcher:    f,
		summarizer: s,
		publisher:  p,
		seen:       seen,
		opts:       opts,
		logger:     logger,
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Start waits for ready to close, optionally runs one cycle immediately, then
// schedules cycles on the configured cron spec. It returns once the schedule
// is running; call Stop to end it.
func (r *Runner) Start(ctx context.Context, ready <-chan struct{}) error {
	r.logger.Info("waiting for ready signal")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
	}

	r.state.Store(int32(StatePolling))
	r.logger.Info("ready; polling started", "schedule", r.opts.Schedule, "run_on_start", r.opts.RunOnStart)

	if r.opts.RunOnStart {
		r.RunCycle(ctx)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(r.logger.Handler(), slog.LevelError))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(r.opts.Schedule, func() { r.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("runner: invalid schedule %q: %w", r.opts.Schedule, err)
	}
	c.Start()

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	return nil
}

// Stop halts scheduling and waits for a running cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("scheduler stopped")
}

// RunCycle executes the pipeline once. A failing record is logged and
// counted; the remaining records are still processed.
func (r *Runner) RunCycle(ctx context.Context) (report Report) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("cycle aborted by panic", "panic", rec)
		}
	}()

	for _, component := range []any{r.fetcher, r.publisher} {
		p, ok := component.(preflighter)
		if !ok {
			continue
		}
		if err := p.Preflight(); err != nil {
			r.logger.Warn("cycle skipped", "reason", err)
			report.Skipped = err.Error()
			return report
		}
	}

	r.logger.Info("cycle started", "source", r.fetcher.Name())
	proposals := r.fetcher.Fetch(ctx)
	report.Fetched = len(proposals)

	for _, p := range proposals {
		if ctx.Err() != nil {
			r.logger.Warn("cycle interrupted", "error", ctx.Err())
			break
		}
		if !r.seen.IsNew(p.ID) {
			continue
		}
		report.New++

		if err := r.process(ctx, p); err != nil {
			report.Failed++
			r.logger.Error("proposal failed", "id", p.ID, "error", err)
			continue
		}
		report.Published++
	}

	r.logger.Info("cycle finished",
		"fetched", report.Fetched,
		"new", report.New,
		"published", report.Published,
		"failed", report.Failed,
		"seen_total", r.seen.Len())
	return report
}

// process summarizes and publishes one new proposal. The id is marked seen
// before the send so a failed post is not repeated on the next cycle.
func (r *Runner) process(ctx context.Context, p fetcher.Proposal) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("runner: panic while processing: %v", rec)
		}
	}()

	r.logger.Info("new proposal", "id", p.ID, "title", p.Title)
	summary := r.summarizer.Summarize(ctx, p.SummaryInput())
	r.seen.MarkSeen(p.ID)

	if err := r.publisher.Publish(ctx, p, summary); err != nil {
		return fmt.Errorf("runner: publish failed: %w", err)
	}
	return nil
}
