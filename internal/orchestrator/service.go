package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"joke_contest/internal/agent"
	"joke_contest/internal/completion"
	"joke_contest/internal/contest"
	"joke_contest/internal/domain"
	"joke_contest/internal/messaging/inproc"
	"joke_contest/internal/prompts"
	"joke_contest/internal/stream"
)

const journalObserverID = "journal"

// Journal receives the operator-facing trail of a run. All methods are
// best effort; failures are logged and never affect the run.
type Journal interface {
	CreateRun(ctx context.Context, run domain.RunInfo) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, lastError string) error
	LogMessage(ctx context.Context, msg domain.Message) error
	AppendRecord(ctx context.Context, runID string, seq int, rec domain.Record) error
	LogDecision(ctx context.Context, entry domain.DecisionLog) error
}

type Config struct {
	// StallTimeout is the longest the driver waits for the next record.
	StallTimeout time.Duration
	StreamBuffer int
	BusBuffer    int
}

func (c Config) withDefaults() Config {
	if c.StallTimeout <= 0 {
		c.StallTimeout = 2 * time.Minute
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 16
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = 64
	}
	return c
}

type Service struct {
	completion   completion.Service
	instructions prompts.Instructions
	journal      Journal
	cfg          Config
	logger       *slog.Logger
}

// New builds a driver. journal may be nil.
func New(svc completion.Service, instructions prompts.Instructions, journal Journal, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completion:   svc,
		instructions: instructions,
		journal:      journal,
		cfg:          cfg.withDefaults(),
		logger:       logger,
	}
}

// RunContest wires a fresh run and publishes the first GenerateRequest. The
// returned Contest yields records until the summary, then io.EOF.
func (s *Service) RunContest(ctx context.Context, maxRounds int) (*Contest, error) {
	if s.completion == nil {
		return nil, fmt.Errorf("%w: no completion service", domain.ErrConfiguration)
	}
	runID := uuid.NewString()
	run, err := contest.NewRun(runID, maxRounds)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := s.logger.With("run", runID)
	c := &Contest{
		run:          run,
		bus:          inproc.New(s.cfg.BusBuffer, logger),
		results:      stream.New(s.cfg.StreamBuffer),
		journal:      s.journal,
		stallTimeout: s.cfg.StallTimeout,
		cancel:       cancel,
		logger:       logger,
	}
	c.bus.OnPanic(func(agentID string, msg domain.Message, recovered any) {
		run.Fail(fmt.Errorf("%w: %s panicked handling %s: %v", domain.ErrInvariant, agentID, msg.Type, recovered))
	})

	if err := c.wire(s.completion, s.instructions); err != nil {
		c.shutdown(false)
		return nil, err
	}
	c.bus.Start(runCtx)

	s.record(runCtx, func(ctx context.Context, j Journal) error {
		now := time.Now().UTC()
		return j.CreateRun(ctx, domain.RunInfo{
			ID:        runID,
			MaxRounds: maxRounds,
			Status:    domain.RunStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})

	first, err := json.Marshal(domain.GenerateRequest{Round: 1})
	if err != nil {
		c.shutdown(false)
		return nil, err
	}
	if err := c.bus.Publish(domain.Message{
		ID:        uuid.NewString(),
		RunID:     runID,
		Topic:     domain.TopicGenerate,
		FromAgent: domain.AgentOrchestrator,
		Type:      domain.MessageTypeGenerate,
		Payload:   first,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		c.shutdown(false)
		return nil, fmt.Errorf("publish first round: %w", err)
	}
	logger.Info("contest started", "max_rounds", maxRounds)
	return c, nil
}

func (s *Service) record(ctx context.Context, fn func(context.Context, Journal) error) {
	if s.journal == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), s.journal); err != nil {
		s.logger.Debug("journal write failed", "err", err)
	}
}

// Contest is one running contest as seen by its consumer. Next must not be
// called concurrently with itself; Close may be called from any goroutine.
type Contest struct {
	run          *contest.Run
	bus          *inproc.Bus
	results      *stream.Bridge
	journal      Journal
	stallTimeout time.Duration
	cancel       context.CancelFunc
	logger       *slog.Logger

	mu       sync.Mutex
	seq      int
	finished bool
	err      error

	closeOnce sync.Once
}

func (c *Contest) wire(svc completion.Service, in prompts.Instructions) error {
	deps := agent.Deps{
		Run:        c.run,
		Bus:        c.bus,
		Results:    c.results,
		Completion: svc,
		Journal:    c.journal,
		Logger:     c.logger,
	}

	gen, err := agent.NewGenerator(deps, in.Generator)
	if err != nil {
		return err
	}
	eval, err := agent.NewEvaluator(deps, in.Evaluator)
	if err != nil {
		return err
	}
	comm, err := agent.NewCommentator(deps, in.Commentator)
	if err != nil {
		return err
	}
	for _, a := range []interface{ Register() error }{gen, eval, comm} {
		if err := a.Register(); err != nil {
			return err
		}
	}

	if c.journal == nil {
		return nil
	}
	for _, topic := range []string{domain.TopicGenerate, domain.TopicEvaluate, domain.TopicSummarize} {
		if err := c.bus.Observe(topic, journalObserverID, c.logMessage); err != nil {
			return err
		}
	}
	return nil
}

func (c *Contest) logMessage(ctx context.Context, msg domain.Message) {
	if err := c.journal.LogMessage(context.WithoutCancel(ctx), msg); err != nil {
		c.logger.Debug("journal message write failed", "message", msg.ID, "err", err)
	}
}

func (c *Contest) RunID() string {
	return c.run.ID()
}

// Done is closed once the commentator has set the completion flag.
func (c *Contest) Done() <-chan struct{} {
	return c.run.Done()
}

// Next returns the next record in production order. After the summary it
// returns io.EOF. A stalled or failed run ends with a non-EOF error, and
// every later call returns the same error.
func (c *Contest) Next(ctx context.Context) (domain.Record, error) {
	if err := c.terminal(); err != nil {
		return domain.Record{}, err
	}

	timer := time.NewTimer(c.stallTimeout)
	defer timer.Stop()

	select {
	case rec, ok := <-c.results.Records():
		if !ok {
			return domain.Record{}, c.finish(c.closedErr())
		}
		return c.deliver(rec), nil
	case <-c.run.Failed():
		// records pushed before the failure are still delivered
		select {
		case rec, ok := <-c.results.Records():
			if ok {
				return c.deliver(rec), nil
			}
		default:
		}
		return domain.Record{}, c.finish(c.run.Err())
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	case <-timer.C:
		return domain.Record{}, c.finish(c.stalled())
	}
}

// Collect drains the contest. On success the error is nil.
func (c *Contest) Collect(ctx context.Context) ([]domain.Record, error) {
	var out []domain.Record
	for {
		rec, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close cancels in-flight completion calls and releases the run. A contest
// that has not finished is journaled as canceled.
func (c *Contest) Close() error {
	c.finish(fmt.Errorf("contest %s: %w", c.run.ID(), context.Canceled))
	return nil
}

func (c *Contest) terminal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		return nil
	}
	return c.err
}

func (c *Contest) deliver(rec domain.Record) domain.Record {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	if c.journal != nil {
		if err := c.journal.AppendRecord(context.Background(), c.run.ID(), seq, rec); err != nil {
			c.logger.Debug("journal record write failed", "seq", seq, "err", err)
		}
	}
	if rec.IsTerminal() {
		c.finish(io.EOF)
	}
	return rec
}

func (c *Contest) stalled() error {
	err := &domain.StalledRoundError{
		Round:  c.run.Rounds().Current + 1,
		Waited: c.stallTimeout,
	}
	if s, ok := c.run.LastStall(); ok {
		err.Round = s.Round
		err.Role = s.Role
		err.Cause = s.Cause
	}
	return err
}

func (c *Contest) closedErr() error {
	if err := c.run.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: result stream closed before summary", domain.ErrInvariant)
}

// finish records the terminal state once and tears the run down. It waits
// for every agent handler to return.
func (c *Contest) finish(err error) error {
	c.mu.Lock()
	if c.finished {
		err = c.err
		c.mu.Unlock()
		return err
	}
	c.finished = true
	c.err = err
	records := c.seq
	c.mu.Unlock()
	c.shutdown(errors.Is(err, io.EOF))

	status := domain.RunStatusDone
	lastError := ""
	switch {
	case errors.Is(err, io.EOF):
		c.logger.Info("contest finished", "records", records)
	case errors.Is(err, context.Canceled):
		status = domain.RunStatusCanceled
		lastError = err.Error()
		c.logger.Info("contest canceled", "records", records)
	default:
		status = domain.RunStatusFailed
		lastError = err.Error()
		c.logger.Error("contest failed", "records", records, "err", err)
	}
	if c.journal != nil {
		if jerr := c.journal.FinishRun(context.Background(), c.run.ID(), status, lastError); jerr != nil {
			c.logger.Debug("journal finish failed", "err", jerr)
		}
	}
	return err
}

// shutdown releases the run. A graceful shutdown lets observers drain
// queued messages before the run context is cancelled.
func (c *Contest) shutdown(graceful bool) {
	c.closeOnce.Do(func() {
		if !graceful {
			c.cancel()
		}
		c.results.Close()
		c.bus.Close()
		c.cancel()
	})
}
