package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"joke_contest/internal/completion"
	"joke_contest/internal/contest"
	"joke_contest/internal/domain"
	"joke_contest/internal/messaging/inproc"
)

type Bus interface {
	Subscribe(topic, agentID string, handler inproc.Handler) error
	Publish(msg domain.Message) error
}

type Results interface {
	Push(ctx context.Context, rec domain.Record) error
}

type Journal interface {
	LogDecision(ctx context.Context, entry domain.DecisionLog) error
}

// Deps is everything an agent needs for one run. Journal may be nil.
type Deps struct {
	Run        *contest.Run
	Bus        Bus
	Results    Results
	Completion completion.Service
	Journal    Journal
	Logger     *slog.Logger
}

func (d Deps) validate() error {
	if d.Run == nil || d.Bus == nil || d.Results == nil || d.Completion == nil {
		return fmt.Errorf("%w: agent requires run, bus, results and completion", domain.ErrConfiguration)
	}
	return nil
}

// worker carries the plumbing shared by every role.
type worker struct {
	id    string
	topic string
	deps  Deps
	log   *slog.Logger
}

func newWorker(id, topic string, deps Deps) (worker, error) {
	if err := deps.validate(); err != nil {
		return worker{}, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return worker{
		id:    id,
		topic: topic,
		deps:  deps,
		log:   logger.With("agent", id, "run", deps.Run.ID()),
	}, nil
}

func (w worker) register(handler inproc.Handler) error {
	return w.deps.Bus.Subscribe(w.topic, w.id, handler)
}

// decode unpacks msg into req after checking it belongs to this topic.
func (w worker) decode(ctx context.Context, msg domain.Message, req interface{ Validate() error }) bool {
	want := domain.TopicMessageType[w.topic]
	if msg.Type != want {
		w.fail(ctx, 0, fmt.Errorf("%w: %s received %s message on %s", domain.ErrInvariant, w.id, msg.Type, w.topic))
		return false
	}
	if err := json.Unmarshal(msg.Payload, req); err != nil {
		w.fail(ctx, 0, fmt.Errorf("%w: %s payload: %v", domain.ErrInvariant, msg.Type, err))
		return false
	}
	if err := req.Validate(); err != nil {
		w.fail(ctx, 0, fmt.Errorf("%w: %w", domain.ErrInvariant, err))
		return false
	}
	return true
}

func (w worker) publish(ctx context.Context, topic string, msgType domain.MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	msg := domain.Message{
		ID:        uuid.NewString(),
		RunID:     w.deps.Run.ID(),
		Topic:     topic,
		FromAgent: w.id,
		Type:      msgType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.deps.Bus.Publish(msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msgType, topic, err)
	}
	w.logAction(ctx, "message_published", "published follow-up message", map[string]any{
		"topic":   topic,
		"type":    msgType,
		"message": msg.ID,
	})
	return nil
}

// push appends rec to the result stream. A false return means the run is
// over and the handler should stop.
func (w worker) push(ctx context.Context, rec domain.Record) bool {
	if err := w.deps.Results.Push(ctx, rec); err != nil {
		w.log.Debug("result stream rejected record", "kind", rec.Kind, "err", err)
		return false
	}
	return true
}

// handleError applies the failure policy: validation failures stall the
// round, anything else fails the run.
func (w worker) handleError(ctx context.Context, round int, err error) {
	if ctx.Err() != nil {
		w.log.Debug("run cancelled during handler", "round", round, "err", err)
		return
	}
	if errors.Is(err, domain.ErrValidation) {
		w.log.Warn("completion result failed validation, round stalls", "round", round, "err", err)
		w.deps.Run.RecordStall(contest.Stall{Role: w.id, Round: round, Cause: err})
		w.logAction(ctx, "validation_stall", "completion result failed validation", map[string]any{
			"round": round,
			"error": err.Error(),
		})
		return
	}
	w.fail(ctx, round, err)
}

func (w worker) fail(ctx context.Context, round int, err error) {
	w.log.Error("run failed", "round", round, "err", err)
	w.deps.Run.Fail(err)
	w.logAction(ctx, "run_failed", "agent failed the run", map[string]any{
		"round": round,
		"error": err.Error(),
	})
}

func (w worker) logAction(ctx context.Context, action, reason string, payload any) {
	if w.deps.Journal == nil {
		return
	}
	raw := []byte("{}")
	if payload != nil {
		raw = mustJSON(payload)
	}
	if err := w.deps.Journal.LogDecision(context.WithoutCancel(ctx), domain.DecisionLog{
		RunID:   w.deps.Run.ID(),
		Actor:   w.id,
		Action:  action,
		Reason:  reason,
		Payload: raw,
	}); err != nil {
		w.log.Debug("journal write failed", "action", action, "err", err)
	}
}

func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return payload
}
