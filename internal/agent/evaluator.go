package agent

import (
	"context"

	"joke_contest/internal/completion"
	"joke_contest/internal/domain"
	"joke_contest/internal/prompts"
)

// Evaluator scores a joke and owns the round decision: either the next
// GenerateRequest or the SummarizeRequest once the last round is scored.
type Evaluator struct {
	worker
	instructions string
}

func NewEvaluator(deps Deps, instructions string) (*Evaluator, error) {
	w, err := newWorker(domain.AgentEvaluator, domain.TopicEvaluate, deps)
	if err != nil {
		return nil, err
	}
	return &Evaluator{worker: w, instructions: instructions}, nil
}

func (e *Evaluator) Register() error {
	return e.register(e.handleMessage)
}

func (e *Evaluator) handleMessage(ctx context.Context, msg domain.Message) {
	var req domain.EvaluateRequest
	if !e.decode(ctx, msg, &req) {
		return
	}

	var res domain.EvaluateResult
	conv := []domain.Turn{{Role: domain.TurnRoleUser, Content: prompts.EvaluatePrompt(req)}}
	if err := completion.Complete(ctx, e.deps.Completion, e.instructions, conv, &res); err != nil {
		e.handleError(ctx, req.Round, err)
		return
	}
	e.log.Info("joke scored", "round", req.Round, "score", res.Score)

	more, err := e.deps.Run.CompleteRound(req.Round)
	if err != nil {
		e.fail(ctx, req.Round, err)
		return
	}
	e.deps.Run.AppendScore(res)
	if !e.push(ctx, domain.NewEvaluateRecord(req.Round, res)) {
		return
	}
	e.logAction(ctx, "round_completed", "evaluation recorded", map[string]any{
		"round":    req.Round,
		"score":    res.Score,
		"continue": more,
	})

	if more {
		err = e.publish(ctx, domain.TopicGenerate, domain.MessageTypeGenerate, domain.GenerateRequest{Round: req.Round + 1})
	} else {
		var summary domain.SummarizeRequest
		summary, err = e.deps.Run.SummarizeRequest()
		if err == nil {
			err = e.publish(ctx, domain.TopicSummarize, domain.MessageTypeSummarize, summary)
		}
	}
	if err != nil {
		e.fail(ctx, req.Round, err)
	}
}
