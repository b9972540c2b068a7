package agent

import (
	"context"

	"joke_contest/internal/completion"
	"joke_contest/internal/domain"
	"joke_contest/internal/prompts"
)

// Commentator turns the full transcript into the closing summary and sets
// the run's completion flag.
type Commentator struct {
	worker
	instructions string
}

func NewCommentator(deps Deps, instructions string) (*Commentator, error) {
	w, err := newWorker(domain.AgentCommentator, domain.TopicSummarize, deps)
	if err != nil {
		return nil, err
	}
	return &Commentator{worker: w, instructions: instructions}, nil
}

func (c *Commentator) Register() error {
	return c.register(c.handleMessage)
}

func (c *Commentator) handleMessage(ctx context.Context, msg domain.Message) {
	var req domain.SummarizeRequest
	if !c.decode(ctx, msg, &req) {
		return
	}
	round := req.Rounds()

	var res domain.SummaryResult
	conv := []domain.Turn{{Role: domain.TurnRoleUser, Content: prompts.Transcript(req)}}
	if err := completion.Complete(ctx, c.deps.Completion, c.instructions, conv, &res); err != nil {
		c.handleError(ctx, round, err)
		return
	}

	if !c.push(ctx, domain.NewSummaryRecord(res)) {
		return
	}
	if c.deps.Run.Complete() {
		c.log.Info("contest summarized", "rounds", round)
		c.logAction(ctx, "run_completed", "summary produced", map[string]any{"rounds": round})
	}
}
