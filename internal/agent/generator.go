package agent

import (
	"context"

	"joke_contest/internal/completion"
	"joke_contest/internal/domain"
	"joke_contest/internal/prompts"
)

// Generator answers GenerateRequest with a joke and hands it to the
// evaluator.
type Generator struct {
	worker
	instructions string
}

func NewGenerator(deps Deps, instructions string) (*Generator, error) {
	w, err := newWorker(domain.AgentGenerator, domain.TopicGenerate, deps)
	if err != nil {
		return nil, err
	}
	return &Generator{worker: w, instructions: instructions}, nil
}

func (g *Generator) Register() error {
	return g.register(g.handleMessage)
}

func (g *Generator) handleMessage(ctx context.Context, msg domain.Message) {
	var req domain.GenerateRequest
	if !g.decode(ctx, msg, &req) {
		return
	}

	var res domain.GenerateResult
	conv := []domain.Turn{{Role: domain.TurnRoleUser, Content: prompts.GeneratePrompt(req)}}
	if err := completion.Complete(ctx, g.deps.Completion, g.instructions, conv, &res); err != nil {
		g.handleError(ctx, req.Round, err)
		return
	}
	g.log.Info("joke generated", "round", req.Round)

	g.deps.Run.AppendContent(res)
	if !g.push(ctx, domain.NewGenerateRecord(req.Round, res)) {
		return
	}
	if err := g.publish(ctx, domain.TopicEvaluate, domain.MessageTypeEvaluate, domain.EvaluateRequest{
		Content: res.Content,
		Round:   req.Round,
	}); err != nil {
		g.fail(ctx, req.Round, err)
	}
}
