package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"joke_contest/internal/domain"
)

var ErrScriptExhausted = errors.New("scripted completion has no replies left")

type Reply struct {
	Text string
	Err  error
}

// JSONReply marshals v into a successful reply.
func JSONReply(v any) Reply {
	raw, err := json.Marshal(v)
	if err != nil {
		return Reply{Err: err}
	}
	return Reply{Text: string(raw)}
}

// Scripted replays canned replies in call order and records every request.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Request
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next.Text, next.Err
}

func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// Offline produces deterministic placeholder results for each known schema
// so the whole pipeline can run without a model backend.
type Offline struct {
	mu    sync.Mutex
	jokes int
}

var offlineJokes = []string{
	"I told my computer a joke about UDP. I am not sure it got it.",
	"There are 10 kinds of people: those who read binary and those who do not.",
	"A SQL query walks into a bar, goes up to two tables and asks: may I join you?",
	"Why do programmers prefer dark mode? Because light attracts bugs.",
}

func (o *Offline) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var v any
	switch req.Schema.Name {
	case "GenerateResult":
		v = domain.GenerateResult{Content: offlineJokes[o.jokes%len(offlineJokes)]}
		o.jokes++
	case "EvaluateResult":
		v = domain.EvaluateResult{Score: 3 + (o.jokes*3)%8, Reason: "Predictable punchline, decent timing."}
	case "SummaryResult":
		v = domain.SummaryResult{Summary: fmt.Sprintf("%d jokes told, the audience survived.", o.jokes)}
	default:
		return "", fmt.Errorf("offline completion: unknown schema %q", req.Schema.Name)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
