package contest

import (
	"fmt"
	"sync"

	"joke_contest/internal/domain"
)

// Stall records the most recent validation failure that left a round
// without a follow-up message.
type Stall struct {
	Role  string
	Round int
	Cause error
}

// Run holds everything owned by one contest execution. A new Run starts with
// empty logs; nothing is shared between runs.
type Run struct {
	id string

	mu       sync.Mutex
	contents []domain.GenerateResult
	scores   []domain.EvaluateResult
	rounds   RoundState
	stall    *Stall

	doneOnce sync.Once
	done     chan struct{}

	failOnce sync.Once
	failed   chan struct{}
	failErr  error
}

func NewRun(id string, maxRounds int) (*Run, error) {
	if err := ValidateMaxRounds(maxRounds); err != nil {
		return nil, err
	}
	return &Run{
		id:     id,
		rounds: RoundState{Max: maxRounds},
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}, nil
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) MaxRounds() int {
	return r.rounds.Max
}

func (r *Run) Rounds() RoundState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds
}

func (r *Run) AppendContent(res domain.GenerateResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents = append(r.contents, res)
}

func (r *Run) AppendScore(res domain.EvaluateResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, res)
}

// ContentLog returns a copy of the generated contents in insertion order.
func (r *Run) ContentLog() []domain.GenerateResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GenerateResult(nil), r.contents...)
}

// ScoreLog returns a copy of the evaluations in insertion order.
func (r *Run) ScoreLog() []domain.EvaluateResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EvaluateResult(nil), r.scores...)
}

// CompleteRound advances the round state and reports whether the contest
// continues with another round.
func (r *Run) CompleteRound(round int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.rounds.Complete(round); err != nil {
		return false, err
	}
	return ShouldContinue(round, r.rounds.Max), nil
}

// SummarizeRequest builds the summary request from both logs. Logs of
// unequal length are an invariant violation; nothing is padded or truncated.
func (r *Run) SummarizeRequest() (domain.SummarizeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) != len(r.scores) {
		return domain.SummarizeRequest{}, fmt.Errorf("%w: content log has %d entries, score log has %d",
			domain.ErrInvariant, len(r.contents), len(r.scores))
	}
	req := domain.SummarizeRequest{
		Contents: make([]string, 0, len(r.contents)),
		Scores:   make([]int, 0, len(r.scores)),
		Reasons:  make([]string, 0, len(r.scores)),
	}
	for i := range r.contents {
		req.Contents = append(req.Contents, r.contents[i].Content)
		req.Scores = append(req.Scores, r.scores[i].Score)
		req.Reasons = append(req.Reasons, r.scores[i].Reason)
	}
	return req, nil
}

func (r *Run) RecordStall(s Stall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stall = &s
}

func (r *Run) LastStall() (Stall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stall == nil {
		return Stall{}, false
	}
	return *r.stall, true
}

// Complete sets the completion flag. Only the first call returns true.
func (r *Run) Complete() bool {
	set := false
	r.doneOnce.Do(func() {
		close(r.done)
		set = true
	})
	return set
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) Completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Fail records a terminal error. The first error wins.
func (r *Run) Fail(err error) bool {
	if err == nil {
		return false
	}
	set := false
	r.failOnce.Do(func() {
		r.failErr = err
		close(r.failed)
		set = true
	})
	return set
}

func (r *Run) Failed() <-chan struct{} {
	return r.failed
}

func (r *Run) Err() error {
	select {
	case <-r.failed:
		return r.failErr
	default:
		return nil
	}
}
