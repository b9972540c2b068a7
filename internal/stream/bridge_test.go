package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"joke_contest/internal/domain"
)

func TestPushBlocksWhenFull(t *testing.T) {
	b := New(1)
	ctx := context.Background()
	if err := b.Push(ctx, domain.NewGenerateRecord(1, domain.GenerateResult{Content: "A"})); err != nil {
		t.Fatalf("first push: %v", err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- b.Push(ctx, domain.NewEvaluateRecord(1, domain.EvaluateResult{Score: 1, Reason: "r"}))
	}()
	select {
	case err := <-pushed:
		t.Fatalf("push on full bridge returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	first := <-b.Records()
	if first.Kind != domain.RecordGenerator {
		t.Fatalf("first kind=%s", first.Kind)
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("second push: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("push did not resume after consumer read")
	}
	second := <-b.Records()
	if second.Kind != domain.RecordEvaluator {
		t.Fatalf("second kind=%s", second.Kind)
	}
}

func TestPushHonorsContext(t *testing.T) {
	b := New(1)
	_ = b.Push(context.Background(), domain.NewSummaryRecord(domain.SummaryResult{Summary: "s"}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Push(ctx, domain.NewSummaryRecord(domain.SummaryResult{Summary: "s"})); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestCloseUnblocksProducers(t *testing.T) {
	b := New(1)
	_ = b.Push(context.Background(), domain.NewSummaryRecord(domain.SummaryResult{Summary: "s"}))
	pushed := make(chan error, 1)
	go func() {
		pushed <- b.Push(context.Background(), domain.NewSummaryRecord(domain.SummaryResult{Summary: "t"}))
	}()
	time.Sleep(20 * time.Millisecond)
	b.Close()
	b.Close()
	select {
	case err := <-pushed:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("producer still blocked after close")
	}
	if err := b.Push(context.Background(), domain.Record{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("push after close err=%v", err)
	}
	n := 0
	for range b.Records() {
		n++
	}
	if n != 1 {
		t.Fatalf("drained %d records, want 1", n)
	}
}
