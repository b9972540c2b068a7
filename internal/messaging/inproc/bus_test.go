package inproc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"joke_contest/internal/domain"
)

func noop(context.Context, domain.Message) {}

func TestSubscribeDuplicateOwnerIsConfigurationError(t *testing.T) {
	b := New(4, nil)
	defer b.Close()

	if err := b.Subscribe(domain.TopicGenerate, "generator", noop); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	err := b.Subscribe(domain.TopicGenerate, "generator-2", noop)
	if !errors.Is(err, domain.ErrConfiguration) || !errors.Is(err, ErrTopicOwned) {
		t.Fatalf("second owner err=%v", err)
	}
	if err := b.Observe(domain.TopicGenerate, "generator", noop); !errors.Is(err, ErrDuplicateAgent) {
		t.Fatalf("observer reusing owner id err=%v", err)
	}
	if err := b.Subscribe("", "x", noop); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("empty topic err=%v", err)
	}
	if got := b.Owners()[domain.TopicGenerate]; got != "generator" {
		t.Fatalf("owner=%q", got)
	}
}

func TestPublishWithoutSubscriberIsNoop(t *testing.T) {
	b := New(4, nil)
	b.Start(context.Background())
	defer b.Close()

	if err := b.Publish(domain.Message{Topic: "nobody-home"}); err != nil {
		t.Fatalf("publish to empty topic: %v", err)
	}
}

func TestPublishPreservesOrderPerTopic(t *testing.T) {
	b := New(16, nil)
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	if err := b.Subscribe("t", "a", func(_ context.Context, msg domain.Message) {
		mu.Lock()
		got = append(got, msg.ID)
		n := len(got)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Start(context.Background())
	defer b.Close()

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		if err := b.Publish(domain.Message{ID: id, Topic: "t"}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, id := range []string{"1", "2", "3", "4", "5"} {
		if got[i] != id {
			t.Fatalf("order=%v", got)
		}
	}
}

func TestPublishDoesNotWaitForHandler(t *testing.T) {
	b := New(4, nil)
	release := make(chan struct{})
	entered := make(chan struct{})
	if err := b.Subscribe("slow", "a", func(context.Context, domain.Message) {
		close(entered)
		<-release
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Start(context.Background())
	defer b.Close()
	defer close(release)

	start := time.Now()
	if err := b.Publish(domain.Message{ID: "1", Topic: "slow"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	<-entered
	if err := b.Publish(domain.Message{ID: "2", Topic: "slow"}); err != nil {
		t.Fatalf("publish while handler busy: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("publish blocked on handler")
	}
}

func TestPublishQueueFull(t *testing.T) {
	b := New(1, nil)
	if err := b.Subscribe("t", "a", noop); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// not started: nothing drains the queue
	if err := b.Publish(domain.Message{ID: "1", Topic: "t"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.Publish(domain.Message{ID: "2", Topic: "t"}); !errors.Is(err, ErrTopicQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	b.Close()
	if err := b.Publish(domain.Message{ID: "3", Topic: "t"}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func TestObserverAndLateSubscription(t *testing.T) {
	b := New(4, nil)
	b.Start(context.Background())
	defer b.Close()

	ownerCh := make(chan string, 1)
	observerCh := make(chan string, 1)
	if err := b.Subscribe("late", "owner", func(_ context.Context, msg domain.Message) { ownerCh <- msg.ID }); err != nil {
		t.Fatalf("subscribe after start: %v", err)
	}
	if err := b.Observe("late", "journal", func(_ context.Context, msg domain.Message) { observerCh <- msg.ID }); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := b.Publish(domain.Message{ID: "m", Topic: "late"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for name, ch := range map[string]chan string{"owner": ownerCh, "observer": observerCh} {
		select {
		case id := <-ch:
			if id != "m" {
				t.Fatalf("%s got %q", name, id)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not receive message", name)
		}
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	b := New(4, nil)
	hooked := make(chan string, 1)
	b.OnPanic(func(agentID string, _ domain.Message, _ any) { hooked <- agentID })
	calls := make(chan struct{}, 2)
	if err := b.Subscribe("p", "boom", func(_ context.Context, msg domain.Message) {
		calls <- struct{}{}
		if msg.ID == "1" {
			panic("boom")
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Start(context.Background())
	defer b.Close()

	_ = b.Publish(domain.Message{ID: "1", Topic: "p"})
	_ = b.Publish(domain.Message{ID: "2", Topic: "p"})
	select {
	case id := <-hooked:
		if id != "boom" {
			t.Fatalf("hook agent=%q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("panic hook not called")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber stopped after panic")
		}
	}
}
