package inproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"joke_contest/internal/domain"
)

var (
	ErrTopicOwned      = errors.New("topic already has an owner")
	ErrDuplicateAgent  = errors.New("agent already subscribed to topic")
	ErrTopicQueueFull  = errors.New("topic queue is full")
	ErrBusClosed       = errors.New("bus is closed")
	ErrEmptySubscriber = errors.New("subscriber requires topic, agent id and handler")
)

// Handler processes one delivered message. It runs to completion before the
// next message queued for the same subscriber is delivered.
type Handler func(ctx context.Context, msg domain.Message)

// PanicHook is invoked after a handler panic has been recovered.
type PanicHook func(agentID string, msg domain.Message, recovered any)

// Bus routes messages by topic. Each topic has at most one owning subscriber
// plus any number of observers; every subscriber drains its own queue in
// publish order on a dedicated goroutine.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string]*topic
	buffer  int
	logger  *slog.Logger
	onPanic PanicHook

	ctx     context.Context
	started bool
	closed  bool
	wg      sync.WaitGroup
}

type topic struct {
	owner     *subscriber
	observers []*subscriber
}

type subscriber struct {
	topic   string
	agentID string
	handler Handler
	queue   chan domain.Message
}

func New(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string]*topic),
		buffer: buffer,
		logger: logger,
	}
}

// OnPanic sets the hook called when a handler panics. Must be set before Start.
func (b *Bus) OnPanic(hook PanicHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = hook
}

// Subscribe registers agentID as the exclusive owner of topicName. A second
// owner for the same topic is a configuration error.
func (b *Bus) Subscribe(topicName, agentID string, handler Handler) error {
	return b.add(topicName, agentID, handler, true)
}

// Observe registers a non-owning subscriber that also receives every message
// published to topicName.
func (b *Bus) Observe(topicName, agentID string, handler Handler) error {
	return b.add(topicName, agentID, handler, false)
}

func (b *Bus) add(topicName, agentID string, handler Handler, owner bool) error {
	if topicName == "" || agentID == "" || handler == nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, ErrEmptySubscriber)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	t, ok := b.topics[topicName]
	if !ok {
		t = &topic{}
		b.topics[topicName] = t
	}
	if owner && t.owner != nil {
		return fmt.Errorf("%w: %w: topic %s owned by %s", domain.ErrConfiguration, ErrTopicOwned, topicName, t.owner.agentID)
	}
	for _, s := range t.all() {
		if s.agentID == agentID {
			return fmt.Errorf("%w: %w: %s on %s", domain.ErrConfiguration, ErrDuplicateAgent, agentID, topicName)
		}
	}

	sub := &subscriber{
		topic:   topicName,
		agentID: agentID,
		handler: handler,
		queue:   make(chan domain.Message, b.buffer),
	}
	if owner {
		t.owner = sub
	} else {
		t.observers = append(t.observers, sub)
	}
	if b.started {
		b.run(sub)
	}
	return nil
}

// Start launches delivery for all current and future subscribers. Handlers
// receive ctx; cancelling it stops delivery.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.ctx = ctx
	b.started = true
	for _, t := range b.topics {
		for _, s := range t.all() {
			b.run(s)
		}
	}
	b.logger.Debug("bus started", "topics", len(b.topics))
}

// Publish enqueues msg for every subscriber of msg.Topic and returns without
// waiting for any handler. A topic without subscribers is a no-op.
func (b *Bus) Publish(msg domain.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	t, ok := b.topics[msg.Topic]
	if !ok || (t.owner == nil && len(t.observers) == 0) {
		b.logger.Debug("publish to topic without subscribers", "topic", msg.Topic, "type", msg.Type, "from", msg.FromAgent)
		return nil
	}

	var errs []error
	for _, s := range t.all() {
		select {
		case s.queue <- msg:
		default:
			errs = append(errs, fmt.Errorf("%w: topic=%s agent=%s", ErrTopicQueueFull, s.topic, s.agentID))
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting messages, lets queued messages drain unless the
// start context is cancelled, and waits for every subscriber goroutine.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, t := range b.topics {
		for _, s := range t.all() {
			close(s.queue)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// Owners returns topic -> owning agent for every owned topic.
func (b *Bus) Owners() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.topics))
	for name, t := range b.topics {
		if t.owner != nil {
			out[name] = t.owner.agentID
		}
	}
	return out
}

// Topics lists topic names in sorted order.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// run must be called with b.mu held.
func (b *Bus) run(s *subscriber) {
	ctx := b.ctx
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-s.queue:
				if !ok {
					return
				}
				b.deliver(ctx, s, msg)
			}
		}
	}()
}

func (b *Bus) deliver(ctx context.Context, s *subscriber, msg domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "agent", s.agentID, "topic", s.topic, "message", msg.ID, "panic", r, "stack", string(debug.Stack()))
			b.mu.RLock()
			hook := b.onPanic
			b.mu.RUnlock()
			if hook != nil {
				hook(s.agentID, msg, r)
			}
		}
	}()
	s.handler(ctx, msg)
}

func (t *topic) all() []*subscriber {
	subs := make([]*subscriber, 0, len(t.observers)+1)
	if t.owner != nil {
		subs = append(subs, t.owner)
	}
	return append(subs, t.observers...)
}
