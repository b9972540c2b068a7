package stream

import (
	"context"
	"errors"
	"sync"

	"joke_contest/internal/domain"
)

var ErrClosed = errors.New("result stream closed")

// Bridge carries records from any number of agents to a single consumer.
// It is bounded: Push blocks while the buffer is full.
type Bridge struct {
	mu     sync.RWMutex
	ch     chan domain.Record
	closed bool
	done   chan struct{}
	once   sync.Once
}

func New(buffer int) *Bridge {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bridge{
		ch:   make(chan domain.Record, buffer),
		done: make(chan struct{}),
	}
}

// Push appends rec, waiting for room. It fails when ctx ends or the bridge
// is closed while waiting.
func (b *Bridge) Push(ctx context.Context, rec domain.Record) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.ch <- rec:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records is the consumer side. It is closed after Close once buffered
// records have been read.
func (b *Bridge) Records() <-chan domain.Record {
	return b.ch
}

func (b *Bridge) Len() int {
	return len(b.ch)
}

func (b *Bridge) Cap() int {
	return cap(b.ch)
}

// Close unblocks pending producers and closes the consumer channel. Safe to
// call more than once.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
}
