// Package signal provides the cooperative-concurrency primitives that connect
// market-data callbacks and pollers to the per-symbol trading loops.
package signal

import (
	"context"
	"sync"
	"time"
)

// Wake is the payload delivered through a reconciler mailbox: either a
// market-event timestamp or an internal re-check token.
type Wake struct {
	Reason string
	At     time.Time
}

// NewWake builds a wake token stamped with the current time
func NewWake(reason string) Wake {
	return Wake{Reason: reason, At: time.Now()}
}

// Mailbox is a single-slot, latest-wins message queue. A send overwrites any
// undelivered value, so a burst of ticks collapses into one wake-up.
type Mailbox[T any] struct {
	mu sync.Mutex
	ch chan T
}

// NewMailbox creates an empty mailbox
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		ch: make(chan T, 1),
	}
}

// Put stores a value, replacing any value not yet received
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.ch:
	default:
	}
	m.ch <- v
}

// Get blocks until a value is available or the context is cancelled
func (m *Mailbox[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-m.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the pending value without blocking
func (m *Mailbox[T]) TryGet() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Flag is a level-triggered event. Wait returns immediately while the flag is
// set; Clear arms it again. Setting an already-set flag is a no-op.
type Flag struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// NewFlag creates a cleared flag
func NewFlag() *Flag {
	return &Flag{
		ch: make(chan struct{}),
	}
}

// Set raises the flag and releases every waiter
func (f *Flag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		f.set = true
		close(f.ch)
	}
}

// Clear lowers the flag so the next Wait blocks
func (f *Flag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		f.set = false
		f.ch = make(chan struct{})
	}
}

// IsSet reports the current level
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Wait blocks until the flag is set or the context is cancelled
func (f *Flag) Wait(ctx context.Context) error {
	f.mu.Lock()
	set := f.set
	ch := f.ch
	f.mu.Unlock()

	if set {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
