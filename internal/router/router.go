// Package router provides the bounded channels used between pipeline
// stages. Every edge carries an explicit drop policy so a full queue
// never blocks an OS capture callback.
package router

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/recordnode/internal/media"
)

// Policy governs what happens when a bounded channel is full.
type Policy int

const (
	// DropNewest rejects the incoming item, preserving the latency of
	// already-queued frames. Default for capture->converter edges.
	DropNewest Policy = iota
	// DropOldest evicts the oldest buffered item to admit the new one.
	// Default for converter->preview edges where recency matters.
	DropOldest
	// Block applies backpressure up to a bound, then drops.
	Block
)

func (p Policy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a router's delivery counters.
type Stats struct {
	Delivered uint64
	Dropped   uint64
}

// Router is a bounded channel with a drop policy. Send never blocks
// beyond the policy's bound. The data channel is never closed so
// concurrent senders cannot panic; Close signals disconnection through
// a separate done channel and buffered items stay readable.
type Router[T any] struct {
	ch       chan T
	policy   Policy
	blockFor time.Duration

	delivered atomic.Uint64
	dropped   atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// New creates a router with the given capacity and policy.
func New[T any](capacity int, policy Policy) *Router[T] {
	return &Router[T]{
		ch:     make(chan T, capacity),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// NewBlocking creates a Block-policy router with the given bound.
func NewBlocking[T any](capacity int, timeout time.Duration) *Router[T] {
	r := New[T](capacity, Block)
	r.blockFor = timeout
	return r
}

// Send offers an item under the router's policy. A policy-driven drop
// returns nil and increments the drop counter; only a closed router
// returns ErrChannelDisconnected, which callers treat as fatal.
func (r *Router[T]) Send(item T) error {
	if r.closed.Load() {
		return media.ErrChannelDisconnected
	}

	switch r.policy {
	case DropNewest:
		select {
		case r.ch <- item:
			r.delivered.Add(1)
			return nil
		case <-r.done:
			return media.ErrChannelDisconnected
		default:
			r.dropped.Add(1)
			return nil
		}

	case DropOldest:
		for {
			select {
			case r.ch <- item:
				r.delivered.Add(1)
				return nil
			case <-r.done:
				return media.ErrChannelDisconnected
			default:
			}
			// Full: evict one and retry. The receive can race a consumer,
			// so loop rather than assume a slot opened.
			select {
			case <-r.ch:
				r.dropped.Add(1)
			default:
			}
		}

	case Block:
		timer := time.NewTimer(r.blockFor)
		defer timer.Stop()
		select {
		case r.ch <- item:
			r.delivered.Add(1)
			return nil
		case <-r.done:
			return media.ErrChannelDisconnected
		case <-timer.C:
			r.dropped.Add(1)
			return nil
		}
	}

	r.dropped.Add(1)
	return nil
}

// TrySend is a strictly non-blocking send regardless of policy, for OS
// callback threads. ok is false when the item was dropped.
func (r *Router[T]) TrySend(item T) (ok bool, err error) {
	if r.closed.Load() {
		return false, media.ErrChannelDisconnected
	}
	select {
	case r.ch <- item:
		r.delivered.Add(1)
		return true, nil
	default:
		r.dropped.Add(1)
		return false, nil
	}
}

// Recv blocks until an item arrives or the router closes and drains.
func (r *Router[T]) Recv() (T, bool) {
	select {
	case item := <-r.ch:
		return item, true
	default:
	}
	select {
	case item := <-r.ch:
		return item, true
	case <-r.done:
		return r.TryRecv()
	}
}

// TryRecv is a non-blocking poll.
func (r *Router[T]) TryRecv() (T, bool) {
	select {
	case item := <-r.ch:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// RecvTimeout waits up to d for an item. Used during drain/shutdown.
func (r *Router[T]) RecvTimeout(d time.Duration) (T, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case item := <-r.ch:
		return item, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// Chan exposes the receive side for select loops; pair with Done to
// observe shutdown.
func (r *Router[T]) Chan() <-chan T {
	return r.ch
}

// Done is closed when the router is closed.
func (r *Router[T]) Done() <-chan struct{} {
	return r.done
}

// Len returns the number of buffered items.
func (r *Router[T]) Len() int {
	return len(r.ch)
}

// Closed reports whether Close has been called.
func (r *Router[T]) Closed() bool {
	return r.closed.Load()
}

// Stats returns a snapshot of the delivery counters.
func (r *Router[T]) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// Close marks the router disconnected. Safe to call more than once;
// subsequent sends observe ErrChannelDisconnected and receivers may
// drain remaining buffered items.
func (r *Router[T]) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
}
