package monitor

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 8

// DefaultNotificationBuffer is the per-subscriber queue length for alerts.
// Each alert matters, so readers get far more slack than snapshot readers.
const DefaultNotificationBuffer = 256

// Hub fans values out to subscribers without ever blocking the sender. Each
// subscriber has a bounded queue; when it is full the oldest queued value is
// dropped to make room, since only recent values matter.
type Hub[T any] struct {
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription[T]
	closed bool
}

// NewHub returns a hub whose subscribers buffer up to buffer values.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub[T]{buffer: buffer, subs: make(map[int]*Subscription[T])}
}

// Subscription receives values published after it was created, in order, each at
// most once.
type Subscription[T any] struct {
	hub     *Hub[T]
	id      int
	ch      chan T
	once     sync.Once
	dropped  atomic.Int64
	reported atomic.Int64
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription[T]{hub: h, id: h.nextID, ch: make(chan T, h.buffer)}
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s.id] = s
	return s
}

// Publish delivers v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, s := range h.subs {
		s.offer(v)
	}
}

// Len returns the number of live subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		s.once.Do(func() { close(s.ch) })
		delete(h.subs, id)
	}
}

// offer is only called with hub.mu held, so it is the channel's single sender.
func (s *Subscription[T]) offer(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// C returns the delivery channel. It is closed by Close or when the hub closes.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped returns how many values were discarded because this reader fell behind.
func (s *Subscription[T]) Dropped() int64 { return s.dropped.Load() }

// NewlyDropped returns how many values were discarded since the previous call.
// Only the reading goroutine should call it.
func (s *Subscription[T]) NewlyDropped() int64 {
	total := s.dropped.Load()
	return total - s.reported.Swap(total)
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	delete(s.hub.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}

// All yields delivered values until the subscription ends or ctx is done.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-s.ch:
				if !ok || !yield(v) {
					return
				}
			}
		}
	}
}
