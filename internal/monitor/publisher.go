package monitor

import (
	"sync/atomic"

	"github.com/theirongolddev/pburn/internal/model"
)

// Publisher holds the latest snapshot and broadcasts each new one. There is a
// single writer (the scheduler) and any number of readers.
type Publisher struct {
	current atomic.Pointer[model.Snapshot]
	hub     *Hub[*model.Snapshot]
}

// NewPublisher returns an empty publisher.
func NewPublisher(buffer int) *Publisher {
	return &Publisher{hub: NewHub[*model.Snapshot](buffer)}
}

// Seed sets the current snapshot without notifying subscribers. Used to restore
// the last known value from the cache at startup.
func (p *Publisher) Seed(s *model.Snapshot) {
	if s != nil {
		p.current.CompareAndSwap(nil, s)
	}
}

// Current returns the latest snapshot, or nil if none has been published yet.
// It never blocks.
func (p *Publisher) Current() *model.Snapshot {
	return p.current.Load()
}

// Publish swaps in s and notifies subscribers.
func (p *Publisher) Publish(s *model.Snapshot) {
	p.current.Store(s)
	p.hub.Publish(s)
}

// Subscribe returns a stream of snapshots published from now on.
func (p *Publisher) Subscribe() *Subscription[*model.Snapshot] {
	return p.hub.Subscribe()
}

// Subscribers returns the number of active subscriptions.
func (p *Publisher) Subscribers() int {
	return p.hub.Len()
}

// Close ends all subscriptions. Current keeps returning the last snapshot.
func (p *Publisher) Close() {
	p.hub.Close()
}
