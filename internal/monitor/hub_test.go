package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/model"
)

func drain[T any](s *Subscription[T]) []T {
	var out []T
	for {
		select {
		case v, ok := <-s.C():
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestHub_DeliversInOrder(t *testing.T) {
	h := NewHub[int](8)
	sub := h.Subscribe()
	for i := 1; i <= 5; i++ {
		h.Publish(i)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, drain(sub))
	assert.Zero(t, sub.Dropped())
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub[int](3)
	slow := h.Subscribe()
	fast := h.Subscribe()

	var fastGot []int
	for i := 1; i <= 10; i++ {
		h.Publish(i)
		fastGot = append(fastGot, drain(fast)...)
	}

	assert.Equal(t, []int{8, 9, 10}, drain(slow))
	assert.Equal(t, int64(7), slow.Dropped())
	assert.Len(t, fastGot, 10)
}

func TestSubscription_NewlyDropped(t *testing.T) {
	h := NewHub[int](1)
	sub := h.Subscribe()

	for i := range 4 {
		h.Publish(i)
	}
	assert.Equal(t, int64(3), sub.NewlyDropped())
	assert.Zero(t, sub.NewlyDropped())

	h.Publish(9)
	assert.Equal(t, int64(1), sub.NewlyDropped())
	assert.Equal(t, int64(4), sub.Dropped())
}

func TestHub_SubscribeSeesOnlyLaterValues(t *testing.T) {
	h := NewHub[string](4)
	h.Publish("early")
	sub := h.Subscribe()
	h.Publish("late")
	assert.Equal(t, []string{"late"}, drain(sub))
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub[int](2)
	sub := h.Subscribe()
	h.Publish(1)
	h.Close()
	h.Close()
	h.Publish(2)

	v, ok := <-sub.C()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-sub.C()
	assert.False(t, ok)
	assert.Zero(t, h.Len())

	late := h.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestSubscription_CloseUnregisters(t *testing.T) {
	h := NewHub[int](2)
	a := h.Subscribe()
	b := h.Subscribe()
	require.Equal(t, 2, h.Len())

	a.Close()
	a.Close()
	assert.Equal(t, 1, h.Len())

	h.Publish(7)
	assert.Equal(t, []int{7}, drain(b))
	h.Close()
	b.Close()
}

func TestSubscription_All(t *testing.T) {
	h := NewHub[int](8)
	sub := h.Subscribe()
	h.Publish(1)
	h.Publish(2)
	h.Publish(3)
	h.Close()

	var got []int
	for v := range sub.All(context.Background()) {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestSubscription_AllStopsOnContext(t *testing.T) {
	h := NewHub[int](1)
	sub := h.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range sub.All(ctx) {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("All did not return after context expiry")
	}
}

func TestPublisher_CurrentAndSeed(t *testing.T) {
	p := NewPublisher(4)
	assert.Nil(t, p.Current())

	cached := model.NewSnapshot(time.Now().Add(-time.Hour), nil)
	sub := p.Subscribe()
	p.Seed(cached)
	assert.Same(t, cached, p.Current())
	assert.Empty(t, drain(sub), "seed must not notify")

	fresh := model.NewSnapshot(time.Now(), nil)
	p.Publish(fresh)
	assert.Same(t, fresh, p.Current())
	assert.Equal(t, []*model.Snapshot{fresh}, drain(sub))

	p.Seed(cached)
	assert.Same(t, fresh, p.Current(), "seed only fills an empty publisher")

	assert.Equal(t, 1, p.Subscribers())
	p.Close()
	assert.Same(t, fresh, p.Current())
	assert.Zero(t, p.Subscribers())
}
