package feed

import (
	"sync"

	"laundry-smart-queue/internal/metrics"
)

// subscriberBuffer bounds the signals queued for a slow subscriber. Once full,
// further signals are dropped: the queued ones already force a re-read.
const subscriberBuffer = 16

// Publisher is implemented by anything that accepts change signals.
type Publisher interface {
	Publish(ev Event)
}

// Hub delivers change events to every live subscription.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

// Subscription is a registered change callback. Unsubscribe must be called
// when the consumer goes away.
type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Subscribe registers onChange. It is invoked from a dedicated goroutine, one
// event at a time, so a slow callback never blocks publishers or other subscribers.
func (h *Hub) Subscribe(onChange func(Event)) *Subscription {
	sub := &Subscription{
		hub:  h,
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	metrics.SetFeedSubscribers(n)

	go sub.run(onChange)
	return sub
}

func (s *Subscription) run(onChange func(Event)) {
	for {
		select {
		case ev := <-s.ch:
			onChange(ev)
		case <-s.done:
			return
		}
	}
}

// Unsubscribe stops delivery and releases the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.done)
	})
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	metrics.SetFeedSubscribers(n)
}

// Publish queues ev for every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
