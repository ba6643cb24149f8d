package repo

import (
	"sync"

	"docdrop/internal/queue"
)

// watchHub fans queue item snapshots out to subscribers. Publishing never
// blocks the writer path: each subscriber keeps the latest undelivered
// snapshot per item and a forwarding goroutine drains them in arrival
// order. A subscriber that falls behind loses intermediate snapshots of an
// item, but its latest committed state is always delivered eventually.
type watchHub struct {
	mu          sync.Mutex
	subscribers map[int]*watchSubscriber
	nextID      int
	closed      bool
}

func newWatchHub() *watchHub {
	return &watchHub{subscribers: make(map[int]*watchSubscriber)}
}

type watchSubscriber struct {
	mu       sync.Mutex
	latest   map[int64]queue.Item
	order    []int64
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	out      chan queue.Item
}

func newWatchSubscriber(buffer int) *watchSubscriber {
	return &watchSubscriber{
		latest: make(map[int64]queue.Item),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan queue.Item, buffer),
	}
}

// offer records a snapshot for delivery, replacing any undelivered snapshot
// of the same item. Items are forwarded in first-arrival order.
func (s *watchSubscriber) offer(item queue.Item) {
	s.mu.Lock()
	if _, pending := s.latest[item.ID]; !pending {
		s.order = append(s.order, item.ID)
	}
	s.latest[item.ID] = item
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *watchSubscriber) next() (queue.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return queue.Item{}, false
	}
	id := s.order[0]
	s.order = s.order[1:]
	item := s.latest[id]
	delete(s.latest, id)
	return item, true
}

// forward drains pending snapshots to the output channel until the
// subscriber is stopped. It owns closing out.
func (s *watchSubscriber) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			item, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.out <- item:
			case <-s.done:
				return
			}
		}
	}
}

func (s *watchSubscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (h *watchHub) subscribe(buffer int) (<-chan queue.Item, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan queue.Item)
		close(ch)
		return ch, func() {}
	}

	sub := newWatchSubscriber(buffer)
	go sub.forward()

	id := h.nextID
	h.nextID++
	h.subscribers[id] = sub

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subscribers[id]; ok {
			existing.stop()
			delete(h.subscribers, id)
		}
	}
	return sub.out, cancel
}

func (h *watchHub) publish(item queue.Item) {
	h.mu.Lock()
	targets := make([]*watchSubscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.offer(item)
	}
}

func (h *watchHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		sub.stop()
		delete(h.subscribers, id)
	}
}
