// Package bus provides the in-process change notification fan-out.
//
// Each entity kind gets its own typed broadcaster. Publishing never blocks:
// every subscriber owns a bounded queue and the oldest pending notification is
// dropped when the queue is full. Events published while no subscriber is
// attached are lost; the bus is a live-state feed, not a log.
package bus

import (
	"sync"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
)

// DefaultQueueSize bounds a subscriber's pending notifications.
const DefaultQueueSize = 16

// Broadcaster fans values of one type out to any number of subscribers.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe attaches a new subscriber with the default queue size.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	return b.SubscribeBuffered(DefaultQueueSize)
}

// SubscribeBuffered attaches a new subscriber with an explicit queue size.
func (b *Broadcaster[T]) SubscribeBuffered(queueSize int) *Subscription[T] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	sub := &Subscription[T]{
		ch:   make(chan T, queueSize),
		done: make(chan struct{}),
	}
	sub.detach = func() { b.remove(sub) }

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		// Late subscribers on a closed broadcaster get an already-done
		// subscription rather than an error.
		close(sub.done)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers v to every currently-attached subscriber without blocking.
// A subscriber whose queue is full loses its oldest pending notification.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	if b.closed || len(b.subs) == 0 {
		b.mu.Unlock()
		return
	}
	targets := make([]*Subscription[T], 0, len(b.subs))
	for sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.offer(v)
	}
}

// Close detaches all subscribers and rejects future publishes.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// subscriberCount reports attached subscribers, for tests.
func (b *Broadcaster[T]) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one subscriber's end of a broadcaster or filtered stream.
type Subscription[T any] struct {
	ch     chan T
	done   chan struct{}
	once   sync.Once
	detach func()
}

// C returns the notification channel. It is never closed; consumers must
// select on Done as well.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription and releases its queue. Closing twice is a
// no-op the second time.
func (s *Subscription[T]) Close() {
	s.close()
}

func (s *Subscription[T]) close() {
	s.once.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		close(s.done)
	})
}

// offer enqueues v, dropping the oldest pending value when the queue is full.
// Never blocks the caller.
func (s *Subscription[T]) offer(v T) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- v:
		return
	default:
	}
	// Queue full: make room by dropping the oldest entry, then retry once.
	// A concurrent consumer may have drained the queue in between, so the
	// second send may also lose the race; dropping v then is acceptable.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

// Bus groups the per-entity-kind broadcasters. Created at process start and
// closed at shutdown; mutation operations publish exactly one change per
// committed state change.
type Bus struct {
	Events     *Broadcaster[domain.EventChange]
	Signups    *Broadcaster[domain.SignupChange]
	Relations  *Broadcaster[domain.RelationChange]
	Users      *Broadcaster[domain.UserChange]
	Statistics *Broadcaster[domain.StatisticsChange]
}

// New creates a bus with one broadcaster per entity kind.
func New() *Bus {
	return &Bus{
		Events:     NewBroadcaster[domain.EventChange](),
		Signups:    NewBroadcaster[domain.SignupChange](),
		Relations:  NewBroadcaster[domain.RelationChange](),
		Users:      NewBroadcaster[domain.UserChange](),
		Statistics: NewBroadcaster[domain.StatisticsChange](),
	}
}

// Close shuts down every broadcaster.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.Events.Close()
	b.Signups.Close()
	b.Relations.Close()
	b.Users.Close()
	b.Statistics.Close()
}
