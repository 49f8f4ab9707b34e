package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

var (
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("realtime broker closed")
	// ErrLagged is delivered to a subscriber whose buffer overflowed.
	ErrLagged = errors.New("subscriber too slow, updates were dropped")
)

const DefaultBuffer = 64

// Broker routes change events to the subscriptions of the row's owner.
// Publish never blocks; a full subscriber loses the event and is told so
// on its error channel.
type Broker struct {
	buffer int
	log    *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool

	// OnDrop, when set, is called for every event dropped on a full buffer.
	OnDrop func(owner string)
}

func NewBroker(buffer int, log *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{buffer: buffer, log: log, subs: map[string]map[*subscription]struct{}{}}
}

// Subscribe opens a feed for owner. It is closed when ctx ends or Close is called.
func (b *Broker) Subscribe(ctx context.Context, owner string) (domain.Subscription, error) {
	if owner == "" {
		return nil, errors.New("subscribe: empty owner")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &subscription{
		broker: b,
		owner:  owner,
		events: make(chan domain.ChangeEvent, b.buffer),
		errs:   make(chan error, 1),
	}
	if b.subs[owner] == nil {
		b.subs[owner] = map[*subscription]struct{}{}
	}
	b.subs[owner][s] = struct{}{}
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s, nil
}

// Publish delivers ev to every subscription of ev.Owner().
func (b *Broker) Publish(ev domain.ChangeEvent) {
	owner := ev.Owner()
	if owner == "" {
		b.log.Warn("dropping change event without owner", "type", ev.Type)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[owner] {
		select {
		case s.events <- ev:
		default:
			s.fail(ErrLagged)
			if b.OnDrop != nil {
				b.OnDrop(owner)
			}
		}
	}
}

// Fail reports err to every open subscription.
func (b *Broker) Fail(err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, set := range b.subs {
		for s := range set {
			s.fail(err)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}

// Close ends every subscription; their event channels are closed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for owner, set := range b.subs {
		for s := range set {
			s.shutdown()
		}
		delete(b.subs, owner)
	}
}

type subscription struct {
	broker *Broker
	owner  string
	events chan domain.ChangeEvent
	errs   chan error
	stop   func() bool
	done   bool
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.events }
func (s *subscription) Errors() <-chan error              { return s.errs }

func (s *subscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return nil
	}
	if set := b.subs[s.owner]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.owner)
		}
	}
	s.shutdown()
	return nil
}

// shutdown runs with the broker lock held.
func (s *subscription) shutdown() {
	if s.done {
		return
	}
	s.done = true
	if s.stop != nil {
		s.stop()
	}
	close(s.events)
}

// fail keeps the first unread error only.
func (s *subscription) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
