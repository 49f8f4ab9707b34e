package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

// ErrSyncClosed is returned by commands sent after Close.
var ErrSyncClosed = errors.New("history synchronizer closed")

// Lister is the one-shot fetch used at mount and on refresh.
type Lister interface {
	List(ctx context.Context, owner string, limit int, order domain.Order) ([]*domain.Item, error)
}

// SyncOptions tunes a Synchronizer.
type SyncOptions struct {
	Capacity int
	Log      *slog.Logger
	// OnEvent, when set, is called for every feed event the loop handles.
	OnEvent func(t domain.EventType, refetch bool)
}

// Synchronizer keeps one owner's history view in memory and merges the
// change feed into it. Feed events and commands are handled by a single
// loop goroutine, strictly one at a time in arrival order; every change to
// the item list goes through domain.Reduce.
type Synchronizer struct {
	owner    string
	capacity int
	repo     Lister
	feed     domain.ChangeFeed
	log      *slog.Logger
	onEvent  func(domain.EventType, bool)

	cmds    chan command
	updates chan domain.State
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
	started bool

	// sub is owned by the loop goroutine after Start.
	sub domain.Subscription

	mu    sync.RWMutex
	state domain.State
}

type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

func NewSynchronizer(owner string, repo Lister, feed domain.ChangeFeed, opts SyncOptions) *Synchronizer {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = domain.DefaultCapacity
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{
		owner:    owner,
		capacity: capacity,
		repo:     repo,
		feed:     feed,
		log:      log.With("owner", owner),
		onEvent:  opts.OnEvent,
		cmds:     make(chan command),
		updates:  make(chan domain.State, 1),
		done:     make(chan struct{}),
		state:    domain.State{Owner: owner, Capacity: capacity, Items: []*domain.Item{}},
	}
}

// Start fetches the first page, opens the subscription and starts the
// loop. The loop stops when ctx is cancelled or Close is called.
func (s *Synchronizer) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.fetch(loopCtx)
	s.subscribe(loopCtx)
	s.publish()

	go s.loop(loopCtx)
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Copy()
}

// Updates delivers the latest state after each change. Intermediate states
// may be skipped when the reader is slow.
func (s *Synchronizer) Updates() <-chan domain.State { return s.updates }

// Done is closed when the loop has exited and the subscription is gone.
func (s *Synchronizer) Done() <-chan struct{} { return s.done }

// Refresh re-runs the initial fetch and re-subscribes if the feed is down.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.do(ctx, func(loopCtx context.Context) {
		s.fetch(loopCtx)
		if s.sub == nil {
			s.subscribe(loopCtx)
		} else {
			s.mu.Lock()
			s.state.Warning = ""
			s.mu.Unlock()
		}
		s.publish()
	})
}

// ApplyLocal merges a change the caller already made through the gateway,
// ahead of its feed echo. The echo is absorbed by the reducer's id checks.
func (s *Synchronizer) ApplyLocal(ctx context.Context, ev domain.ChangeEvent) error {
	return s.do(ctx, func(loopCtx context.Context) {
		s.apply(loopCtx, ev)
	})
}

// Close tears down the loop and the subscription. Safe to call twice.
func (s *Synchronizer) Close() {
	s.once.Do(func() {
		if !s.started {
			close(s.done)
			return
		}
		s.cancel()
		<-s.done
	})
}

func (s *Synchronizer) do(ctx context.Context, fn func(context.Context)) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- c:
	case <-s.done:
		return ErrSyncClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-s.done:
		return ErrSyncClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) loop(ctx context.Context) {
	defer close(s.done)
	defer s.unsubscribe()

	for {
		var events <-chan domain.ChangeEvent
		var errs <-chan error
		if s.sub != nil {
			events, errs = s.sub.Events(), s.sub.Errors()
		}

		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				s.subscriptionLost(errors.New("change feed closed"))
				continue
			}
			s.apply(ctx, ev)

		case err, ok := <-errs:
			if !ok {
				s.subscriptionLost(errors.New("change feed closed"))
				continue
			}
			s.log.Warn("history subscription error", "error", err)
			s.mu.Lock()
			s.state.Warning = staleWarning(err)
			s.mu.Unlock()
			s.publish()

		case c := <-s.cmds:
			c.fn(ctx)
			close(c.done)
		}
	}
}

func (s *Synchronizer) apply(ctx context.Context, ev domain.ChangeEvent) {
	s.mu.RLock()
	items := s.state.Items
	s.mu.RUnlock()

	next, refetch := domain.Reduce(items, ev, s.capacity)
	if s.onEvent != nil {
		s.onEvent(ev.Type, refetch)
	}
	if refetch {
		s.log.Info("ambiguous history event, refetching", "type", ev.Type)
		s.fetch(ctx)
	} else {
		s.mu.Lock()
		s.state.Items = next
		s.mu.Unlock()
	}
	s.publish()
}

func (s *Synchronizer) fetch(ctx context.Context) {
	items, err := s.repo.List(ctx, s.owner, s.capacity, domain.NewestFirst)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Error("fetch history failed", "error", err)
		s.state.Items = []*domain.Item{}
		s.state.FetchError = err.Error()
		return
	}
	domain.SortItems(items)
	if len(items) > s.capacity {
		items = items[:s.capacity]
	}
	if items == nil {
		items = []*domain.Item{}
	}
	s.state.Items = items
	s.state.FetchError = ""
}

func (s *Synchronizer) subscribe(ctx context.Context) {
	sub, err := s.feed.Subscribe(ctx, s.owner)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Error("history subscribe failed", "error", err)
		s.state.SubscriptionActive = false
		s.state.Warning = fmt.Sprintf("Failed to subscribe to real-time updates: %v. Try refreshing.", err)
		return
	}
	s.sub = sub
	s.state.SubscriptionActive = true
	s.state.Warning = ""
}

func (s *Synchronizer) subscriptionLost(err error) {
	s.log.Warn("history subscription lost", "error", err)
	s.unsubscribe()
	s.mu.Lock()
	s.state.SubscriptionActive = false
	s.state.Warning = staleWarning(err)
	s.mu.Unlock()
	s.publish()
}

func (s *Synchronizer) unsubscribe() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Close(); err != nil {
		s.log.Warn("history unsubscribe failed", "error", err)
	}
	s.sub = nil
}

// publish replaces any unread state with the current one.
func (s *Synchronizer) publish() {
	st := s.Snapshot()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- st:
	default:
	}
}

func staleWarning(err error) string {
	return fmt.Sprintf("Real-time connection issue: %v. History may not update automatically. Try refreshing.", err)
}
