package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

// ChangeChannel is the NOTIFY channel written by the analysis_history trigger.
const ChangeChannel = "analysis_history_changes"

// ErrResync is published after a reconnect; notifications sent while the
// connection was down are gone.
var ErrResync = errors.New("realtime connection re-established, some updates may have been missed")

// Publisher fans change events out to subscribers.
type Publisher interface {
	Publish(ev domain.ChangeEvent)
	Fail(err error)
}

type itemGetter interface {
	Get(ctx context.Context, id domain.ItemID) (*domain.Item, error)
}

type notification struct {
	Type   domain.EventType `json:"type"`
	ID     string           `json:"id"`
	UserID string           `json:"user_id"`
}

// Listener turns trigger notifications into full change events.
type Listener struct {
	dsn  string
	repo itemGetter
	pub  Publisher
	log  *slog.Logger
	ping time.Duration
}

func NewListener(dsn string, repo *HistoryRepository, pub Publisher, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{dsn: dsn, repo: repo, pub: pub, log: log, ping: 90 * time.Second}
}

// Run blocks until ctx is done. pq.Listener reconnects on its own.
func (l *Listener) Run(ctx context.Context) error {
	pl := pq.NewListener(l.dsn, 10*time.Second, time.Minute, l.report)
	defer pl.Close()

	if err := pl.Listen(ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}
	l.log.Info("listening for history changes", "channel", ChangeChannel)

	ticker := time.NewTicker(l.ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-pl.Notify:
			if !ok {
				return errors.New("history listener closed")
			}
			if n == nil {
				l.pub.Fail(ErrResync)
				continue
			}
			l.handle(ctx, n.Extra)
		case <-ticker.C:
			go func() {
				if err := pl.Ping(); err != nil {
					l.log.Warn("history listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *Listener) report(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		l.log.Warn("history listener connection problem", "error", err)
		if err != nil {
			l.pub.Fail(fmt.Errorf("realtime connection lost: %w", err))
		}
	case pq.ListenerEventReconnected:
		l.log.Info("history listener reconnected")
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	ev, err := l.decode(ctx, payload)
	if err != nil {
		l.log.Warn("dropping history notification", "payload", payload, "error", err)
		return
	}
	if ev != nil {
		l.pub.Publish(*ev)
	}
}

// decode returns nil for rows that vanished before they could be read; the
// matching DELETE notification follows.
func (l *Listener) decode(ctx context.Context, payload string) (*domain.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.UserID == "" {
		return nil, errors.New("notification without user_id")
	}
	ref := &domain.Item{ID: domain.ItemID(n.ID), OwnerID: n.UserID}

	switch n.Type {
	case domain.EventDelete:
		return &domain.ChangeEvent{Type: domain.EventDelete, Old: ref}, nil
	case domain.EventInsert, domain.EventUpdate:
		it, err := l.repo.Get(ctx, ref.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			// no row: subscribers refetch
			l.log.Warn("hydrate history row failed", "id", n.ID, "error", err)
			return &domain.ChangeEvent{Type: n.Type, Old: ref}, nil
		}
		return &domain.ChangeEvent{Type: n.Type, New: it}, nil
	}
	return &domain.ChangeEvent{Type: n.Type, Old: ref}, nil
}
