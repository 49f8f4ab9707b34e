package postgres

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

type stubGetter struct {
	items map[domain.ItemID]*domain.Item
	err   error
}

func (g stubGetter) Get(_ context.Context, id domain.ItemID) (*domain.Item, error) {
	if g.err != nil {
		return nil, g.err
	}
	it, ok := g.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return it, nil
}

type recorder struct {
	events []domain.ChangeEvent
	errs   []error
}

func (r *recorder) Publish(ev domain.ChangeEvent) { r.events = append(r.events, ev) }
func (r *recorder) Fail(err error)                { r.errs = append(r.errs, err) }

func newTestListener(g itemGetter, pub Publisher) *Listener {
	return &Listener{repo: g, pub: pub, log: slog.Default()}
}

func TestListenerDecode(t *testing.T) {
	row := &domain.Item{ID: "a1", OwnerID: "u1", Title: "Fib", Code: "long snippet"}
	rec := &recorder{}
	l := newTestListener(stubGetter{items: map[domain.ItemID]*domain.Item{"a1": row}}, rec)
	ctx := context.Background()

	l.handle(ctx, `{"type":"INSERT","id":"a1","user_id":"u1"}`)
	l.handle(ctx, `{"type":"UPDATE","id":"a1","user_id":"u1"}`)
	l.handle(ctx, `{"type":"DELETE","id":"a1","user_id":"u1"}`)
	l.handle(ctx, `{"type":"INSERT","id":"gone","user_id":"u1"}`)
	l.handle(ctx, `not json`)
	l.handle(ctx, `{"type":"DELETE","id":"a1"}`)

	require.Len(t, rec.events, 3)
	assert.Equal(t, domain.EventInsert, rec.events[0].Type)
	assert.Equal(t, "long snippet", rec.events[0].New.Code)
	assert.Equal(t, domain.EventUpdate, rec.events[1].Type)
	assert.Equal(t, domain.ChangeEvent{Type: domain.EventDelete, Old: &domain.Item{ID: "a1", OwnerID: "u1"}}, rec.events[2])
	assert.Equal(t, "u1", rec.events[2].Owner())
}

func TestListenerDecodeHydrateFailureForcesRefetch(t *testing.T) {
	rec := &recorder{}
	l := newTestListener(stubGetter{err: errors.New("connection reset")}, rec)

	l.handle(context.Background(), `{"type":"UPDATE","id":"a1","user_id":"u1"}`)

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Nil(t, ev.New)
	assert.Equal(t, "u1", ev.Owner())

	_, refetch := domain.Reduce(nil, ev, domain.DefaultCapacity)
	assert.True(t, refetch)
}

func TestPatchSetNumbersPlaceholders(t *testing.T) {
	title, notes := "t", "n"
	sets, args := patchSet(domain.Patch{Title: &title, UserNotes: &notes})
	assert.Equal(t, []string{"title=$1", "user_notes=$2"}, sets)
	assert.Equal(t, []any{"t", "n"}, args)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("5f0c6a8e-2b1d-4a53-9a53-0d0a7c1b2e3f"))
	assert.False(t, validID("a1"))
}
