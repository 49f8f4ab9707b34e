package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

const waitFor = 2 * time.Second

func startSync(t *testing.T, repo *fakeRepo, feed *fakeFeed, capacity int) *Synchronizer {
	t.Helper()
	s := NewSynchronizer("u1", repo, feed, SyncOptions{Capacity: capacity})
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func ids(items []*domain.Item) []domain.ItemID {
	out := make([]domain.ItemID, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestSynchronizer_InitialFetch(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("u1", 3)
	repo.seed("u2", 2)
	feed := &fakeFeed{}

	s := startSync(t, repo, feed, 50)

	st := s.Snapshot()
	assert.Equal(t, []domain.ItemID{"id-3", "id-2", "id-1"}, ids(st.Items))
	assert.True(t, st.SubscriptionActive)
	assert.Empty(t, st.FetchError)
	assert.Empty(t, st.Warning)
}

func TestSynchronizer_InitialFetchKeepsCapacity(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("u1", 8)

	s := startSync(t, repo, &fakeFeed{}, 5)

	st := s.Snapshot()
	require.Len(t, st.Items, 5)
	assert.Equal(t, domain.ItemID("id-8"), st.Items[0].ID)
}

func TestSynchronizer_FetchErrorIsDistinctFromEmpty(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("db down")

	s := startSync(t, repo, &fakeFeed{}, 50)

	st := s.Snapshot()
	assert.Empty(t, st.Items)
	assert.Equal(t, "db down", st.FetchError)
	assert.True(t, st.SubscriptionActive)
}

func TestSynchronizer_SubscribeFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("u1", 1)

	s := startSync(t, repo, &fakeFeed{err: errors.New("refused")}, 50)

	st := s.Snapshot()
	assert.Len(t, st.Items, 1)
	assert.False(t, st.SubscriptionActive)
	assert.Contains(t, st.Warning, "refused")
}

func TestSynchronizer_AppliesFeedEvents(t *testing.T) {
	repo := newFakeRepo()
	seeded := repo.seed("u1", 2)
	feed := &fakeFeed{}
	s := startSync(t, repo, feed, 50)
	sub := feed.last()
	require.NotNil(t, sub)

	fresh := &domain.Item{ID: "id-new", OwnerID: "u1", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	sub.events <- domain.ChangeEvent{Type: domain.EventInsert, New: fresh}
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Items) == 3
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, domain.ItemID("id-new"), s.Snapshot().Items[0].ID)

	// duplicate delivery is a no-op
	sub.events <- domain.ChangeEvent{Type: domain.EventInsert, New: fresh}
	updated := seeded[0].Clone()
	updated.IsFavorite = true
	sub.events <- domain.ChangeEvent{Type: domain.EventUpdate, New: updated}
	require.Eventually(t, func() bool {
		for _, it := range s.Snapshot().Items {
			if it.ID == updated.ID {
				return it.IsFavorite
			}
		}
		return false
	}, waitFor, 5*time.Millisecond)
	assert.Len(t, s.Snapshot().Items, 3)

	sub.events <- domain.ChangeEvent{Type: domain.EventDelete, Old: &domain.Item{ID: "id-new", OwnerID: "u1"}}
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Items) == 2
	}, waitFor, 5*time.Millisecond)
}

func TestSynchronizer_AmbiguousEventRefetches(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("u1", 2)
	feed := &fakeFeed{}
	s := startSync(t, repo, feed, 50)

	before := repo.callCount()

	// the row disappeared behind the feed's back
	_ = repo.Delete(context.Background(), "u1", "id-1")
	feed.last().events <- domain.ChangeEvent{Type: domain.EventDelete, Old: &domain.Item{OwnerID: "u1"}}

	require.Eventually(t, func() bool {
		return repo.callCount() > before+1 && len(s.Snapshot().Items) == 1
	}, waitFor, 5*time.Millisecond)
}

func TestSynchronizer_SubscriptionErrorSetsWarning(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("u1", 1)
	feed := &fakeFeed{}
	s := startSync(t, repo, feed, 50)

	feed.last().errs <- errors.New("timed out")
	require.Eventually(t, func() bool {
		return s.Snapshot().Warning != ""
	}, waitFor, 5*time.Millisecond)

	st := s.Snapshot()
	assert.Contains(t, st.Warning, "timed out")
	assert.Len(t, st.Items, 1, "items are kept when the feed misbehaves")
}

func TestSynchronizer_ClosedFeedDeactivatesAndRefreshResubscribes(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("u1", 1)
	feed := &fakeFeed{}
	s := startSync(t, repo, feed, 50)

	close(feed.last().events)
	require.Eventually(t, func() bool {
		return !s.Snapshot().SubscriptionActive
	}, waitFor, 5*time.Millisecond)

	repo.seed("u1", 1)
	require.NoError(t, s.Refresh(context.Background()))

	st := s.Snapshot()
	assert.True(t, st.SubscriptionActive)
	assert.Empty(t, st.Warning)
	assert.Len(t, st.Items, 2)
	assert.Equal(t, 2, feed.count())
}

func TestSynchronizer_ApplyLocalAbsorbsEcho(t *testing.T) {
	repo := newFakeRepo()
	feed := &fakeFeed{}
	s := startSync(t, repo, feed, 50)

	it, err := repo.Insert(context.Background(), "u1", domain.NewItem{Title: "mine", Language: "go"})
	require.NoError(t, err)
	ev := domain.ChangeEvent{Type: domain.EventInsert, New: it}

	require.NoError(t, s.ApplyLocal(context.Background(), ev))
	assert.Len(t, s.Snapshot().Items, 1)

	feed.last().events <- ev
	require.NoError(t, s.Refresh(context.Background()))
	assert.Len(t, s.Snapshot().Items, 1)
}

func TestSynchronizer_UpdatesCoalesce(t *testing.T) {
	repo := newFakeRepo()
	feed := &fakeFeed{}
	s := startSync(t, repo, feed, 50)

	for i := 0; i < 5; i++ {
		it, _ := repo.Insert(context.Background(), "u1", domain.NewItem{Language: "go"})
		require.NoError(t, s.ApplyLocal(context.Background(), domain.ChangeEvent{Type: domain.EventInsert, New: it}))
	}

	select {
	case st := <-s.Updates():
		assert.Len(t, st.Items, 5)
	case <-time.After(waitFor):
		t.Fatal("no update delivered")
	}
}

func TestSynchronizer_CloseStopsLoopAndUnsubscribes(t *testing.T) {
	repo := newFakeRepo()
	feed := &fakeFeed{}
	s := NewSynchronizer("u1", repo, feed, SyncOptions{})
	s.Start(context.Background())

	s.Close()
	s.Close()

	select {
	case <-feed.last().closed:
	default:
		t.Fatal("subscription not closed")
	}
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrSyncClosed)
}

func TestSynchronizer_ContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := &fakeFeed{}
	s := NewSynchronizer("u1", newFakeRepo(), feed, SyncOptions{})
	s.Start(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("loop still running")
	}
	s.Close()
}
