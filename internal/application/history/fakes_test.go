package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

type fakeRepo struct {
	mu      sync.Mutex
	items   map[domain.ItemID]*domain.Item
	seq     int
	calls   int
	listErr error
	base    time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items: map[domain.ItemID]*domain.Item{},
		base:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepo) seed(owner string, n int) []*domain.Item {
	out := make([]*domain.Item, 0, n)
	for i := 0; i < n; i++ {
		it, _ := r.Insert(context.Background(), owner, domain.NewItem{Title: fmt.Sprintf("t%d", i), Language: "go"})
		out = append(out, it)
	}
	return out
}

func (r *fakeRepo) Insert(_ context.Context, owner string, n domain.NewItem) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.seq++
	it := &domain.Item{
		ID:        domain.ItemID(fmt.Sprintf("id-%d", r.seq)),
		OwnerID:   owner,
		CreatedAt: r.base.Add(time.Duration(r.seq) * time.Minute),
		Title:     n.Title,
		Language:  n.Language,
		Code:      n.Code,
	}
	r.items[it.ID] = it
	return it.Clone(), nil
}

func (r *fakeRepo) Update(_ context.Context, owner string, id domain.ItemID, p domain.Patch) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	it, ok := r.items[id]
	if !ok || it.OwnerID != owner {
		return nil, domain.ErrNotFound
	}
	r.items[id] = p.Apply(it)
	return r.items[id].Clone(), nil
}

func (r *fakeRepo) Delete(_ context.Context, owner string, id domain.ItemID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	it, ok := r.items[id]
	if !ok || it.OwnerID != owner {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id domain.ItemID) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	it, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return it.Clone(), nil
}

func (r *fakeRepo) List(_ context.Context, owner string, limit int, order domain.Order) ([]*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Item
	for _, it := range r.items {
		if it.OwnerID == owner {
			out = append(out, it.Clone())
		}
	}
	domain.SortItems(out)
	if order == domain.OldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeSub struct {
	events chan domain.ChangeEvent
	errs   chan error
	once   sync.Once
	closed chan struct{}
}

func (s *fakeSub) Events() <-chan domain.ChangeEvent { return s.events }
func (s *fakeSub) Errors() <-chan error              { return s.errs }
func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (f *fakeFeed) Subscribe(_ context.Context, _ string) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSub{
		events: make(chan domain.ChangeEvent, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeFeed) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeArtifacts struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (a *fakeArtifacts) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.puts == nil {
		a.puts = map[string][]byte{}
	}
	a.puts[key] = data
	return "https://objects.test/reports/" + key, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(it *domain.Item) (Report, error) {
	if it.Title == "boom" {
		return Report{}, errors.New("render failed")
	}
	return Report{Markdown: []byte("# " + it.Title), HTML: []byte("<h1>" + it.Title + "</h1>")}, nil
}
