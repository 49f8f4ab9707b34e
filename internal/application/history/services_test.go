package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/codesight/internal/domain/ai"
	"github.com/bryanwahyu/codesight/internal/domain/auth"
	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

func as(user string) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: user, Email: user + "@example.com"})
}

func strp(s string) *string { return &s }

func TestService_UnauthenticatedFailsBeforeStorage(t *testing.T) {
	repo := newFakeRepo()
	svc := &Service{Repo: repo}
	ctx := context.Background()

	_, err := svc.Insert(ctx, domain.NewItem{Language: "go"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = svc.Update(ctx, "id-1", domain.Patch{Title: strp("x")})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	assert.ErrorIs(t, svc.Delete(ctx, "id-1"), auth.ErrUnauthenticated)
	_, err = svc.List(ctx, 10, domain.NewestFirst, domain.Filter{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = svc.Get(ctx, "id-1")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	assert.Zero(t, repo.callCount())
}

func TestService_InsertThenList(t *testing.T) {
	svc := &Service{Repo: newFakeRepo()}
	ctx := as("u1")

	it, err := svc.Insert(ctx, domain.NewItem{Title: "Sum", Language: "python", Code: "print(1 + 1)"})
	require.NoError(t, err)
	assert.Equal(t, "u1", it.OwnerID)
	assert.NotEmpty(t, it.ID)

	items, err := svc.List(ctx, 0, "", domain.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, it.ID, items[0].ID)

	other, err := svc.List(as("u2"), 0, "", domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestService_ListOrderAndFilter(t *testing.T) {
	repo := newFakeRepo()
	svc := &Service{Repo: repo}
	ctx := as("u1")
	for _, lang := range []string{"go", "python", "go"} {
		_, err := svc.Insert(ctx, domain.NewItem{Language: lang})
		require.NoError(t, err)
	}
	_, err := svc.ToggleFavorite(ctx, "id-1", false)
	require.NoError(t, err)

	newest, err := svc.List(ctx, 0, domain.NewestFirst, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{"id-3", "id-2", "id-1"}, ids(newest))

	oldest, err := svc.List(ctx, 2, domain.OldestFirst, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{"id-1", "id-2"}, ids(oldest))

	gos, err := svc.List(ctx, 0, "", domain.Filter{Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{"id-3", "id-1"}, ids(gos))

	favs, err := svc.List(ctx, 0, "", domain.Filter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{"id-1"}, ids(favs))
}

func TestService_UpdateValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := &Service{Repo: repo}
	ctx := as("u1")
	it, err := svc.Insert(ctx, domain.NewItem{Language: "go"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, it.ID, domain.Patch{})
	assert.ErrorIs(t, err, domain.ErrEmptyPatch)

	_, err = svc.Update(ctx, it.ID, domain.Patch{Title: strp(strings.Repeat("a", 101)), Code: strp("short")})
	var verr *ai.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Title can be at most 100 characters.", verr.Fields["title"])
	assert.Equal(t, "Code must be at least 10 characters.", verr.Fields["code_snippet"])

	_, err = svc.Update(ctx, it.ID, domain.Patch{Language: strp("  ")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Please select a language.", verr.Fields["language"])

	updated, err := svc.UpdateNotes(ctx, it.ID, "check the loop bounds")
	require.NoError(t, err)
	assert.Equal(t, "check the loop bounds", updated.UserNotes)
}

func TestService_UpdateBlankTitleFallsBack(t *testing.T) {
	svc := &Service{Repo: newFakeRepo()}
	ctx := as("u1")
	it, err := svc.Insert(ctx, domain.NewItem{Title: "Loop", Language: "go"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, it.ID, domain.Patch{Title: strp("   ")})
	require.NoError(t, err)
	assert.Equal(t, "Analysis for go", updated.Title)

	updated, err = svc.Update(ctx, it.ID, domain.Patch{Title: strp(""), Language: strp("python")})
	require.NoError(t, err)
	assert.Equal(t, "Analysis for python", updated.Title)
	assert.Equal(t, "python", updated.Language)

	_, err = svc.Update(as("u2"), it.ID, domain.Patch{Title: strp("")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_OtherOwnerIsNotFound(t *testing.T) {
	svc := &Service{Repo: newFakeRepo()}
	it, err := svc.Insert(as("u1"), domain.NewItem{Language: "go"})
	require.NoError(t, err)

	_, err = svc.Get(as("u2"), it.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(as("u2"), it.ID), domain.ErrNotFound)
	_, err = svc.Update(as("u2"), it.ID, domain.Patch{Title: strp("mine now")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.Delete(as("u1"), it.ID))
	_, err = svc.Get(as("u1"), it.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_GetSharedPolicy(t *testing.T) {
	repo := newFakeRepo()
	it, err := (&Service{Repo: repo}).Insert(as("u1"), domain.NewItem{Language: "go"})
	require.NoError(t, err)

	cases := []struct {
		name    string
		policy  SharePolicy
		ctx     context.Context
		wantErr error
	}{
		{"public anonymous", SharePublic, context.Background(), nil},
		{"default is public", "", context.Background(), nil},
		{"authenticated anonymous", ShareAuthenticated, context.Background(), auth.ErrUnauthenticated},
		{"authenticated other user", ShareAuthenticated, as("u2"), nil},
		{"owner other user", ShareOwner, as("u2"), domain.ErrNotFound},
		{"owner self", ShareOwner, as("u1"), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &Service{Repo: repo, Policy: tc.policy}
			got, err := svc.GetShared(tc.ctx, it.ID)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, it.ID, got.ID)
		})
	}
}

func TestService_Export(t *testing.T) {
	repo := newFakeRepo()
	store := &fakeArtifacts{}
	svc := &Service{Repo: repo, Artifacts: store, Renderer: fakeRenderer{}}
	ctx := as("u1")
	it, err := svc.Insert(ctx, domain.NewItem{Title: "Fib", Language: "go"})
	require.NoError(t, err)

	res, err := svc.Export(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, res.ID)
	assert.True(t, strings.HasSuffix(res.HTMLURL, "u1/id-1/report.html"))
	assert.Equal(t, []byte("# Fib"), store.puts["u1/id-1/report.md"])
	assert.Equal(t, []byte("<h1>Fib</h1>"), store.puts["u1/id-1/report.html"])

	_, err = svc.Export(as("u2"), it.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_ExportFailures(t *testing.T) {
	repo := newFakeRepo()
	ctx := as("u1")
	it, err := (&Service{Repo: repo}).Insert(ctx, domain.NewItem{Title: "boom", Language: "go"})
	require.NoError(t, err)

	_, err = (&Service{Repo: repo}).Export(ctx, it.ID)
	assert.ErrorIs(t, err, ErrExportDisabled)

	_, err = (&Service{Repo: repo, Artifacts: &fakeArtifacts{}, Renderer: fakeRenderer{}}).Export(ctx, it.ID)
	assert.ErrorContains(t, err, "render failed")

	other, err := (&Service{Repo: repo}).Insert(ctx, domain.NewItem{Title: "ok", Language: "go"})
	require.NoError(t, err)
	upErr := errors.New("bucket gone")
	_, err = (&Service{Repo: repo, Artifacts: &fakeArtifacts{err: upErr}, Renderer: fakeRenderer{}}).Export(ctx, other.ID)
	assert.ErrorIs(t, err, upErr)
}
