package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bryanwahyu/codesight/internal/application"
	"github.com/bryanwahyu/codesight/internal/domain/auth"
	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

// SharePolicy decides who may read a single item by id.
type SharePolicy string

const (
	ShareOwner         SharePolicy = "owner"
	ShareAuthenticated SharePolicy = "authenticated"
	SharePublic        SharePolicy = "public"
)

// Service is the persistence gateway. Every mutation resolves the owner
// from ctx first and fails with auth.ErrUnauthenticated before any storage
// call when there is none.
type Service struct {
	Repo      domain.Repository
	Artifacts domain.ArtifactStore
	Renderer  Renderer
	Policy    SharePolicy
	Log       *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Insert stores a new analysis for the session owner.
func (s *Service) Insert(ctx context.Context, n domain.NewItem) (*domain.Item, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.Repo.Insert(ctx, owner, n)
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}
	return item, nil
}

// Update changes title/language/code (and favorite/notes) of an own item.
// The analysis itself is not re-run.
func (s *Service) Update(ctx context.Context, id domain.ItemID, p domain.Patch) (*domain.Item, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, domain.ErrEmptyPatch
	}
	p = trimPatch(p)
	if err := application.ValidateStruct(patchValidator, p); err != nil {
		return nil, err
	}
	if p.Title != nil && *p.Title == "" {
		lang, err := s.patchLanguage(ctx, owner, id, p)
		if err != nil {
			return nil, err
		}
		title := application.DefaultTitle(lang)
		p.Title = &title
	}
	item, err := s.Repo.Update(ctx, owner, id, p)
	if err != nil {
		return nil, fmt.Errorf("update analysis %s: %w", id, err)
	}
	return item, nil
}

// ToggleFavorite flips the favorite flag given the value the caller last saw.
func (s *Service) ToggleFavorite(ctx context.Context, id domain.ItemID, current bool) (*domain.Item, error) {
	next := !current
	return s.Update(ctx, id, domain.Patch{IsFavorite: &next})
}

// UpdateNotes replaces the free-text notes.
func (s *Service) UpdateNotes(ctx context.Context, id domain.ItemID, notes string) (*domain.Item, error) {
	return s.Update(ctx, id, domain.Patch{UserNotes: &notes})
}

// Delete removes an own item.
func (s *Service) Delete(ctx context.Context, id domain.ItemID) error {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, owner, id); err != nil {
		return fmt.Errorf("delete analysis %s: %w", id, err)
	}
	s.logger().Info("analysis deleted", "owner", owner, "id", id)
	return nil
}

// Get returns an item owned by the caller.
func (s *Service) Get(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != owner {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// GetShared reads an item by id for the share view, subject to Policy.
func (s *Service) GetShared(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	policy := s.Policy
	if policy == "" {
		policy = SharePublic
	}
	p, authenticated := auth.PrincipalFrom(ctx)
	if policy != SharePublic && !authenticated {
		return nil, auth.ErrUnauthenticated
	}
	item, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy == ShareOwner && item.OwnerID != p.UserID {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// List returns the caller's history, newest first unless order says otherwise.
func (s *Service) List(ctx context.Context, limit int, order domain.Order, f domain.Filter) ([]*domain.Item, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = domain.DefaultCapacity
	}
	if order != domain.OldestFirst {
		order = domain.NewestFirst
	}
	items, err := s.Repo.List(ctx, owner, limit, order)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return f.Apply(items), nil
}

var patchValidator = application.NewValidator()

func trimPatch(p domain.Patch) domain.Patch {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Language != nil {
		l := strings.TrimSpace(*p.Language)
		p.Language = &l
	}
	return p
}

// patchLanguage is the language an item will have once p is applied.
func (s *Service) patchLanguage(ctx context.Context, owner string, id domain.ItemID, p domain.Patch) (string, error) {
	if p.Language != nil {
		return *p.Language, nil
	}
	item, err := s.Repo.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("update analysis %s: %w", id, err)
	}
	if item.OwnerID != owner {
		return "", domain.ErrNotFound
	}
	return item.Language, nil
}
