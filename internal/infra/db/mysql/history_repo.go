package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

const historyColumns = `id, user_id, created_at, title, language, code_snippet,
       time_complexity, space_complexity, explanation, improvement_suggestions,
       is_favorite, user_notes`

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert writes a new row; id and created_at are assigned here.
func (r *HistoryRepository) Insert(ctx context.Context, owner string, n domain.NewItem) (*domain.Item, error) {
	const q = `
INSERT INTO analysis_history
(id, user_id, created_at, title, language, code_snippet,
 time_complexity, space_complexity, explanation, improvement_suggestions, user_notes)
VALUES (?,?,?,?,?,?,?,?,?,?,'');
`
	it := &domain.Item{
		ID:                     domain.ItemID(uuid.NewString()),
		OwnerID:                owner,
		CreatedAt:              time.Now().UTC().Truncate(time.Microsecond),
		Title:                  n.Title,
		Language:               n.Language,
		Code:                   n.Code,
		TimeComplexity:         n.TimeComplexity,
		SpaceComplexity:        n.SpaceComplexity,
		Explanation:            n.Explanation,
		ImprovementSuggestions: n.ImprovementSuggestions,
	}
	_, err := r.db.ExecContext(ctx, q,
		string(it.ID), it.OwnerID, it.CreatedAt, it.Title, it.Language, it.Code,
		it.TimeComplexity, it.SpaceComplexity, it.Explanation, it.ImprovementSuggestions,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Update applies the non-nil patch fields to an own row.
func (r *HistoryRepository) Update(ctx context.Context, owner string, id domain.ItemID, p domain.Patch) (*domain.Item, error) {
	sets, args := patchSet(p)
	if len(sets) == 0 {
		return nil, domain.ErrEmptyPatch
	}
	q := "UPDATE analysis_history SET " + strings.Join(sets, ", ") + " WHERE id=? AND user_id=?;"
	args = append(args, string(id), owner)

	// clientFoundRows=true makes this count matched rows, not changed ones
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, domain.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *HistoryRepository) Delete(ctx context.Context, owner string, id domain.ItemID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_history WHERE id=? AND user_id=?;`, string(id), owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get by ID, any owner
func (r *HistoryRepository) Get(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	q := `SELECT ` + historyColumns + ` FROM analysis_history WHERE id=? LIMIT 1;`
	it, err := scanItem(r.db.QueryRowContext(ctx, q, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return it, err
}

// List latest rows of one owner
func (r *HistoryRepository) List(ctx context.Context, owner string, limit int, order domain.Order) ([]*domain.Item, error) {
	if limit <= 0 {
		limit = domain.DefaultCapacity
	}
	dir := "DESC"
	if order == domain.OldestFirst {
		dir = "ASC"
	}
	q := `SELECT ` + historyColumns + `
FROM analysis_history
WHERE user_id=? ORDER BY created_at ` + dir + `, id ` + dir + ` LIMIT ?;`

	rows, err := r.db.QueryContext(ctx, q, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	out := []*domain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var it domain.Item
	if err := row.Scan(
		&it.ID, &it.OwnerID, &it.CreatedAt, &it.Title, &it.Language, &it.Code,
		&it.TimeComplexity, &it.SpaceComplexity, &it.Explanation, &it.ImprovementSuggestions,
		&it.IsFavorite, &it.UserNotes,
	); err != nil {
		return nil, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	return &it, nil
}

func patchSet(p domain.Patch) ([]string, []any) {
	var sets []string
	var args []any
	if p.Title != nil {
		sets, args = append(sets, "title=?"), append(args, *p.Title)
	}
	if p.Language != nil {
		sets, args = append(sets, "language=?"), append(args, *p.Language)
	}
	if p.Code != nil {
		sets, args = append(sets, "code_snippet=?"), append(args, *p.Code)
	}
	if p.IsFavorite != nil {
		sets, args = append(sets, "is_favorite=?"), append(args, *p.IsFavorite)
	}
	if p.UserNotes != nil {
		sets, args = append(sets, "user_notes=?"), append(args, *p.UserNotes)
	}
	return sets, args
}
