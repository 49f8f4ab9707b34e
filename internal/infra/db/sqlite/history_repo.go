package sqlite

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
	db  *sql.DB
	now func() time.Time
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db, now: time.Now}
}

// WithClock overrides the created_at source.
func (r *HistoryRepository) WithClock(now func() time.Time) *HistoryRepository {
	r.now = now
	return r
}

func (r *HistoryRepository) Insert(ctx context.Context, owner string, n domain.NewItem) (*domain.Item, error) {
	const q = `
INSERT INTO analysis_history
(id, user_id, created_at, title, language, code_snippet,
 time_complexity, space_complexity, explanation, improvement_suggestions)
VALUES (?,?,?,?,?,?,?,?,?,?);`

	it := &domain.Item{
		ID:                     domain.ItemID(uuid.NewString()),
		OwnerID:                owner,
		CreatedAt:              fromUnix(toUnix(r.now())),
		Title:                  n.Title,
		Language:               n.Language,
		Code:                   n.Code,
		TimeComplexity:         n.TimeComplexity,
		SpaceComplexity:        n.SpaceComplexity,
		Explanation:            n.Explanation,
		ImprovementSuggestions: n.ImprovementSuggestions,
	}
	_, err := r.db.ExecContext(ctx, q,
		string(it.ID), it.OwnerID, toUnix(it.CreatedAt), it.Title, it.Language, it.Code,
		it.TimeComplexity, it.SpaceComplexity, it.Explanation, it.ImprovementSuggestions,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (r *HistoryRepository) Update(ctx context.Context, owner string, id domain.ItemID, p domain.Patch) (*domain.Item, error) {
	sets, args := patchSet(p)
	if len(sets) == 0 {
		return nil, domain.ErrEmptyPatch
	}
	q := "UPDATE analysis_history SET " + strings.Join(sets, ", ") + " WHERE id=? AND user_id=?;"
	args = append(args, string(id), owner)

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

func (r *HistoryRepository) Get(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	q := `SELECT ` + historyColumns + ` FROM analysis_history WHERE id=? LIMIT 1;`
	it, err := scanItem(r.db.QueryRowContext(ctx, q, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return it, err
}

func (r *HistoryRepository) List(ctx context.Context, owner string, limit int, order domain.Order) ([]*domain.Item, error) {
	if limit <= 0 {
		limit = domain.DefaultCapacity
	}
	dir := "DESC"
	if order == domain.OldestFirst {
		dir = "ASC"
	}
	q := `SELECT ` + historyColumns + ` FROM analysis_history WHERE user_id=? ORDER BY created_at ` + dir + `, id ` + dir + ` LIMIT ?;`
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
	var created int64
	var fav int
	if err := row.Scan(
		&it.ID, &it.OwnerID, &created, &it.Title, &it.Language, &it.Code,
		&it.TimeComplexity, &it.SpaceComplexity, &it.Explanation, &it.ImprovementSuggestions,
		&fav, &it.UserNotes,
	); err != nil {
		return nil, err
	}
	it.CreatedAt = fromUnix(created)
	it.IsFavorite = fav != 0
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
		fav := 0
		if *p.IsFavorite {
			fav = 1
		}
		sets, args = append(sets, "is_favorite=?"), append(args, fav)
	}
	if p.UserNotes != nil {
		sets, args = append(sets, "user_notes=?"), append(args, *p.UserNotes)
	}
	return sets, args
}
