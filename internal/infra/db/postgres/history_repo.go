package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

const historyColumns = `id, user_id, created_at, title, language, code_snippet,
       time_complexity, space_complexity, explanation, improvement_suggestions,
       is_favorite, user_notes`

type HistoryRepository struct{ db *sql.DB }

func NewHistoryRepository(db *sql.DB) *HistoryRepository { return &HistoryRepository{db: db} }

// Insert lets the database stamp created_at and returns the stored row.
func (r *HistoryRepository) Insert(ctx context.Context, owner string, n domain.NewItem) (*domain.Item, error) {
	q := `
INSERT INTO analysis_history
(id, user_id, title, language, code_snippet,
 time_complexity, space_complexity, explanation, improvement_suggestions)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING ` + historyColumns + `;`

	return scanItem(r.db.QueryRowContext(ctx, q,
		uuid.NewString(), owner, n.Title, n.Language, n.Code,
		n.TimeComplexity, n.SpaceComplexity, n.Explanation, n.ImprovementSuggestions,
	))
}

func (r *HistoryRepository) Update(ctx context.Context, owner string, id domain.ItemID, p domain.Patch) (*domain.Item, error) {
	sets, args := patchSet(p)
	if len(sets) == 0 {
		return nil, domain.ErrEmptyPatch
	}
	if !validID(string(id)) {
		return nil, domain.ErrNotFound
	}
	n := len(args)
	q := "UPDATE analysis_history SET " + strings.Join(sets, ", ") +
		" WHERE id=$" + strconv.Itoa(n+1) + " AND user_id=$" + strconv.Itoa(n+2) +
		" RETURNING " + historyColumns + ";"
	args = append(args, string(id), owner)

	it, err := scanItem(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return it, err
}

func (r *HistoryRepository) Delete(ctx context.Context, owner string, id domain.ItemID) error {
	if !validID(string(id)) {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_history WHERE id=$1 AND user_id=$2;`, string(id), owner)
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
	if !validID(string(id)) {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + historyColumns + ` FROM analysis_history WHERE id=$1 LIMIT 1;`
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
	q := `SELECT ` + historyColumns + `
FROM analysis_history
WHERE user_id=$1 ORDER BY created_at ` + dir + `, id ` + dir + ` LIMIT $2;`

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
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+"=$"+strconv.Itoa(len(args)))
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Language != nil {
		add("language", *p.Language)
	}
	if p.Code != nil {
		add("code_snippet", *p.Code)
	}
	if p.IsFavorite != nil {
		add("is_favorite", *p.IsFavorite)
	}
	if p.UserNotes != nil {
		add("user_notes", *p.UserNotes)
	}
	return sets, args
}

// validID guards UUID columns; a malformed id would otherwise be a 22P02 error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
