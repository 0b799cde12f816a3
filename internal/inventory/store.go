// Package inventory tracks per-branch stock counts: a fixed catalog of
// categories and items, with raw and semi-finished quantities entered by
// branch staff every day. Counts live in SQLite and are wiped by the
// daily reset job.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"invbot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL UNIQUE,
	position INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS items (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT 'шт',
	UNIQUE(category_id, name)
);
CREATE TABLE IF NOT EXISTS counts (
	branch     TEXT NOT NULL,
	item_id    INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	raw        REAL,
	semi       REAL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (branch, item_id)
);
`

// Quantity kinds accepted by SetCount.
const (
	KindRaw  = "raw"
	KindSemi = "semi"
)

type Category struct {
	ID   int64
	Name string
}

type Item struct {
	ID       int64
	Category string
	Name     string
	Unit     string
}

// Count is one item's entered quantities for a branch. Nil means the
// quantity has not been entered yet.
type Count struct {
	Item Item
	Raw  *float64
	Semi *float64
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func NewStore(db *sql.DB, log logx.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("inventory schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// TemplateCategory seeds the catalog.
type TemplateCategory struct {
	Name  string
	Items []TemplateItem
}

type TemplateItem struct {
	Name string
	Unit string
}

// Seed fills an empty catalog from the template. A catalog that already
// has categories is left untouched.
func (s *Store) Seed(ctx context.Context, tmpl []TemplateCategory) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for pos, cat := range tmpl {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO categories(name, position) VALUES(?, ?)`, cat.Name, pos)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", cat.Name, err)
		}
		catID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, it := range cat.Items {
			unit := it.Unit
			if unit == "" {
				unit = "шт"
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO items(category_id, name, unit) VALUES(?, ?, ?)`,
				catID, it.Name, unit); err != nil {
				return fmt.Errorf("seed item %q: %w", it.Name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("inventory catalog seeded", logx.Int("categories", len(tmpl)))
	return nil
}

func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM categories ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Items(ctx context.Context, categoryID int64) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, c.name, i.name, i.unit
		FROM items i JOIN categories c ON c.id = i.category_id
		WHERE i.category_id = ?
		ORDER BY i.name`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Category, &it.Name, &it.Unit); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) Item(ctx context.Context, itemID int64) (Item, error) {
	var it Item
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id, c.name, i.name, i.unit
		FROM items i JOIN categories c ON c.id = i.category_id
		WHERE i.id = ?`, itemID).Scan(&it.ID, &it.Category, &it.Name, &it.Unit)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("item %d not found", itemID)
	}
	return it, err
}

// SetCount records one quantity (raw or semi-finished) for an item in a
// branch. The other quantity keeps its previous value.
func (s *Store) SetCount(ctx context.Context, branch string, itemID int64, kind string, qty float64) error {
	var col string
	switch kind {
	case KindRaw:
		col = "raw"
	case KindSemi:
		col = "semi"
	default:
		return fmt.Errorf("unknown quantity kind %q", kind)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO counts(branch, item_id, %[1]s, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(branch, item_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`,
		col), branch, itemID, qty, now)
	return err
}

// Counts returns every catalog item with the branch's entered quantities,
// in catalog order.
func (s *Store) Counts(ctx context.Context, branch string) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, c.name, i.name, i.unit, ct.raw, ct.semi
		FROM items i
		JOIN categories c ON c.id = i.category_id
		LEFT JOIN counts ct ON ct.item_id = i.id AND ct.branch = ?
		ORDER BY c.position, c.name, i.name`, branch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var cnt Count
		var raw, semi sql.NullFloat64
		if err := rows.Scan(&cnt.Item.ID, &cnt.Item.Category, &cnt.Item.Name, &cnt.Item.Unit, &raw, &semi); err != nil {
			return nil, err
		}
		if raw.Valid {
			v := raw.Float64
			cnt.Raw = &v
		}
		if semi.Valid {
			v := semi.Float64
			cnt.Semi = &v
		}
		out = append(out, cnt)
	}
	return out, rows.Err()
}

// Completion reports how many items have both quantities entered for the
// branch versus the catalog size.
func (s *Store) Completion(ctx context.Context, branch string) (done, total int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&total); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM counts
		WHERE branch = ? AND raw IS NOT NULL AND semi IS NOT NULL`, branch).Scan(&done)
	return done, total, err
}

// Clear wipes every branch's counts. The catalog stays.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM counts`)
	if err == nil {
		s.log.Info("inventory counts cleared")
	}
	return err
}

func (s *Store) ClearBranch(ctx context.Context, branch string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM counts WHERE branch = ?`, branch)
	return err
}
