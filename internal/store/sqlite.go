package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"scentwatch/catalog-service/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS perfumes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL DEFAULT '',
	brand        TEXT NOT NULL DEFAULT '',
	actual_price TEXT NOT NULL DEFAULT '',
	old_price    TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS parser_state (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);`

// sqlQuerier is the subset shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteTx struct {
	q sqlQuerier
}

// SQLite is the database/sql + modernc.org/sqlite backed Store.
type SQLite struct {
	sqliteTx
	db *sql.DB
}

// NewSQLite wraps an opened database and creates the schema when missing.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{sqliteTx: sqliteTx{q: db}, db: db}, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (s *SQLite) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := fn(&sqliteTx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

func (s *SQLite) ListPerfumes(ctx context.Context, f Filter) ([]model.Perfume, error) {
	query := `SELECT id, title, brand, actual_price, old_price, url FROM perfumes WHERE 1 = 1`
	var args []any
	if f.OnlyDiscounted {
		query += ` AND old_price <> ''`
	}
	if f.Brand != "" {
		query += ` AND lower(brand) = lower(?)`
		args = append(args, f.Brand)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listPerfumes query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Perfume, 0)
	for rows.Next() {
		var p model.Perfume
		if err := rows.Scan(&p.ID, &p.Title, &p.Brand, &p.ActualPrice, &p.OldPrice, &p.URL); err != nil {
			return nil, fmt.Errorf("listPerfumes scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Brands(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT brand FROM perfumes ORDER BY brand`)
	if err != nil {
		return nil, fmt.Errorf("brands query: %w", err)
	}
	defer rows.Close()

	brands := make([]string, 0)
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("brands scan: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *SQLite) DeletePerfume(ctx context.Context, id int64) (model.Perfume, error) {
	var p model.Perfume
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM perfumes WHERE id = ?
		 RETURNING id, title, brand, actual_price, old_price, url`, id,
	).Scan(&p.ID, &p.Title, &p.Brand, &p.ActualPrice, &p.OldPrice, &p.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Perfume{}, ErrNotFound
	}
	if err != nil {
		return model.Perfume{}, fmt.Errorf("deletePerfume: %w", err)
	}
	return p, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() { s.db.Close() }

func (t *sqliteTx) PerfumesByURL(ctx context.Context, urls []string) (map[string]model.Perfume, error) {
	out := make(map[string]model.Perfume, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(urls)), ",")

	rows, err := t.q.QueryContext(ctx,
		`SELECT id, title, brand, actual_price, old_price, url
		 FROM perfumes WHERE url IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("perfumesByURL query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Perfume
		if err := rows.Scan(&p.ID, &p.Title, &p.Brand, &p.ActualPrice, &p.OldPrice, &p.URL); err != nil {
			return nil, fmt.Errorf("perfumesByURL scan: %w", err)
		}
		out[p.URL] = p
	}
	return out, rows.Err()
}

func (t *sqliteTx) PerfumeByID(ctx context.Context, id int64) (model.Perfume, error) {
	var p model.Perfume
	err := t.q.QueryRowContext(ctx,
		`SELECT id, title, brand, actual_price, old_price, url FROM perfumes WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Brand, &p.ActualPrice, &p.OldPrice, &p.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Perfume{}, ErrNotFound
	}
	if err != nil {
		return model.Perfume{}, fmt.Errorf("perfumeByID: %w", err)
	}
	return p, nil
}

func (t *sqliteTx) InsertPerfume(ctx context.Context, p *model.Perfume) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO perfumes (title, brand, actual_price, old_price, url)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		p.Title, p.Brand, p.ActualPrice, p.OldPrice, p.URL,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insertPerfume %q: %w", p.URL, err)
	}
	return nil
}

func (t *sqliteTx) UpdatePerfume(ctx context.Context, p model.Perfume) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE perfumes SET title = ?, brand = ?, actual_price = ?, old_price = ? WHERE url = ?`,
		p.Title, p.Brand, p.ActualPrice, p.OldPrice, p.URL,
	)
	if err != nil {
		return fmt.Errorf("updatePerfume %q: %w", p.URL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) Counter(ctx context.Context, key string, def int) (int, error) {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO parser_state (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`,
		key, def,
	); err != nil {
		return 0, fmt.Errorf("counter %q init: %w", key, err)
	}
	var v int
	if err := t.q.QueryRowContext(ctx, `SELECT value FROM parser_state WHERE key = ?`, key).Scan(&v); err != nil {
		return 0, fmt.Errorf("counter %q: %w", key, err)
	}
	return v, nil
}

func (t *sqliteTx) SetCounter(ctx context.Context, key string, value int) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO parser_state (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setCounter %q: %w", key, err)
	}
	return nil
}
