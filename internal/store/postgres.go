package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scentwatch/catalog-service/internal/model"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS perfumes (
		id           BIGSERIAL PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		brand        TEXT NOT NULL DEFAULT '',
		actual_price TEXT NOT NULL DEFAULT '',
		old_price    TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS perfumes_brand_lower_idx ON perfumes (lower(brand))`,
	`CREATE TABLE IF NOT EXISTS parser_state (
		key   TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	)`,
}

// pgQuerier is the subset shared by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q pgQuerier
}

// Postgres is the pgx-backed Store.
type Postgres struct {
	pgTx
	pool *pgxpool.Pool
}

// NewPostgres wraps pool and creates the schema when missing.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	return &Postgres{pgTx: pgTx{q: pool}, pool: pool}, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (s *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

func (s *Postgres) ListPerfumes(ctx context.Context, f Filter) ([]model.Perfume, error) {
	query := `SELECT id, title, brand, actual_price, old_price, url FROM perfumes WHERE true`
	var args []any
	if f.OnlyDiscounted {
		query += ` AND old_price <> ''`
	}
	if f.Brand != "" {
		args = append(args, f.Brand)
		query += fmt.Sprintf(` AND lower(brand) = lower($%d)`, len(args))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Postgres) Brands(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT brand FROM perfumes ORDER BY brand`)
	if err != nil {
		return nil, fmt.Errorf("brands query: %w", err)
	}
	brands, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("brands scan: %w", err)
	}
	return brands, nil
}

func (s *Postgres) DeletePerfume(ctx context.Context, id int64) (model.Perfume, error) {
	var p model.Perfume
	err := s.pool.QueryRow(ctx,
		`DELETE FROM perfumes WHERE id = $1
		 RETURNING id, title, brand, actual_price, old_price, url`, id,
	).Scan(&p.ID, &p.Title, &p.Brand, &p.ActualPrice, &p.OldPrice, &p.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Perfume{}, ErrNotFound
	}
	if err != nil {
		return model.Perfume{}, fmt.Errorf("deletePerfume: %w", err)
	}
	return p, nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Postgres) Close() { s.pool.Close() }

// PerfumesByURL locks the matched rows until the surrounding transaction ends.
func (t *pgTx) PerfumesByURL(ctx context.Context, urls []string) (map[string]model.Perfume, error) {
	out := make(map[string]model.Perfume, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := t.q.Query(ctx,
		`SELECT id, title, brand, actual_price, old_price, url
		 FROM perfumes WHERE url = ANY($1) FOR UPDATE`, urls)
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

func (t *pgTx) PerfumeByID(ctx context.Context, id int64) (model.Perfume, error) {
	var p model.Perfume
	err := t.q.QueryRow(ctx,
		`SELECT id, title, brand, actual_price, old_price, url FROM perfumes WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Brand, &p.ActualPrice, &p.OldPrice, &p.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Perfume{}, ErrNotFound
	}
	if err != nil {
		return model.Perfume{}, fmt.Errorf("perfumeByID: %w", err)
	}
	return p, nil
}

func (t *pgTx) InsertPerfume(ctx context.Context, p *model.Perfume) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO perfumes (title, brand, actual_price, old_price, url)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.Title, p.Brand, p.ActualPrice, p.OldPrice, p.URL,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insertPerfume %q: %w", p.URL, err)
	}
	return nil
}

func (t *pgTx) UpdatePerfume(ctx context.Context, p model.Perfume) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE perfumes SET title = $1, brand = $2, actual_price = $3, old_price = $4
		 WHERE url = $5`,
		p.Title, p.Brand, p.ActualPrice, p.OldPrice, p.URL,
	)
	if err != nil {
		return fmt.Errorf("updatePerfume %q: %w", p.URL, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Counter(ctx context.Context, key string, def int) (int, error) {
	if _, err := t.q.Exec(ctx,
		`INSERT INTO parser_state (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		key, def,
	); err != nil {
		return 0, fmt.Errorf("counter %q init: %w", key, err)
	}
	var v int
	if err := t.q.QueryRow(ctx, `SELECT value FROM parser_state WHERE key = $1`, key).Scan(&v); err != nil {
		return 0, fmt.Errorf("counter %q: %w", key, err)
	}
	return v, nil
}

func (t *pgTx) SetCounter(ctx context.Context, key string, value int) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO parser_state (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setCounter %q: %w", key, err)
	}
	return nil
}
