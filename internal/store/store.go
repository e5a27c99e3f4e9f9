// Package store persists the catalog and the crawler's counters.
//
// Two backends share one contract: PostgreSQL through pgx for shared
// deployments and SQLite through modernc for single-node use and tests.
// Every catalog mutation runs inside WithTx so that a batch's upserts and
// the cursor advance that covers them commit together.
package store

import (
	"context"
	"errors"

	"scentwatch/catalog-service/internal/model"
)

// ErrNotFound is returned when a perfume does not exist.
var ErrNotFound = errors.New("perfume not found")

// Filter narrows ListPerfumes.
type Filter struct {
	Brand          string // case-insensitive exact match; empty = any
	OnlyDiscounted bool   // keep records with a non-empty old price
}

// Tx is the transactional scope used by catalog and cursor mutations.
type Tx interface {
	// PerfumesByURL returns the stored records among urls, keyed by url.
	PerfumesByURL(ctx context.Context, urls []string) (map[string]model.Perfume, error)
	PerfumeByID(ctx context.Context, id int64) (model.Perfume, error)
	// InsertPerfume stores p and sets p.ID.
	InsertPerfume(ctx context.Context, p *model.Perfume) error
	// UpdatePerfume overwrites the mutable fields of the record with p.URL.
	UpdatePerfume(ctx context.Context, p model.Perfume) error

	// Counter returns the named counter, storing def first if it is absent.
	Counter(ctx context.Context, key string, def int) (int, error)
	SetCounter(ctx context.Context, key string, value int) error
}

// Store is a catalog backend. Its Tx methods run in their own implicit
// transaction.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListPerfumes(ctx context.Context, f Filter) ([]model.Perfume, error)
	Brands(ctx context.Context) ([]string, error)
	// DeletePerfume removes the record and returns it as it was.
	DeletePerfume(ctx context.Context, id int64) (model.Perfume, error)

	Ping(ctx context.Context) error
	Close()
}
