// Package cursor persists the crawler's resume position as two named
// counters, "page" and "index".
package cursor

import (
	"context"
	"fmt"

	"scentwatch/catalog-service/internal/model"
)

// Counters is the storage the cursor lives in. store.Store and store.Tx
// both satisfy it, so a save can join the transaction of the batch it
// accounts for.
type Counters interface {
	Counter(ctx context.Context, key string, def int) (int, error)
	SetCounter(ctx context.Context, key string, value int) error
}

// Store loads and saves a Cursor.
type Store struct {
	c Counters
}

// New returns a Store backed by c.
func New(c Counters) *Store {
	return &Store{c: c}
}

// Load returns the saved cursor. Missing counters are stored with their
// defaults (page 1, index 0) before being returned.
func (s *Store) Load(ctx context.Context) (model.Cursor, error) {
	page, err := s.c.Counter(ctx, model.CursorPageKey, model.DefaultCursorPage)
	if err != nil {
		return model.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	index, err := s.c.Counter(ctx, model.CursorIndexKey, model.DefaultCursorIndex)
	if err != nil {
		return model.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	return model.Cursor{Page: page, Index: index}, nil
}

// Save overwrites both counters. Storage errors are returned unchanged in
// meaning; a caller must not treat the position as advanced unless Save
// returns nil.
func (s *Store) Save(ctx context.Context, c model.Cursor) error {
	if err := s.c.SetCounter(ctx, model.CursorPageKey, c.Page); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	if err := s.c.SetCounter(ctx, model.CursorIndexKey, c.Index); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
