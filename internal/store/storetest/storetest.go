// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"scentwatch/catalog-service/internal/db"
	"scentwatch/catalog-service/internal/store"
)

// New returns an empty SQLite-backed store living in t.TempDir. It is
// closed when the test ends.
func New(t testing.TB) *store.SQLite {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := store.NewSQLite(ctx, conn)
	if err != nil {
		conn.Close()
		t.Fatalf("init sqlite store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}
