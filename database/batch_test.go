package database

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func newBatchDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := InitSqliteDB(filepath.Join(t.TempDir(), "batch.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("create table items (a integer not null, b text not null)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestInserter(t *testing.T) {
	t.Run("flushes full batches automatically", func(t *testing.T) {
		db := newBatchDB(t)
		in := NewInserter(db, "items", []string{"a", "b"}, 2)
		for idx := 0; idx < 5; idx++ {
			if err := in.Add(idx, "row"); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
		if in.Rows() != 4 {
			t.Errorf("expected 4 rows flushed before final flush, got %d", in.Rows())
		}
		if err := in.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		if in.Rows() != 5 {
			t.Errorf("expected 5 rows flushed, got %d", in.Rows())
		}
		n, err := CountRows(db, "items")
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 5 {
			t.Errorf("expected 5 rows in table, got %d", n)
		}
	})

	t.Run("flush on empty buffer is a no-op", func(t *testing.T) {
		db := newBatchDB(t)
		in := NewInserter(db, "items", []string{"a", "b"}, 2)
		if err := in.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		if in.Rows() != 0 {
			t.Errorf("expected 0 rows, got %d", in.Rows())
		}
	})

	t.Run("failed flush resets the buffer", func(t *testing.T) {
		db := newBatchDB(t)
		in := NewInserter(db, "missing_table", []string{"a", "b"}, 10)
		if err := in.Add(1, "row"); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := in.Flush(); err == nil {
			t.Fatal("expected flush error")
		}
		if err := in.Flush(); err != nil {
			t.Errorf("expected second flush to be clean, got %v", err)
		}
		if in.Rows() != 0 {
			t.Errorf("expected no rows counted, got %d", in.Rows())
		}
	})

	t.Run("rows preserve insertion order", func(t *testing.T) {
		db := newBatchDB(t)
		in := NewInserter(db, "items", []string{"a", "b"}, 3)
		for idx := 0; idx < 7; idx++ {
			if err := in.Add(idx, "row"); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
		if err := in.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		var vals []int
		if err := db.Select(&vals, "select a from items order by rowid"); err != nil {
			t.Fatalf("select: %v", err)
		}
		for idx := range vals {
			if vals[idx] != idx {
				t.Fatalf("expected row %d at position %d, got %d", idx, idx, vals[idx])
			}
		}
	})
}
