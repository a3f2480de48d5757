package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nodemailer/nodemailer/internal/messaging"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMailHistory(t *testing.T) {
	db := openTestDB(t)
	base := time.Unix(1700000000, 0)

	first, err := db.InsertMail(messaging.Mail{SenderName: "alice", Message: "one", Timestamp: 1}, base)
	if err != nil {
		t.Fatalf("InsertMail failed: %v", err)
	}
	second, err := db.InsertMail(messaging.Mail{SenderName: "bob", Message: "two", NodeString: "eHl6", Timestamp: 2}, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("InsertMail failed: %v", err)
	}

	list, err := db.ListMail(0)
	if err != nil {
		t.Fatalf("ListMail failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	limited, _ := db.ListMail(1)
	if len(limited) != 1 {
		t.Errorf("expected 1 record with limit, got %d", len(limited))
	}

	got, err := db.GetMail(second.ID)
	if err != nil {
		t.Fatalf("GetMail failed: %v", err)
	}
	if got.Mail != second.Mail || !got.ReceivedAt.Equal(second.ReceivedAt) {
		t.Errorf("record mismatch: %+v vs %+v", got, second)
	}

	byPrefix, err := db.GetMail(first.ID[:8])
	if err != nil || byPrefix.ID != first.ID {
		t.Errorf("prefix lookup failed: %+v, %v", byPrefix, err)
	}

	if err := db.DeleteMail(first.ID); err != nil {
		t.Fatalf("DeleteMail failed: %v", err)
	}
	if _, err := db.GetMail(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if n, _ := db.CountMail(); n != 1 {
		t.Errorf("expected 1 record left, got %d", n)
	}
}

func TestGetMailErrors(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetMail("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.GetMail(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty id, got %v", err)
	}
	if err := db.DeleteMail("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from delete, got %v", err)
	}
}

func TestFavoritesTable(t *testing.T) {
	db := openTestDB(t)

	names, err := db.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty favorites, got %v", names)
	}

	if err := db.Set([]string{"carol", "alice", "carol", ""}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	names, _ = db.Get()
	if len(names) != 2 || names[0] != "alice" || names[1] != "carol" {
		t.Errorf("expected [alice carol], got %v", names)
	}

	if err := db.Set(nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if names, _ := db.Get(); len(names) != 0 {
		t.Errorf("expected favorites cleared, got %v", names)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	db.Set([]string{"alice"})
	db.InsertMail(messaging.Mail{SenderName: "alice", Message: "hi"}, time.Now())
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	if names, _ := db.Get(); len(names) != 1 {
		t.Errorf("favorites lost on reopen: %v", names)
	}
	if n, _ := db.CountMail(); n != 1 {
		t.Errorf("history lost on reopen: %d", n)
	}
}

func TestPragmasOnEveryConnection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Hold two connections at once so the pool has to open a second one
	conns := make([]*sql.Conn, 2)
	for i := range conns {
		c, err := db.db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn failed: %v", err)
		}
		defer c.Close()
		conns[i] = c
	}

	for i, c := range conns {
		var timeout int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if timeout != 5000 {
			t.Errorf("conn %d: busy_timeout = %d, want 5000", i, timeout)
		}
		var mode string
		if err := c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if mode != "wal" {
			t.Errorf("conn %d: journal_mode = %q, want wal", i, mode)
		}
	}
}
