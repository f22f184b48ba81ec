package cache

import (
	"path/filepath"
	"testing"
)

func TestHashCacheInsertLookup(t *testing.T) {
	hc, err := NewHashCache(filepath.Join(t.TempDir(), "hash.db"), 1000)
	if err != nil {
		t.Fatalf("NewHashCache: %v", err)
	}
	defer hc.Close()

	if _, ok, err := hc.Lookup("deadbeef"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := hc.Insert("deadbeef", "wall-1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	id, ok, err := hc.Lookup("deadbeef")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || id != "wall-1" {
		t.Fatalf("expected hit wall-1, got id=%q ok=%v", id, ok)
	}
}

func TestHashCacheInsertUpsert(t *testing.T) {
	hc, err := NewHashCache(filepath.Join(t.TempDir(), "hash.db"), 1000)
	if err != nil {
		t.Fatalf("NewHashCache: %v", err)
	}
	defer hc.Close()

	if err := hc.Insert("abc123", "wall-1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := hc.Insert("abc123", "wall-2"); err != nil {
		t.Fatalf("Insert (overwrite): %v", err)
	}

	id, ok, err := hc.Lookup("abc123")
	if err != nil || !ok || id != "wall-2" {
		t.Fatalf("expected wall-2, got id=%q ok=%v err=%v", id, ok, err)
	}
}

func TestHashCacheCleanupEvictsOldest(t *testing.T) {
	hc, err := NewHashCache(filepath.Join(t.TempDir(), "hash.db"), 10)
	if err != nil {
		t.Fatalf("NewHashCache: %v", err)
	}
	defer hc.Close()

	for i := 0; i < 10; i++ {
		if err := hc.Insert(string(rune('a'+i)), "wall"); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	var count int
	if err := hc.db.QueryRow(`SELECT COUNT(*) FROM hashes`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count > 7 {
		t.Fatalf("expected cleanup to bring count to <= 70%% of max (7), got %d", count)
	}
}

func TestHashCacheIntegrityCheck(t *testing.T) {
	hc, err := NewHashCache(filepath.Join(t.TempDir(), "hash.db"), 1000)
	if err != nil {
		t.Fatalf("NewHashCache: %v", err)
	}
	defer hc.Close()

	if err := hc.IntegrityCheck(); err != nil {
		t.Fatalf("IntegrityCheck: %v", err)
	}
}
