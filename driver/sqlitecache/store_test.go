package sqlitecache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/cachetest"
)

func TestSQLiteStorageContract(t *testing.T) {
	storage, err := New(Config{
		DSN:   filepath.Join(t.TempDir(), "cache.db"),
		Table: "cache_entries",
	})
	if err != nil {
		t.Fatalf("sqlite storage create failed: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	cachetest.RunStorageContract(t, storage, cachetest.Options{CaseName: t.Name()})
}

func TestSQLiteStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache.db")
	first, err := New(Config{DSN: dsn})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.Write(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := New(Config{DSN: dsn})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if second.Kind() != cachecore.KindDatabase {
		t.Fatalf("unexpected kind %s", second.Kind())
	}
	body, ok, err := second.Read(ctx, "k")
	if err != nil || !ok || string(body) != "v" {
		t.Fatalf("expected persisted row, ok=%v body=%q err=%v", ok, body, err)
	}
}
