package hybridcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goforj/hybridcache/cachecore"
)

func TestNewStorageEachKind(t *testing.T) {
	dir := t.TempDir()
	cases := []BackendConfig{
		{Kind: cachecore.KindMemory},
		{Kind: cachecore.KindPersistent, Dir: filepath.Join(dir, "files")},
		{Kind: cachecore.KindSession},
		{Kind: cachecore.KindCookie, CookiePath: "/app"},
		{Kind: cachecore.KindDatabase, DSN: filepath.Join(dir, "cache.db")},
	}
	ctx := context.Background()
	for _, cfg := range cases {
		t.Run(string(cfg.Kind), func(t *testing.T) {
			storage, err := NewStorage(cfg)
			if err != nil {
				t.Fatalf("new storage: %v", err)
			}
			t.Cleanup(func() { _ = storage.Close() })
			if storage.Kind() != cfg.Kind {
				t.Fatalf("expected kind %q, got %q", cfg.Kind, storage.Kind())
			}
			if err := storage.Write(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, ok, err := storage.Read(ctx, "k")
			if err != nil || !ok || string(got) != "v" {
				t.Fatalf("read: ok=%v err=%v val=%q", ok, err, got)
			}
		})
	}
}

func TestNewStorageUnknownKind(t *testing.T) {
	if _, err := NewStorage(BackendConfig{Kind: "floppy"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestNewSerializer(t *testing.T) {
	cases := []struct {
		cfg  Config
		name string
	}{
		{Config{}, "json"},
		{Config{Serializer: "msgpack"}, "msgpack"},
		{Config{Serializer: "cbor"}, "cbor"},
		{Config{Serializer: "json", CompressAbove: 512}, "json+gzip"},
	}
	for _, tc := range cases {
		s, err := newSerializer(tc.cfg)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if s.Name() != tc.name {
			t.Fatalf("expected %q, got %q", tc.name, s.Name())
		}
	}
	if _, err := newSerializer(Config{Serializer: "gob"}); err == nil {
		t.Fatalf("expected unknown serializer error")
	}
}
