package cachetest

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goforj/hybridcache/cachecore"
)

// Options configures shared storage contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// SkipCloneCheck disables the "read returns an independent copy" assertion.
	SkipCloneCheck bool
	// SkipFlush disables the flush assertion for drivers where it is expensive or unavailable.
	SkipFlush bool
	// LargeValueBytes sizes the large-value round trip. Defaults to 64 KiB;
	// negative disables it for size-capped drivers.
	LargeValueBytes int
}

// Storage is the minimal contract required by RunStorageContract.
type Storage = cachecore.Storage

// RunStorageContract runs a backend-agnostic storage contract suite.
func RunStorageContract(t *testing.T, storage Storage, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	if !storage.Kind().Valid() {
		t.Fatalf("storage reports unknown kind %q", storage.Kind())
	}

	// Missing keys are a clean miss.
	if body, ok, err := storage.Read(ctx, key("missing")); err != nil || ok || body != nil {
		t.Fatalf("expected clean miss, got ok=%v body=%q err=%v", ok, body, err)
	}

	// Exact byte round trip, including a record envelope.
	rec := cachecore.NewRecord([]byte{0, 1, 2, 0xff, '"', '\\'}, cachecore.DataBinary, time.Minute, time.Now())
	raw, err := cachecore.EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if err := storage.Write(ctx, key("alpha"), raw); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	body, ok, err := storage.Read(ctx, key("alpha"))
	if err != nil || !ok || !bytes.Equal(body, raw) {
		t.Fatalf("unexpected read: ok=%v err=%v equal=%v", ok, err, bytes.Equal(body, raw))
	}
	if got, err := cachecore.DecodeRecord(body); err != nil || !bytes.Equal(got.Value, rec.Value) {
		t.Fatalf("record did not survive storage: %v", err)
	}
	if !opts.SkipCloneCheck {
		body[0] = 'X'
		again, ok, err := storage.Read(ctx, key("alpha"))
		if err != nil || !ok || !bytes.Equal(again, raw) {
			t.Fatalf("expected stored value unchanged after caller mutation, ok=%v err=%v", ok, err)
		}
	}

	// Overwrite.
	if err := storage.Write(ctx, key("alpha"), []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if body, ok, err := storage.Read(ctx, key("alpha")); err != nil || !ok || string(body) != "second" {
		t.Fatalf("unexpected overwrite read: ok=%v body=%q err=%v", ok, body, err)
	}

	// Large values.
	size := opts.LargeValueBytes
	if size == 0 {
		size = 64 * 1024
	}
	if size > 0 {
		big := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
		if err := storage.Write(ctx, key("big"), big); err != nil {
			t.Fatalf("large write failed: %v", err)
		}
		if body, ok, err := storage.Read(ctx, key("big")); err != nil || !ok || !bytes.Equal(body, big) {
			t.Fatalf("large read mismatch: ok=%v err=%v", ok, err)
		}
		if err := storage.Delete(ctx, key("big")); err != nil {
			t.Fatalf("delete big failed: %v", err)
		}
	}

	// Keys lists what was written.
	if err := storage.Write(ctx, key("beta"), []byte("b")); err != nil {
		t.Fatalf("write beta failed: %v", err)
	}
	keys, err := storage.Keys(ctx)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	for _, want := range []string{key("alpha"), key("beta")} {
		if !slices.Contains(keys, want) {
			t.Fatalf("expected keys to contain %q, got %v", want, keys)
		}
	}

	// Delete, including absent keys.
	if err := storage.Delete(ctx, key("alpha")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := storage.Delete(ctx, key("never-written")); err != nil {
		t.Fatalf("delete of absent key failed: %v", err)
	}
	if _, ok, err := storage.Read(ctx, key("alpha")); err != nil || ok {
		t.Fatalf("expected alpha deleted; ok=%v err=%v", ok, err)
	}
	keys, err = storage.Keys(ctx)
	if err != nil {
		t.Fatalf("keys after delete failed: %v", err)
	}
	if slices.Contains(keys, key("alpha")) {
		t.Fatalf("deleted key still listed: %v", keys)
	}

	// Flush.
	if !opts.SkipFlush {
		if err := storage.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := storage.Read(ctx, key("beta")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
		keys, err := storage.Keys(ctx)
		if err != nil {
			t.Fatalf("keys after flush failed: %v", err)
		}
		if slices.Contains(keys, key("beta")) {
			t.Fatalf("flushed key still listed: %v", keys)
		}
	}
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
