package hybridcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/driver/memorycache"
	"github.com/goforj/hybridcache/eviction"
)

func newMemoryBackend(t *testing.T, opts BackendOptions) *managedBackend {
	t.Helper()
	if opts.Storage == nil {
		opts.Storage = memorycache.New(memorycache.Config{})
	}
	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b.(*managedBackend)
}

func record(value string, ttl time.Duration, now time.Time) cachecore.Record {
	return cachecore.NewRecord([]byte(value), cachecore.DataScalar, ttl, now)
}

func TestBackendLRUEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	strategy, _ := eviction.New(eviction.LRU)
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, MaxItems: 2, Strategy: strategy, Now: clock.Now})

	_ = b.SetItem(ctx, "a", record("1", 0, clock.Now()))
	_ = b.SetItem(ctx, "b", record("2", 0, clock.Now()))
	if _, ok, err := b.GetItem(ctx, "a"); err != nil || !ok {
		t.Fatalf("get a: ok=%v err=%v", ok, err)
	}
	if err := b.SetItem(ctx, "c", record("3", 0, clock.Now())); err != nil {
		t.Fatalf("set c: %v", err)
	}

	keys, _ := b.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"a", "c"}) {
		t.Fatalf("expected [a c], got %v", keys)
	}
	if st := b.Stats(); st.Evictions != 1 || st.Items != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func storedCost(t *testing.T, b *managedBackend) int64 {
	t.Helper()
	keys, err := b.storage.Keys(context.Background())
	if err != nil {
		t.Fatalf("storage keys: %v", err)
	}
	var total int64
	for _, k := range keys {
		raw, _, _ := b.storage.Read(context.Background(), k)
		total += int64(len(k) + len(raw))
	}
	return total
}

func TestBackendUsedSizeStaysWithinLimit(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, MaxSize: 2048, Now: clock.Now})

	for i := 0; i < 40; i++ {
		clock.Advance(time.Millisecond)
		key := string(rune('a'+i%26)) + string(rune('a'+i/26))
		if err := b.SetItem(ctx, key, record(string(bytes.Repeat([]byte("x"), 10+i*3)), 0, clock.Now())); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
		if used := b.UsedSize(); used > 2048 {
			t.Fatalf("used %d exceeds max size", used)
		}
		if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
			t.Fatalf("incremental used size %d drifted from stored %d", used, actual)
		}
	}
	if _, _, err := b.GetItem(ctx, "ab"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
		t.Fatalf("used size %d drifted after access rewrite, stored %d", used, actual)
	}
	if err := b.RemoveItem(ctx, "ab"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
		t.Fatalf("used size %d drifted after remove, stored %d", used, actual)
	}
}

func TestBackendRejectsValueLargerThanBackend(t *testing.T) {
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, MaxSize: 64})
	err := b.SetItem(context.Background(), "k", record(string(bytes.Repeat([]byte("x"), 200)), 0, time.Now()))
	if !errors.Is(err, cachecore.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
	if b.Length() != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestBackendOversizedWriteCannotEmptyBackend(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, MaxSize: 4000, Now: clock.Now})

	small := string(bytes.Repeat([]byte("s"), 100))
	for i := 0; i < 10; i++ {
		clock.Advance(time.Millisecond)
		if err := b.SetItem(ctx, string(rune('a'+i)), record(small, 0, clock.Now())); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if b.Length() != 10 {
		t.Fatalf("expected 10 items, got %d", b.Length())
	}

	big := string(bytes.Repeat([]byte("B"), 2200))
	err := b.SetItem(ctx, "big", record(big, 0, clock.Now()))
	if !errors.Is(err, cachecore.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	// three strategy victims (30%) then three oldest (half of seven) are not
	// enough, so nothing is evicted
	if got := b.Length(); got != 10 {
		t.Fatalf("expected all 10 records kept, got %d", got)
	}
	if st := b.Stats(); st.Evictions != 0 {
		t.Fatalf("refused write must not evict, got %d", st.Evictions)
	}
	if _, ok, _ := b.Peek(ctx, "big"); ok {
		t.Fatalf("failed write must not be stored")
	}
}

type flakyWrites struct {
	cachecore.Storage
	fail func(key string) error
}

func (f flakyWrites) Write(ctx context.Context, key string, raw []byte) error {
	if err := f.fail(key); err != nil {
		return err
	}
	return f.Storage.Write(ctx, key, raw)
}

func TestBackendFailedWriteKeepsExistingRecords(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	strategy, _ := eviction.New(eviction.LRU)
	storage := flakyWrites{Storage: memorycache.New(memorycache.Config{}), fail: func(key string) error {
		if key == "c" {
			return errors.New("io")
		}
		return nil
	}}
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Storage: storage, Strategy: strategy, MaxItems: 2, Now: clock.Now})

	_ = b.SetItem(ctx, "a", record("1", 0, clock.Now()))
	_ = b.SetItem(ctx, "b", record("2", 0, clock.Now()))
	if err := b.SetItem(ctx, "c", record("3", 0, clock.Now())); err == nil {
		t.Fatalf("expected write error")
	}

	keys, _ := b.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Fatalf("expected [a b] after failed set, got %v", keys)
	}
	for _, k := range keys {
		if _, ok, _ := b.storage.Read(ctx, k); !ok {
			t.Fatalf("%s should still be stored", k)
		}
	}
	if st := b.Stats(); st.Evictions != 0 {
		t.Fatalf("unexpected evictions %d", st.Evictions)
	}
	if victim, _ := strategy.EvictionKey(); victim != "a" && victim != "b" {
		t.Fatalf("strategy lost its keys, victim %q", victim)
	}
	if err := b.SetItem(ctx, "d", record("4", 0, clock.Now())); err != nil {
		t.Fatalf("set d: %v", err)
	}
	if b.Length() != 2 {
		t.Fatalf("expected 2 items, got %d", b.Length())
	}
}

func TestBackendEvictsFirstWhenStorageIsFull(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	strategy, _ := eviction.New(eviction.LRU)
	inner := memorycache.New(memorycache.Config{})
	storage := flakyWrites{Storage: inner, fail: func(key string) error {
		keys, _ := inner.Keys(ctx)
		if _, ok, _ := inner.Read(ctx, key); !ok && len(keys) >= 2 {
			return cachecore.ErrCapacityExceeded
		}
		return nil
	}}
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Storage: storage, Strategy: strategy, MaxItems: 2, Now: clock.Now})

	_ = b.SetItem(ctx, "a", record("1", 0, clock.Now()))
	_ = b.SetItem(ctx, "b", record("2", 0, clock.Now()))
	if err := b.SetItem(ctx, "c", record("3", 0, clock.Now())); err != nil {
		t.Fatalf("set c: %v", err)
	}
	keys, _ := b.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"b", "c"}) {
		t.Fatalf("expected [b c], got %v", keys)
	}
}

func TestBackendSeedTrimsToBounds(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	storage := memorycache.New(memorycache.Config{})
	for i := 0; i < 20; i++ {
		raw, _ := cachecore.EncodeRecord(record("v", 0, clock.Now().Add(time.Duration(i)*time.Millisecond)))
		_ = storage.Write(ctx, fmt.Sprintf("k%02d", i), raw)
	}

	strategy, _ := eviction.New(eviction.FIFO)
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Storage: storage, Strategy: strategy, MaxItems: 5, Now: clock.Now})

	keys, _ := b.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"k15", "k16", "k17", "k18", "k19"}) {
		t.Fatalf("expected the five newest records, got %v", keys)
	}
	if stored, _ := storage.Keys(ctx); len(stored) != 5 {
		t.Fatalf("storage should hold 5 records, got %d", len(stored))
	}
	if err := b.SetItem(ctx, "new", record("n", 0, clock.Now().Add(time.Second))); err != nil {
		t.Fatalf("set after seed: %v", err)
	}
	if b.Length() != 5 {
		t.Fatalf("expected 5 items, got %d", b.Length())
	}
	if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
		t.Fatalf("used size %d != stored %d", used, actual)
	}
}

func TestBackendCleanupTrimsForeignRecords(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, MaxItems: 3, Now: clock.Now})

	for i := 0; i < 6; i++ {
		raw, _ := cachecore.EncodeRecord(record("v", 0, clock.Now().Add(time.Duration(i)*time.Millisecond)))
		_ = b.storage.Write(ctx, fmt.Sprintf("k%d", i), raw)
	}
	if _, err := b.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if b.Length() != 3 {
		t.Fatalf("expected 3 items after cleanup, got %d", b.Length())
	}
	if stored, _ := b.storage.Keys(ctx); len(stored) != 3 {
		t.Fatalf("storage should hold 3 records, got %d", len(stored))
	}
}

func TestBackendAccessMetadataStaysWithinMaxSize(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	rec := record("x", 0, clock.Now())
	stamped := rec
	stamped.Metadata.Backend = cachecore.KindMemory
	raw, _ := cachecore.EncodeRecord(stamped)
	limit := int64(len("a") + len(raw))

	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, MaxSize: limit, Now: clock.Now})
	if err := b.SetItem(ctx, "a", rec); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 12; i++ {
		clock.Advance(time.Millisecond)
		if _, ok, err := b.GetItem(ctx, "a"); err != nil || !ok {
			t.Fatalf("get %d: ok=%v err=%v", i, ok, err)
		}
	}
	if used := b.UsedSize(); used > limit {
		t.Fatalf("used %d exceeds max size %d", used, limit)
	}
	if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
		t.Fatalf("used size %d != stored %d", used, actual)
	}
	if st := b.Stats(); st.Hits != 12 || st.Eviction.Accesses != 12 {
		t.Fatalf("reads should still count, got %+v", st)
	}
}

func TestBackendSweepsExpiredBeforeEvicting(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	var expired []string
	b := newMemoryBackend(t, BackendOptions{
		Kind:      cachecore.KindMemory,
		MaxItems:  2,
		Now:       clock.Now,
		OnExpired: func(key string, _ cachecore.Record) { expired = append(expired, key) },
	})

	_ = b.SetItem(ctx, "short", record("1", 10*time.Millisecond, clock.Now()))
	_ = b.SetItem(ctx, "long", record("2", 0, clock.Now()))
	clock.Advance(20 * time.Millisecond)
	if err := b.SetItem(ctx, "new", record("3", 0, clock.Now())); err != nil {
		t.Fatalf("set: %v", err)
	}

	keys, _ := b.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"long", "new"}) {
		t.Fatalf("expected expired entry to make room, got %v", keys)
	}
	if !reflect.DeepEqual(expired, []string{"short"}) {
		t.Fatalf("expected expiry hook for short, got %v", expired)
	}
	if st := b.Stats(); st.Evictions != 0 || st.Expired != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestBackendExpiredReadDeletesRecord(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	var hooked int
	b := newMemoryBackend(t, BackendOptions{
		Kind:      cachecore.KindMemory,
		Now:       clock.Now,
		OnExpired: func(string, cachecore.Record) { hooked++ },
	})

	_ = b.SetItem(ctx, "a", record("x", 50*time.Millisecond, clock.Now()))
	clock.Advance(60 * time.Millisecond)

	if _, ok, err := b.GetItem(ctx, "a"); err != nil || ok {
		t.Fatalf("expected expired miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := b.storage.Read(ctx, "a"); ok {
		t.Fatalf("expired record should be deleted from storage")
	}
	if hooked != 1 || b.Length() != 0 || b.UsedSize() != 0 {
		t.Fatalf("unexpected state hooked=%d len=%d used=%d", hooked, b.Length(), b.UsedSize())
	}
}

func TestBackendHitRefreshesMetadata(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Now: clock.Now})

	_ = b.SetItem(ctx, "a", record("x", 0, clock.Now()))
	clock.Advance(time.Second)
	rec, ok, err := b.GetItem(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if rec.Metadata.AccessCount != 1 || rec.Metadata.LastAccessedAt != clock.Now().UnixMilli() {
		t.Fatalf("metadata not refreshed: %+v", rec.Metadata)
	}
	stored, ok, _ := b.Peek(ctx, "a")
	if !ok || stored.Metadata.AccessCount != 1 {
		t.Fatalf("refreshed metadata not persisted: %+v", stored.Metadata)
	}
	if stored.Metadata.Backend != cachecore.KindMemory {
		t.Fatalf("backend not stamped: %q", stored.Metadata.Backend)
	}
}

func TestBackendCorruptRecordSelfHeals(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory})

	if err := b.storage.Write(ctx, "bad", []byte("not a record")); err != nil {
		t.Fatalf("raw write: %v", err)
	}
	if _, ok, err := b.GetItem(ctx, "bad"); err != nil || ok {
		t.Fatalf("expected absent, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := b.storage.Read(ctx, "bad"); ok {
		t.Fatalf("corrupt record should be deleted")
	}
}

func TestBackendSeedsFromStorage(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	storage := memorycache.New(memorycache.Config{})

	put := func(key string, rec cachecore.Record) {
		raw, _ := cachecore.EncodeRecord(rec)
		_ = storage.Write(ctx, key, raw)
	}
	put("old", record("1", 0, clock.Now().Add(-time.Hour)))
	put("gone", record("2", time.Millisecond, clock.Now().Add(-time.Minute)))
	put("new", record("3", 0, clock.Now()))
	_ = storage.Write(ctx, "junk", []byte("{"))

	strategy, _ := eviction.New(eviction.FIFO)
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Storage: storage, Strategy: strategy, Now: clock.Now})

	if b.Length() != 2 {
		t.Fatalf("expected 2 live records, got %d", b.Length())
	}
	for _, k := range []string{"gone", "junk"} {
		if _, ok, _ := storage.Read(ctx, k); ok {
			t.Fatalf("%s should be deleted while seeding", k)
		}
	}
	if victim, _ := strategy.EvictionKey(); victim != "old" {
		t.Fatalf("expected oldest seeded record first in fifo, got %q", victim)
	}
	if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
		t.Fatalf("seeded used size %d != stored %d", used, actual)
	}
}

func TestBackendCleanupResyncsWithStorage(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Now: clock.Now})

	_ = b.SetItem(ctx, "mine", record("1", 0, clock.Now()))
	_ = b.SetItem(ctx, "soon", record("2", 5*time.Millisecond, clock.Now()))

	raw, _ := cachecore.EncodeRecord(record("3", 0, clock.Now()))
	_ = b.storage.Write(ctx, "theirs", raw)
	_ = b.storage.Delete(ctx, "mine")
	clock.Advance(10 * time.Millisecond)

	n, err := b.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expired removal, got %d", n)
	}
	keys, _ := b.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"theirs"}) {
		t.Fatalf("expected index to match storage, got %v", keys)
	}
	if used, actual := b.UsedSize(), storedCost(t, b); used != actual {
		t.Fatalf("used size %d != stored %d after resync", used, actual)
	}
}

func TestBackendClearResetsEverything(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory})
	_ = b.SetItem(ctx, "a", record("1", 0, time.Now()))
	_ = b.SetItem(ctx, "b", record("2", 0, time.Now()))

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if b.Length() != 0 || b.UsedSize() != 0 || b.Stats().Eviction.Tracked != 0 {
		t.Fatalf("clear left state behind: %+v", b.Stats())
	}
}

type failingProbe struct{ cachecore.Storage }

func (failingProbe) Probe(context.Context) error { return errors.New("no disk") }

func TestNewBackendFailsWhenProbeFails(t *testing.T) {
	_, err := NewBackend(context.Background(), BackendOptions{
		Kind:    cachecore.KindPersistent,
		Storage: failingProbe{memorycache.New(memorycache.Config{})},
	})
	if err == nil {
		t.Fatalf("expected probe failure")
	}
}

func TestBackendRecordMissFeedsARC(t *testing.T) {
	strategy, _ := eviction.New(eviction.ARC)
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, Strategy: strategy})
	b.RecordMiss("nope")
	st := b.Stats()
	if st.Misses != 1 || st.Eviction.Misses != 1 {
		t.Fatalf("expected miss recorded by backend and strategy, got %+v", st)
	}
	if st.HitRate != 0 {
		t.Fatalf("expected zero hit rate, got %v", st.HitRate)
	}
}

func TestBackendCloseIsIdempotent(t *testing.T) {
	b := newMemoryBackend(t, BackendOptions{Kind: cachecore.KindMemory, CleanupInterval: time.Millisecond})
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if b.Available() {
		t.Fatalf("closed backend should not be available")
	}
}
