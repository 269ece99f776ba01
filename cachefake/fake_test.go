package cachefake

import (
	"context"
	"testing"
	"time"

	"github.com/goforj/hybridcache"
)

func TestFakeRecordsEvents(t *testing.T) {
	ctx := context.Background()
	f := New(t)
	c := f.Cache()

	if err := c.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	var v string
	if ok, err := c.Get(ctx, "a", &v); err != nil || !ok || v != "1" {
		t.Fatalf("get: ok=%v err=%v v=%q", ok, err, v)
	}
	if ok, _ := c.Get(ctx, "missing", &v); ok {
		t.Fatalf("expected miss")
	}
	if err := c.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	r := f.Recorder()
	r.AssertCalled(t, hybridcache.EventSet, "a", 1)
	r.AssertCalled(t, hybridcache.EventGet, "a", 1)
	r.AssertCalled(t, hybridcache.EventRemove, "a", 1)
	r.AssertNotCalled(t, hybridcache.EventSet, "missing")
	r.AssertTotal(t, hybridcache.EventGet, 2)

	last, ok := r.Last(hybridcache.EventGet)
	if !ok || last.Key != "missing" || last.Hit {
		t.Fatalf("unexpected last get %+v", last)
	}
	r.WaitFor(t, hybridcache.EventRemove, "a", time.Second)

	r.Reset()
	r.AssertTotal(t, hybridcache.EventSet, 0)
}

func TestFakeCountsStorageCalls(t *testing.T) {
	ctx := context.Background()
	f := New(t)
	c := f.Cache()

	_ = c.Set(ctx, "k", 1)
	_ = c.Set(ctx, "k", 2)
	if got := f.Storage().Count(OpWrite, "k"); got != 2 {
		t.Fatalf("expected 2 writes, got %d", got)
	}
	if _, err := c.Get(ctx, "k", new(int)); err != nil {
		t.Fatalf("get: %v", err)
	}
	// a hit reads the record and rewrites it with refreshed metadata
	if got := f.Storage().Count(OpRead, "k"); got != 1 {
		t.Fatalf("expected 1 read, got %d", got)
	}
	if got := f.Storage().Total(OpWrite); got != 3 {
		t.Fatalf("expected 3 writes after hit, got %d", got)
	}
	f.Storage().Reset()
	if got := f.Storage().Total(OpWrite); got != 0 {
		t.Fatalf("expected reset counts, got %d", got)
	}
}
