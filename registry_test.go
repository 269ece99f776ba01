package hybridcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/driver/memorycache"
	"github.com/goforj/hybridcache/eviction"
)

func TestBuildRegistryKeepsConfigOrder(t *testing.T) {
	kinds := []cachecore.Kind{cachecore.KindSession, cachecore.KindMemory, cachecore.KindCookie}
	specs := make([]backendSpec, len(kinds))
	for i, k := range kinds {
		specs[i] = backendSpec{cfg: BackendConfig{Kind: k}.withDefaults()}
	}
	boom := errors.New("boom")
	r := buildRegistry(context.Background(), specs, func(ctx context.Context, spec backendSpec) (Backend, error) {
		switch spec.cfg.Kind {
		case cachecore.KindCookie:
			return nil, boom
		case cachecore.KindSession:
			// finish last so completion order differs from config order
			time.Sleep(20 * time.Millisecond)
		}
		strategy, err := eviction.New(spec.cfg.Eviction)
		if err != nil {
			return nil, err
		}
		return NewBackend(ctx, BackendOptions{
			Kind:     spec.cfg.Kind,
			Storage:  memorycache.New(memorycache.Config{}),
			Strategy: strategy,
			MaxSize:  spec.cfg.MaxSize,
			MaxItems: spec.cfg.MaxItems,
		})
	})
	t.Cleanup(func() { _ = r.close() })

	got := r.kinds()
	if len(got) != 2 || got[0] != cachecore.KindSession || got[1] != cachecore.KindMemory {
		t.Fatalf("kinds = %v", got)
	}
	if !errors.Is(r.unavailable[cachecore.KindCookie], boom) {
		t.Fatalf("expected cookie unavailable with boom, got %v", r.unavailable)
	}
	if _, ok := r.get(cachecore.KindCookie); ok {
		t.Fatalf("unavailable kind should not resolve")
	}
	if _, ok := r.get(cachecore.KindMemory); !ok {
		t.Fatalf("memory should resolve")
	}
}
