package hybridcache

import (
	"context"
	"errors"
	"sync"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/eviction"
)

// registry is built once. Availability is data: failed kinds are recorded in
// unavailable and never appear in backends.
type registry struct {
	backends    []Backend
	byKind      map[cachecore.Kind]Backend
	unavailable map[cachecore.Kind]error
}

type backendSpec struct {
	cfg      BackendConfig
	storage  cachecore.Storage
	strategy eviction.Strategy
}

// buildRegistry initialises every backend concurrently. Priority follows
// configuration order regardless of completion order.
func buildRegistry(ctx context.Context, specs []backendSpec, build func(context.Context, backendSpec) (Backend, error)) *registry {
	results := make([]Backend, len(specs))
	errs := make([]error, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec backendSpec) {
			defer wg.Done()
			results[i], errs[i] = build(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	r := &registry{
		byKind:      make(map[cachecore.Kind]Backend, len(specs)),
		unavailable: make(map[cachecore.Kind]error),
	}
	for i, spec := range specs {
		if errs[i] != nil || results[i] == nil {
			err := errs[i]
			if err == nil {
				err = ErrBackendUnavailable
			}
			r.unavailable[spec.cfg.Kind] = err
			continue
		}
		r.backends = append(r.backends, results[i])
		r.byKind[spec.cfg.Kind] = results[i]
	}
	return r
}

func (r *registry) get(kind cachecore.Kind) (Backend, bool) {
	b, ok := r.byKind[kind]
	if !ok || !b.Available() {
		return nil, false
	}
	return b, true
}

func (r *registry) live() []Backend {
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.Available() {
			out = append(out, b)
		}
	}
	return out
}

func (r *registry) kinds() []cachecore.Kind {
	out := make([]cachecore.Kind, 0, len(r.backends))
	for _, b := range r.live() {
		out = append(out, b.Kind())
	}
	return out
}

func (r *registry) close() error {
	var errs []error
	for _, b := range r.backends {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}
