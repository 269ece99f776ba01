package hybridcache

import (
	"context"
	"errors"
)

// GetAs reads key into a fresh T.
// @group Reads
//
// Example: typed read
//
//	name, ok, err := hybridcache.GetAs[string](ctx, c, "user:42:name")
//	fmt.Println(name, ok, err) // Ada true <nil>
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var out T
	ok, err := c.Get(ctx, key, &out)
	if err != nil || !ok {
		var zero T
		return zero, ok, err
	}
	return out, true, nil
}

// Remember returns the cached value for key, or computes it with fn and
// stores the result.
// @group Reads
//
// Example: remember a computed struct
//
//	type Settings struct{ Enabled bool }
//	s, err := hybridcache.Remember(ctx, c, "settings", func(context.Context) (Settings, error) {
//		return Settings{Enabled: true}, nil
//	}, hybridcache.WithTTL(time.Minute))
//	fmt.Println(err == nil, s.Enabled) // true true
func Remember[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error), opts ...SetOption) (T, error) {
	var zero T
	v, ok, err := GetAs[T](ctx, c, key)
	if err != nil {
		return zero, err
	}
	if ok {
		return v, nil
	}
	if fn == nil {
		return zero, errors.New("cache remember requires a callback")
	}
	v, err = fn(ctx)
	if err != nil {
		return zero, err
	}
	if err := c.Set(ctx, key, v, opts...); err != nil {
		return zero, err
	}
	return v, nil
}
