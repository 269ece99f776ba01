// Package hybridcache is a client-side cache that spreads records over
// several storage backends (memory, persistent files, a sharded session
// store, cookies and SQL databases).
//
// Writes are routed by a selector that scores each backend against the
// payload's size, lifetime and data type, unless the caller names a backend
// with OnBackend. Reads walk backends in priority order. Each backend keeps
// its own byte and item bounds and evicts with a pluggable strategy from the
// eviction package.
//
// Instances can share mutations over a transport (an in-process hub, NATS
// core, a NATS KeyValue bucket or Redis pub/sub) through the SyncChannel.
//
//	c, err := hybridcache.New(ctx, hybridcache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	_ = c.Set(ctx, "user:42", user, hybridcache.WithTTL(time.Hour))
//	u, ok, err := hybridcache.GetAs[User](ctx, c, "user:42")
package hybridcache
