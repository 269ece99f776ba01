package hybridcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/codec"
	"github.com/goforj/hybridcache/eviction"
	"github.com/goforj/hybridcache/selector"
)

// Cache routes writes to the best-fit backend and reads across all backends
// in priority order.
type Cache struct {
	cfg        Config
	reg        *registry
	serializer codec.Serializer
	security   Security
	keys       keyMapper
	logger     Logger
	now        func() time.Time
	bus        eventBus
	sync       *SyncChannel

	hits   atomic.Uint64
	misses atomic.Uint64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New builds every configured backend (concurrently, blocking until each has
// initialised or failed), then starts cleanup timers and the sync channel.
// Backends that fail are excluded and reported by Unavailable.
// @group Constructors
//
// Example: memory and persistent backends
//
//	ctx := context.Background()
//	c, err := hybridcache.New(ctx, hybridcache.Config{
//		Backends: []hybridcache.BackendConfig{
//			{Kind: cachecore.KindMemory, MaxItems: 500},
//			{Kind: cachecore.KindPersistent, Dir: "/var/cache/app"},
//		},
//		Strategy: hybridcache.StrategyConfig{Enabled: true},
//	})
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
func New(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			st = opt(st)
		}
	}
	sz := st.serializer
	if sz == nil {
		var err error
		if sz, err = newSerializer(cfg); err != nil {
			return nil, err
		}
	}

	c := &Cache{
		cfg:        cfg,
		serializer: sz,
		security:   st.security,
		keys:       keyMapper{prefix: cfg.KeyPrefix, transform: st.keys},
		logger:     st.logger,
		now:        st.now,
		stopCh:     make(chan struct{}),
	}
	for _, o := range st.observers {
		c.bus.subscribe(o)
	}

	specs := make([]backendSpec, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		specs = append(specs, backendSpec{cfg: bc, storage: st.storages[bc.Kind], strategy: st.strategies[bc.Kind]})
	}
	c.reg = buildRegistry(ctx, specs, func(ctx context.Context, spec backendSpec) (Backend, error) {
		return c.buildBackend(ctx, spec, st.evictionOpts)
	})
	for kind, err := range c.reg.unavailable {
		c.logger.Warn("cache backend unavailable", Fields{"backend": kind, "error": err})
	}

	if cfg.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cfg.CleanupInterval)
	}

	if cfg.Sync.Enabled || st.transport != nil || st.fallback != nil {
		ch, err := newSyncChannel(c, cfg.Sync, st.transport, st.fallback)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.sync = ch
		ch.start(ctx)
	}
	return c, nil
}

func (c *Cache) buildBackend(ctx context.Context, spec backendSpec, evOpts []eviction.Option) (Backend, error) {
	storage := spec.storage
	if storage == nil {
		var err error
		if storage, err = NewStorage(spec.cfg); err != nil {
			return nil, err
		}
	}
	strategy := spec.strategy
	if strategy == nil {
		var err error
		opts := append([]eviction.Option{eviction.WithClock(c.now)}, evOpts...)
		if strategy, err = eviction.New(spec.cfg.Eviction, opts...); err != nil {
			_ = storage.Close()
			return nil, err
		}
	}
	b, err := NewBackend(ctx, BackendOptions{
		Kind:            spec.cfg.Kind,
		Storage:         storage,
		Strategy:        strategy,
		MaxSize:         spec.cfg.MaxSize,
		MaxItems:        spec.cfg.MaxItems,
		CleanupInterval: spec.cfg.CleanupInterval,
		Logger:          c.logger,
		Now:             c.now,
		OnExpired: func(key string, rec cachecore.Record) {
			c.onExpired(spec.cfg.Kind, key, rec)
		},
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return b, nil
}

func (c *Cache) onExpired(kind cachecore.Kind, physical string, rec cachecore.Record) {
	key, ok := c.keys.logical(physical)
	if !ok {
		return
	}
	c.emit(context.Background(), Event{Type: EventExpired, Key: key, Backend: kind, Record: &rec})
}

// SetOption customises a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl     time.Duration
	backend cachecore.Kind
}

// WithTTL sets the entry lifetime. Zero means no expiry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// OnBackend bypasses selection and writes to kind.
func OnBackend(kind cachecore.Kind) SetOption {
	return func(o *setOptions) { o.backend = kind }
}

// Set serializes value and writes it to one backend.
// @group Writes
//
// Example: let the selector choose
//
//	_ = c.Set(ctx, "user:42", User{Name: "Ada"}, hybridcache.WithTTL(10*time.Minute))
//
// Example: pin a backend
//
//	_ = c.Set(ctx, "theme", "dark", hybridcache.OnBackend(cachecore.KindCookie))
func (c *Cache) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	if c.closed.Load() {
		return ErrClosed
	}
	start := c.now()
	so := setOptions{ttl: c.cfg.DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}

	payload, err := c.serializer.Encode(value)
	if err != nil {
		err = serializationErr("encode", err)
		c.emitError(ctx, "set", key, "", err, start)
		return err
	}
	encrypted := false
	if c.security.Enabled() {
		if payload, err = c.security.Encrypt(payload); err != nil {
			err = serializationErr("encrypt", err)
			c.emitError(ctx, "set", key, "", err, start)
			return err
		}
		encrypted = true
	}

	dt := selector.Classify(value)
	b, sel, err := c.resolve(so.backend, selector.Input{Key: key, Size: len(payload), DataType: dt, TTL: so.ttl})
	if err != nil {
		c.emitError(ctx, "set", key, so.backend, err, start)
		return err
	}

	rec := cachecore.NewRecord(payload, dt, so.ttl, c.now())
	rec.Metadata.Encrypted = encrypted
	rec.Metadata.Backend = b.Kind()
	if err := b.SetItem(ctx, c.keys.physical(key), rec); err != nil {
		err = backendErr(b.Kind(), "set", key, err)
		c.emitError(ctx, "set", key, b.Kind(), err, start)
		return err
	}
	if sel != nil {
		c.emit(ctx, Event{Type: EventStrategy, Key: key, Backend: b.Kind(), Selection: sel})
	}
	if c.cfg.Debug {
		c.logger.Debug("cache set", Fields{"key": key, "backend": b.Kind(), "size": len(payload)})
	}
	c.emit(ctx, Event{Type: EventSet, Key: key, Backend: b.Kind(), Record: &rec, Duration: c.now().Sub(start)})
	return nil
}

// resolve picks the write target: explicit backend, then the selector when
// enabled, then the default backend, then the first live one.
func (c *Cache) resolve(explicit cachecore.Kind, in selector.Input) (Backend, *selector.Result, error) {
	if explicit != "" {
		b, ok := c.reg.get(explicit)
		if !ok {
			return nil, nil, &BackendError{Kind: explicit, Op: "set", Key: in.Key, Err: ErrBackendUnavailable}
		}
		return b, nil, nil
	}
	live := c.reg.kinds()
	if len(live) == 0 {
		return nil, nil, ErrBackendUnavailable
	}
	if c.cfg.Strategy.Enabled {
		res := selector.Select(selector.Config{
			Priority: c.cfg.priority(),
			Size:     c.cfg.Strategy.SizeThresholds,
			TTL:      c.cfg.Strategy.TTLThresholds,
		}, live, in)
		if b, ok := c.reg.get(res.Backend); ok {
			return b, &res, nil
		}
	}
	if b, ok := c.reg.get(c.cfg.DefaultBackend); ok {
		return b, nil, nil
	}
	b, _ := c.reg.get(live[0])
	return b, nil, nil
}

// Get decodes the first live record for key into dst, probing backends in
// priority order. A failing backend is skipped; the error is returned only
// when every backend failed.
// @group Reads
//
// Example: read into a struct
//
//	var u User
//	ok, err := c.Get(ctx, "user:42", &u)
//	fmt.Println(ok, err, u.Name) // true <nil> Ada
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	start := c.now()
	rec, kind, ok, err := c.lookup(ctx, key)
	if err != nil || !ok {
		if err == nil {
			c.misses.Add(1)
		}
		c.emit(ctx, Event{Type: EventGet, Key: key, Err: err, Duration: c.now().Sub(start)})
		return false, err
	}
	if err := c.decode(rec, dst); err != nil {
		c.emitError(ctx, "get", key, kind, err, start)
		return false, err
	}
	c.hits.Add(1)
	c.emit(ctx, Event{Type: EventGet, Key: key, Backend: kind, Hit: true, Record: &rec, Duration: c.now().Sub(start)})
	return true, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (cachecore.Record, cachecore.Kind, bool, error) {
	physical := c.keys.physical(key)
	live := c.reg.live()
	if len(live) == 0 {
		return cachecore.Record{}, "", false, ErrBackendUnavailable
	}
	var lastErr error
	failures := 0
	for _, b := range live {
		rec, ok, err := b.GetItem(ctx, physical)
		if err != nil {
			failures++
			lastErr = backendErr(b.Kind(), "get", key, err)
			c.logger.Warn("cache backend read failed", Fields{"backend": b.Kind(), "key": key, "error": err})
			c.emit(ctx, Event{Type: EventError, Op: "get", Key: key, Backend: b.Kind(), Err: lastErr})
			continue
		}
		if ok {
			return rec, b.Kind(), true, nil
		}
	}
	if failures == len(live) {
		return cachecore.Record{}, "", false, lastErr
	}
	for _, b := range live {
		b.RecordMiss(physical)
	}
	return cachecore.Record{}, "", false, nil
}

func (c *Cache) decode(rec cachecore.Record, dst any) error {
	payload := rec.Value
	if rec.Metadata.Encrypted {
		var err error
		if payload, err = c.security.Decrypt(payload); err != nil {
			return serializationErr("decrypt", err)
		}
	}
	if dst == nil {
		return nil
	}
	if err := c.serializer.Decode(payload, dst); err != nil {
		return serializationErr("decode", err)
	}
	return nil
}

// Has reports whether any backend holds a live record for key. It does not
// count as an access.
func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	physical := c.keys.physical(key)
	var lastErr error
	live := c.reg.live()
	failures := 0
	for _, b := range live {
		_, ok, err := b.Peek(ctx, physical)
		if err != nil {
			failures++
			lastErr = backendErr(b.Kind(), "has", key, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	if failures > 0 && failures == len(live) {
		return false, lastErr
	}
	return false, nil
}

// Remove deletes key from every backend.
// @group Writes
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.remove(ctx, key, false)
}

func (c *Cache) remove(ctx context.Context, key string, remote bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	start := c.now()
	err := c.fanOut(ctx, "remove", key, c.targets(remote), func(b Backend) error {
		return b.RemoveItem(ctx, c.keys.physical(key))
	})
	c.emit(ctx, Event{Type: EventRemove, Key: key, Err: err, Remote: remote, Duration: c.now().Sub(start)})
	return err
}

// Clear empties every backend.
// @group Writes
func (c *Cache) Clear(ctx context.Context) error {
	return c.clear(ctx, false)
}

func (c *Cache) clear(ctx context.Context, remote bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	start := c.now()
	err := c.fanOut(ctx, "clear", "", c.targets(remote), func(b Backend) error {
		return b.Clear(ctx)
	})
	c.emit(ctx, Event{Type: EventClear, Err: err, Remote: remote, Duration: c.now().Sub(start)})
	return err
}

// targets returns every live backend for local calls and only the synced
// ones for replayed remote mutations.
func (c *Cache) targets(remote bool) []Backend {
	live := c.reg.live()
	if !remote {
		return live
	}
	out := live[:0:0]
	for _, b := range live {
		if c.cfg.synced(b.Kind()) {
			out = append(out, b)
		}
	}
	return out
}

// fanOut applies fn to each backend, logging failures. It fails only when
// every backend failed, returning the last error.
func (c *Cache) fanOut(ctx context.Context, op, key string, backends []Backend, fn func(Backend) error) error {
	var lastErr error
	failures := 0
	for _, b := range backends {
		if err := fn(b); err != nil {
			failures++
			lastErr = backendErr(b.Kind(), op, key, err)
			c.logger.Warn("cache backend "+op+" failed", Fields{"backend": b.Kind(), "key": key, "error": err})
			c.emit(ctx, Event{Type: EventError, Op: op, Key: key, Backend: b.Kind(), Err: lastErr})
		}
	}
	if failures > 0 && failures == len(backends) {
		return lastErr
	}
	return nil
}

// Keys lists logical keys across all backends, deduplicated and sorted.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	live := c.reg.live()
	var lastErr error
	failures := 0
	for _, b := range live {
		keys, err := b.Keys(ctx)
		if err != nil {
			failures++
			lastErr = backendErr(b.Kind(), "keys", "", err)
			continue
		}
		for _, k := range keys {
			if logical, ok := c.keys.logical(k); ok {
				seen[logical] = struct{}{}
			}
		}
	}
	if failures > 0 && failures == len(live) {
		return nil, lastErr
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Cleanup sweeps expired records from every backend and returns how many were removed.
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	total := 0
	live := c.reg.live()
	err := c.fanOut(ctx, "cleanup", "", live, func(b Backend) error {
		n, err := b.Cleanup(ctx)
		total += n
		return err
	})
	return total, err
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := c.Cleanup(context.Background()); err != nil {
				c.logger.Warn("cache cleanup failed", Fields{"error": err})
			} else if n > 0 && c.cfg.Debug {
				c.logger.Debug("cache cleanup", Fields{"expired": n})
			}
		case <-c.stopCh:
			return
		}
	}
}

// Backend returns the live backend of kind.
func (c *Cache) Backend(kind cachecore.Kind) (Backend, bool) {
	return c.reg.get(kind)
}

// Backends returns live backends in priority order.
func (c *Cache) Backends() []Backend {
	return c.reg.live()
}

// Unavailable reports backends that failed to initialise, by kind.
func (c *Cache) Unavailable() map[cachecore.Kind]error {
	out := make(map[cachecore.Kind]error, len(c.reg.unavailable))
	for k, v := range c.reg.unavailable {
		out[k] = v
	}
	return out
}

// Sync returns the sync channel, or nil when sync is not configured.
func (c *Cache) Sync() *SyncChannel { return c.sync }

// Subscribe registers o for cache events and returns a function that removes it.
func (c *Cache) Subscribe(o Observer) func() {
	return c.bus.subscribe(o)
}

func (c *Cache) emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = c.now()
	}
	c.bus.emit(ctx, ev)
}

func (c *Cache) emitError(ctx context.Context, op, key string, kind cachecore.Kind, err error, start time.Time) {
	c.logger.Warn("cache "+op+" failed", Fields{"key": key, "backend": kind, "error": err})
	c.emit(ctx, Event{Type: EventError, Op: op, Key: key, Backend: kind, Err: err, Duration: c.now().Sub(start)})
}

// Close stops timers and the sync channel, then closes every backend.
// It is safe to call more than once.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		c.wg.Wait()
		var errs []error
		if c.sync != nil {
			errs = append(errs, c.sync.Close())
		}
		if c.reg != nil {
			errs = append(errs, c.reg.close())
		}
		err = errors.Join(errs...)
	})
	return err
}
