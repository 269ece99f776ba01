package hybridcache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/eviction"
)

// evictionShare caps strategy evictions per write as a share of current items.
const evictionShare = 0.30

// Backend is a capacity-bounded record store: a physical storage plus TTL
// bookkeeping, incremental size accounting and an eviction strategy.
// Keys are physical keys.
type Backend interface {
	Kind() cachecore.Kind
	Available() bool
	SetItem(ctx context.Context, key string, rec cachecore.Record) error
	// GetItem returns a live record and refreshes its access metadata.
	GetItem(ctx context.Context, key string) (cachecore.Record, bool, error)
	// Peek returns a live record without touching it.
	Peek(ctx context.Context, key string) (cachecore.Record, bool, error)
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// Keys lists live physical keys.
	Keys(ctx context.Context) ([]string, error)
	Length() int
	// Cleanup resynchronises with the storage and deletes expired records.
	Cleanup(ctx context.Context) (int, error)
	UsedSize() int64
	MaxSize() int64
	MaxItems() int
	// RecordMiss counts a read that no backend could answer.
	RecordMiss(key string)
	Stats() BackendStats
	Storage() cachecore.Storage
	Close() error
}

// BackendStats is a point-in-time snapshot of one backend.
type BackendStats struct {
	Kind      cachecore.Kind `json:"kind"`
	Items     int            `json:"items"`
	UsedSize  int64          `json:"used_size"`
	MaxSize   int64          `json:"max_size"`
	MaxItems  int            `json:"max_items"`
	Hits      uint64         `json:"hits"`
	Misses    uint64         `json:"misses"`
	HitRate   float64        `json:"hit_rate"`
	Evictions uint64         `json:"evictions"`
	Expired   uint64         `json:"expired"`
	Eviction  eviction.Stats `json:"eviction"`
}

// BackendOptions configures NewBackend.
type BackendOptions struct {
	Kind     cachecore.Kind
	Storage  cachecore.Storage
	Strategy eviction.Strategy
	// MaxSize bounds the sum of key and record bytes; <= 0 is unbounded.
	MaxSize int64
	// MaxItems bounds the record count; <= 0 is unbounded.
	MaxItems int
	// CleanupInterval starts a background sweep when > 0.
	CleanupInterval time.Duration
	Logger          Logger
	Now             func() time.Time
	// OnExpired is called, outside the backend lock, for every record
	// deleted because it expired.
	OnExpired func(key string, rec cachecore.Record)
}

type entryInfo struct {
	size      int64
	createdAt int64
	expiresAt int64
}

type managedBackend struct {
	kind      cachecore.Kind
	storage   cachecore.Storage
	strategy  eviction.Strategy
	maxSize   int64
	maxItems  int
	logger    Logger
	now       func() time.Time
	onExpired func(string, cachecore.Record)
	available atomic.Bool

	mu    sync.Mutex
	index map[string]entryInfo
	used  int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type expiredRecord struct {
	key string
	rec cachecore.Record
}

// NewBackend probes the storage, seeds bookkeeping from what it already holds
// and starts the optional cleanup ticker. Expired and corrupt records found
// while seeding are deleted.
func NewBackend(ctx context.Context, opts BackendOptions) (Backend, error) {
	if opts.Storage == nil {
		return nil, errors.New("cache: backend storage is required")
	}
	if opts.Kind == "" {
		opts.Kind = opts.Storage.Kind()
	}
	if opts.Strategy == nil {
		s, err := eviction.New(defaultEviction)
		if err != nil {
			return nil, err
		}
		opts.Strategy = s
	}
	if opts.Logger == nil {
		opts.Logger = NopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := cachecore.Probe(ctx, opts.Storage); err != nil {
		return nil, fmt.Errorf("cache: %s backend unavailable: %w", opts.Kind, err)
	}

	b := &managedBackend{
		kind:      opts.Kind,
		storage:   opts.Storage,
		strategy:  opts.Strategy,
		maxSize:   opts.MaxSize,
		maxItems:  opts.MaxItems,
		logger:    opts.Logger,
		now:       opts.Now,
		onExpired: opts.OnExpired,
		index:     make(map[string]entryInfo),
		stopCh:    make(chan struct{}),
	}
	if err := b.seed(ctx); err != nil {
		return nil, fmt.Errorf("cache: seed %s backend: %w", opts.Kind, err)
	}
	b.available.Store(true)

	if opts.CleanupInterval > 0 {
		b.wg.Add(1)
		go b.sweeper(opts.CleanupInterval)
	}
	return b, nil
}

func (b *managedBackend) Kind() cachecore.Kind       { return b.kind }
func (b *managedBackend) Available() bool            { return b.available.Load() }
func (b *managedBackend) MaxSize() int64             { return b.maxSize }
func (b *managedBackend) MaxItems() int              { return b.maxItems }
func (b *managedBackend) Storage() cachecore.Storage { return b.storage }

func (b *managedBackend) UsedSize() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *managedBackend) Length() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.index)
}

func (b *managedBackend) seed(ctx context.Context) error {
	keys, err := b.storage.Keys(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	type seeded struct {
		key  string
		info entryInfo
	}
	live := make([]seeded, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := b.storage.Read(ctx, key)
		if err != nil || !ok {
			continue
		}
		rec, err := cachecore.DecodeRecord(raw)
		if err != nil || rec.Expired(now) {
			_ = b.storage.Delete(ctx, key)
			continue
		}
		live = append(live, seeded{key: key, info: infoFor(key, raw, rec)})
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].info.createdAt < live[j].info.createdAt })
	for _, s := range live {
		b.track(s.key, s.info, now)
	}
	_, err = b.trimLocked(ctx)
	return err
}

func infoFor(key string, raw []byte, rec cachecore.Record) entryInfo {
	return entryInfo{
		size:      int64(len(key) + len(raw)),
		createdAt: rec.Metadata.CreatedAt,
		expiresAt: rec.Metadata.ExpiresAt,
	}
}

// track registers a key that is known to be present in the storage. The
// caller holds b.mu (or is single-threaded during seeding).
func (b *managedBackend) track(key string, info entryInfo, now time.Time) {
	if prev, ok := b.index[key]; ok {
		b.used -= prev.size
	}
	b.index[key] = info
	b.used += info.size
	b.strategy.RecordAdd(key, info.ttl(now))
}

func (e entryInfo) ttl(now time.Time) time.Duration {
	if e.expiresAt == 0 {
		return 0
	}
	return max(time.UnixMilli(e.expiresAt).Sub(now), time.Millisecond)
}

// forget drops bookkeeping for a key that is no longer in the storage.
func (b *managedBackend) forget(key string) {
	if info, ok := b.index[key]; ok {
		b.used -= info.size
		delete(b.index, key)
	}
	b.strategy.Remove(key)
}

func (b *managedBackend) removeLocked(ctx context.Context, key string) error {
	if err := b.storage.Delete(ctx, key); err != nil {
		return err
	}
	b.forget(key)
	return nil
}

func (b *managedBackend) SetItem(ctx context.Context, key string, rec cachecore.Record) error {
	rec.Metadata.Backend = b.kind
	raw, err := cachecore.EncodeRecord(rec)
	if err != nil {
		return serializationErr("encode record", err)
	}
	info := infoFor(key, raw, rec)
	if b.maxSize > 0 && info.size > b.maxSize {
		return fmt.Errorf("%w: %d bytes exceeds %s backend limit of %d", cachecore.ErrValueTooLarge, info.size, b.kind, b.maxSize)
	}

	b.mu.Lock()
	plan, expired, err := b.makeRoom(ctx, key, info.size)
	if err == nil {
		err = b.writeWithPlan(ctx, key, raw, plan)
		if err == nil {
			b.track(key, info, b.now())
		}
	}
	b.mu.Unlock()

	b.notifyExpired(expired)
	return err
}

// writeWithPlan writes raw and only then deletes the planned victims, so a
// failed write leaves every existing record in place. A storage with its own
// hard bound may refuse the write until the victims are gone; that case
// deletes first and retries once.
func (b *managedBackend) writeWithPlan(ctx context.Context, key string, raw []byte, plan *roomPlan) error {
	err := b.storage.Write(ctx, key, raw)
	if err == nil {
		b.commit(ctx, plan)
		return nil
	}
	if !errors.Is(err, cachecore.ErrCapacityExceeded) || len(plan.victims) == 0 {
		b.restore(plan)
		return err
	}
	b.commit(ctx, plan)
	return b.storage.Write(ctx, key, raw)
}

// roomPlan lists the records a write displaces. Victims are detached from the
// strategy while planning and stay in storage until commit.
type roomPlan struct {
	victims  []string
	detached []string
	taken    map[string]struct{}
	items    int
	used     int64
}

func (p *roomPlan) take(key string, info entryInfo) {
	p.victims = append(p.victims, key)
	p.detached = append(p.detached, key)
	p.taken[key] = struct{}{}
	p.items--
	p.used -= info.size
}

func (b *managedBackend) newPlan() *roomPlan {
	return &roomPlan{taken: make(map[string]struct{}), items: len(b.index), used: b.used}
}

func (b *managedBackend) fits(key string, cost int64, p *roomPlan) bool {
	items, used := p.items, p.used
	if prev, ok := b.index[key]; ok {
		used -= prev.size
	} else {
		items++
	}
	if b.maxItems > 0 && items > b.maxItems {
		return false
	}
	if b.maxSize > 0 && used+cost > b.maxSize {
		return false
	}
	return true
}

// makeRoom plans space for a write of cost bytes under key: expired records
// are deleted first, then strategy victims (at most 30% of items, minimum
// one) and the oldest records by creation time (at most half of the rest,
// minimum one) are picked.
func (b *managedBackend) makeRoom(ctx context.Context, key string, cost int64) (*roomPlan, []expiredRecord, error) {
	plan := b.newPlan()
	if b.fits(key, cost, plan) {
		return plan, nil, nil
	}
	expired := b.sweepLocked(ctx)
	plan = b.newPlan()
	if b.fits(key, cost, plan) {
		return plan, expired, nil
	}

	limit := max(int(math.Ceil(float64(len(b.index))*evictionShare)), 1)
	for n := 0; n < limit && !b.fits(key, cost, plan); n++ {
		victim, ok := b.strategy.EvictionKey()
		if !ok {
			break
		}
		b.strategy.Remove(victim)
		info, tracked := b.index[victim]
		switch {
		case !tracked:
		case victim == key:
			// overwritten in place; track re-registers it
			plan.detached = append(plan.detached, key)
		default:
			plan.take(victim, info)
		}
	}
	if b.fits(key, cost, plan) {
		return plan, expired, nil
	}

	limit = max((len(b.index)-len(plan.victims))/2, 1)
	oldest := b.keysByAge()
	for n, i := 0, 0; n < limit && i < len(oldest) && !b.fits(key, cost, plan); i++ {
		k := oldest[i]
		if _, taken := plan.taken[k]; taken || k == key {
			continue
		}
		b.strategy.Remove(k)
		plan.take(k, b.index[k])
		n++
	}
	if !b.fits(key, cost, plan) {
		b.restore(plan)
		return nil, expired, fmt.Errorf("%w: %s backend", cachecore.ErrCapacityExceeded, b.kind)
	}
	return plan, expired, nil
}

// commit deletes planned victims. A victim whose delete fails stays tracked.
func (b *managedBackend) commit(ctx context.Context, plan *roomPlan) {
	now := b.now()
	for _, key := range plan.victims {
		if err := b.storage.Delete(ctx, key); err != nil {
			b.logger.Warn("cache eviction delete failed", Fields{"backend": b.kind, "key": key, "error": err})
			if info, ok := b.index[key]; ok {
				b.strategy.RecordAdd(key, info.ttl(now))
			}
			continue
		}
		b.forget(key)
		b.evictions.Add(1)
	}
	plan.victims = nil
}

// restore re-registers detached keys with the strategy after an abandoned plan.
func (b *managedBackend) restore(plan *roomPlan) {
	now := b.now()
	for _, key := range plan.detached {
		if info, ok := b.index[key]; ok {
			b.strategy.RecordAdd(key, info.ttl(now))
		}
	}
}

func (b *managedBackend) withinBounds() bool {
	if b.maxItems > 0 && len(b.index) > b.maxItems {
		return false
	}
	return b.maxSize <= 0 || b.used <= b.maxSize
}

// trimLocked brings a backend that picked up records from outside its own
// writes back within bounds: expired records, then strategy victims, then
// the oldest by creation time, with no per-call cap.
func (b *managedBackend) trimLocked(ctx context.Context) ([]expiredRecord, error) {
	if b.withinBounds() {
		return nil, nil
	}
	expired := b.sweepLocked(ctx)
	for !b.withinBounds() {
		victim, ok := b.strategy.EvictionKey()
		if !ok {
			break
		}
		if _, tracked := b.index[victim]; !tracked {
			b.strategy.Remove(victim)
			continue
		}
		if err := b.removeLocked(ctx, victim); err != nil {
			return expired, err
		}
		b.evictions.Add(1)
	}
	for _, key := range b.keysByAge() {
		if b.withinBounds() {
			break
		}
		if err := b.removeLocked(ctx, key); err != nil {
			return expired, err
		}
		b.evictions.Add(1)
	}
	return expired, nil
}

func (b *managedBackend) keysByAge() []string {
	keys := make([]string, 0, len(b.index))
	for k := range b.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, c := b.index[keys[i]], b.index[keys[j]]
		if a.createdAt != c.createdAt {
			return a.createdAt < c.createdAt
		}
		return keys[i] < keys[j]
	})
	return keys
}

// sweepLocked deletes expired records known to the index.
func (b *managedBackend) sweepLocked(ctx context.Context) []expiredRecord {
	now := b.now().UnixMilli()
	var out []expiredRecord
	for key, info := range b.index {
		if info.expiresAt == 0 || now <= info.expiresAt {
			continue
		}
		var rec cachecore.Record
		if raw, ok, err := b.storage.Read(ctx, key); err == nil && ok {
			rec, _ = cachecore.DecodeRecord(raw)
		}
		if err := b.removeLocked(ctx, key); err != nil {
			b.logger.Warn("cache sweep delete failed", Fields{"backend": b.kind, "key": key, "error": err})
			continue
		}
		b.expired.Add(1)
		out = append(out, expiredRecord{key: key, rec: rec})
	}
	return out
}

func (b *managedBackend) notifyExpired(recs []expiredRecord) {
	if b.onExpired == nil {
		return
	}
	for _, e := range recs {
		b.onExpired(e.key, e.rec)
	}
}

func (b *managedBackend) GetItem(ctx context.Context, key string) (cachecore.Record, bool, error) {
	b.mu.Lock()
	rec, ok, expired, err := b.readLocked(ctx, key)
	if err != nil || !ok {
		b.mu.Unlock()
		b.notifyExpired(expired)
		return cachecore.Record{}, false, err
	}

	now := b.now()
	rec.Touch(now)
	raw, encErr := cachecore.EncodeRecord(rec)
	prev, tracked := b.index[key]
	if encErr == nil {
		info := infoFor(key, raw, rec)
		switch {
		case tracked && b.maxSize > 0 && b.used-prev.size+info.size > b.maxSize:
			// the grown record would not fit; keep the stored metadata
		case tracked:
			if err := b.storage.Write(ctx, key, raw); err != nil {
				b.logger.Warn("cache access metadata write failed", Fields{"backend": b.kind, "key": key, "error": err})
			} else {
				b.used += info.size - prev.size
				b.index[key] = info
			}
		default:
			if err := b.storage.Write(ctx, key, raw); err != nil {
				b.logger.Warn("cache access metadata write failed", Fields{"backend": b.kind, "key": key, "error": err})
			}
		}
	}
	if tracked {
		b.strategy.RecordAccess(key)
	} else if raw != nil {
		// written by another process sharing the storage
		b.track(key, infoFor(key, raw, rec), now)
		var trimErr error
		if expired, trimErr = b.trimLocked(ctx); trimErr != nil {
			b.logger.Warn("cache trim failed", Fields{"backend": b.kind, "error": trimErr})
		}
	}
	b.mu.Unlock()

	b.notifyExpired(expired)
	b.hits.Add(1)
	return rec, true, nil
}

// readLocked loads and validates a record. Corrupt records are deleted and
// reported absent; expired records are deleted and returned in expired.
func (b *managedBackend) readLocked(ctx context.Context, key string) (cachecore.Record, bool, []expiredRecord, error) {
	raw, ok, err := b.storage.Read(ctx, key)
	if err != nil {
		return cachecore.Record{}, false, nil, err
	}
	if !ok {
		if _, tracked := b.index[key]; tracked {
			b.forget(key)
		}
		return cachecore.Record{}, false, nil, nil
	}
	rec, err := cachecore.DecodeRecord(raw)
	if err != nil {
		b.logger.Warn("cache dropping corrupt record", Fields{"backend": b.kind, "key": key, "error": err})
		if delErr := b.removeLocked(ctx, key); delErr != nil {
			return cachecore.Record{}, false, nil, delErr
		}
		return cachecore.Record{}, false, nil, nil
	}
	if rec.Expired(b.now()) {
		if err := b.removeLocked(ctx, key); err != nil {
			return cachecore.Record{}, false, nil, err
		}
		b.expired.Add(1)
		return cachecore.Record{}, false, []expiredRecord{{key: key, rec: rec}}, nil
	}
	return rec, true, nil, nil
}

func (b *managedBackend) Peek(ctx context.Context, key string) (cachecore.Record, bool, error) {
	raw, ok, err := b.storage.Read(ctx, key)
	if err != nil || !ok {
		return cachecore.Record{}, false, err
	}
	rec, err := cachecore.DecodeRecord(raw)
	if err != nil || rec.Expired(b.now()) {
		return cachecore.Record{}, false, nil
	}
	return rec, true, nil
}

func (b *managedBackend) RemoveItem(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(ctx, key)
}

func (b *managedBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.storage.Flush(ctx); err != nil {
		return err
	}
	b.index = make(map[string]entryInfo)
	b.used = 0
	b.strategy.Clear()
	return nil
}

func (b *managedBackend) Keys(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now().UnixMilli()
	keys := make([]string, 0, len(b.index))
	for k, info := range b.index {
		if info.expiresAt > 0 && now > info.expiresAt {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *managedBackend) Cleanup(ctx context.Context) (int, error) {
	b.mu.Lock()
	err := b.resyncLocked(ctx)
	expired := b.sweepLocked(ctx)
	if err == nil {
		var trimmed []expiredRecord
		trimmed, err = b.trimLocked(ctx)
		expired = append(expired, trimmed...)
	}
	b.mu.Unlock()

	b.notifyExpired(expired)
	return len(expired), err
}

// resyncLocked reconciles the index with the storage, picking up records
// written by other processes and dropping ones they removed.
func (b *managedBackend) resyncLocked(ctx context.Context) error {
	keys, err := b.storage.Keys(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(keys))
	now := b.now()
	for _, key := range keys {
		present[key] = struct{}{}
		if _, tracked := b.index[key]; tracked {
			continue
		}
		raw, ok, err := b.storage.Read(ctx, key)
		if err != nil || !ok {
			continue
		}
		rec, err := cachecore.DecodeRecord(raw)
		if err != nil {
			_ = b.storage.Delete(ctx, key)
			continue
		}
		b.track(key, infoFor(key, raw, rec), now)
	}
	for key := range b.index {
		if _, ok := present[key]; !ok {
			b.forget(key)
		}
	}
	return nil
}

func (b *managedBackend) RecordMiss(key string) {
	b.misses.Add(1)
	if mr, ok := b.strategy.(eviction.MissRecorder); ok {
		b.mu.Lock()
		mr.RecordMiss(key)
		b.mu.Unlock()
	}
}

func (b *managedBackend) Stats() BackendStats {
	b.mu.Lock()
	items, used, es := len(b.index), b.used, b.strategy.Stats()
	b.mu.Unlock()
	hits, misses := b.hits.Load(), b.misses.Load()
	return BackendStats{
		Kind:      b.kind,
		Items:     items,
		UsedSize:  used,
		MaxSize:   b.maxSize,
		MaxItems:  b.maxItems,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate(hits, misses),
		Evictions: b.evictions.Load(),
		Expired:   b.expired.Load(),
		Eviction:  es,
	}
}

func (b *managedBackend) sweeper(interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := b.Cleanup(context.Background()); err != nil {
				b.logger.Warn("cache cleanup failed", Fields{"backend": b.kind, "error": err})
			}
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the sweeper and releases the storage. It is safe to call twice.
func (b *managedBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.available.Store(false)
		close(b.stopCh)
		b.wg.Wait()
		err = b.storage.Close()
	})
	return err
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
