package hybridcache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/transport"
)

// SyncState is the sync channel's current activity.
type SyncState int32

const (
	SyncIdle SyncState = iota
	SyncBroadcasting
	SyncApplying
)

func (s SyncState) String() string {
	switch s {
	case SyncBroadcasting:
		return "broadcasting"
	case SyncApplying:
		return "applying"
	default:
		return "idle"
	}
}

// Peer is another instance seen on the transport.
type Peer struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

// SyncChannel rebroadcasts local mutations to other instances and replays
// theirs into the local cache. It is best effort: transport and decode
// failures are logged and never reach cache callers.
type SyncChannel struct {
	cache     *Cache
	cfg       SyncConfig
	id        string
	transport transport.Transport
	enabled   bool
	logger    Logger
	now       func() time.Time

	state   atomic.Int32
	lastTS  atomic.Int64
	dropped atomic.Uint64
	closed  atomic.Bool

	mu      sync.Mutex
	pending map[string]SyncMessage
	order   []string
	timer   *time.Timer

	peersMu sync.Mutex
	peers   map[string]time.Time

	unsubscribe func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func newSyncChannel(c *Cache, cfg SyncConfig, primary, fallback transport.Transport) (*SyncChannel, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	s := &SyncChannel{
		cache:   c,
		cfg:     cfg,
		id:      id.String(),
		logger:  c.logger,
		now:     c.now,
		pending: make(map[string]SyncMessage),
		peers:   make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}
	switch {
	case primary != nil:
		s.transport, s.enabled = primary, true
	case fallback != nil:
		s.transport, s.enabled = fallback, true
	default:
		s.transport = transport.Nop{}
	}
	return s, nil
}

func (s *SyncChannel) start(ctx context.Context) {
	if !s.enabled {
		s.logger.Debug("cache sync disabled: no transport", nil)
		return
	}
	if err := s.transport.Subscribe(s.receive); err != nil {
		s.logger.Warn("cache sync subscribe failed", Fields{"error": err})
		s.enabled = false
		return
	}
	s.unsubscribe = s.cache.bus.subscribe(ObserverFunc(s.onEvent))
	if s.cfg.CatchUp {
		s.send(ctx, SyncMessage{Kind: SyncRequest, Timestamp: s.nextTimestamp()})
	}
	if s.cfg.PingInterval > 0 {
		s.wg.Add(1)
		go s.pingLoop(s.cfg.PingInterval)
	}
}

// ID is this instance's origin id.
func (s *SyncChannel) ID() string { return s.id }

// Enabled reports whether a real transport is attached.
func (s *SyncChannel) Enabled() bool { return s.enabled }

// State reports what the channel is doing right now.
func (s *SyncChannel) State() SyncState { return SyncState(s.state.Load()) }

// Dropped counts incoming messages discarded because they carried our own origin id.
func (s *SyncChannel) Dropped() uint64 { return s.dropped.Load() }

// Peers lists instances heard from recently, sorted by id. With pings
// enabled a peer silent for three intervals is forgotten.
func (s *SyncChannel) Peers() []Peer {
	now := s.now()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	out := make([]Peer, 0, len(s.peers))
	for id, seen := range s.peers {
		if s.cfg.PingInterval > 0 && now.Sub(seen) > 3*s.cfg.PingInterval {
			delete(s.peers, id)
			continue
		}
		out = append(out, Peer{ID: id, LastSeen: seen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// nextTimestamp returns wall-clock milliseconds, bumped so every message from
// this instance is strictly later than the previous one.
func (s *SyncChannel) nextTimestamp() int64 {
	for {
		last := s.lastTS.Load()
		ts := s.now().UnixMilli()
		if ts <= last {
			ts = last + 1
		}
		if s.lastTS.CompareAndSwap(last, ts) {
			return ts
		}
	}
}

func (s *SyncChannel) onEvent(ctx context.Context, ev Event) {
	if ev.Remote || ev.Err != nil || s.closed.Load() {
		return
	}
	switch ev.Type {
	case EventSet:
		if ev.Record == nil || !s.cache.cfg.synced(ev.Backend) {
			return
		}
		s.enqueue(ctx, s.setMessage(ev.Key, ev.Backend, *ev.Record))
	case EventRemove:
		s.enqueue(ctx, SyncMessage{Kind: SyncRemove, Key: ev.Key, Timestamp: s.nextTimestamp()})
	case EventClear:
		s.enqueue(ctx, SyncMessage{Kind: SyncClear, Timestamp: s.nextTimestamp()})
	}
}

func (s *SyncChannel) setMessage(key string, kind cachecore.Kind, rec cachecore.Record) SyncMessage {
	opts := &SyncOptions{
		Backend:   kind,
		DataType:  rec.Metadata.DataType,
		Encrypted: rec.Metadata.Encrypted,
	}
	if ttl := rec.TTL(s.now()); ttl > 0 {
		opts.TTL = ttl.Milliseconds()
		if opts.TTL == 0 {
			opts.TTL = 1
		}
	}
	return SyncMessage{Kind: SyncSet, Key: key, Value: rec.Value, Options: opts, Timestamp: s.nextTimestamp()}
}

// enqueue sends immediately, or coalesces by kind and key inside the
// debounce window. Latest wins and a clear supersedes everything pending.
func (s *SyncChannel) enqueue(ctx context.Context, msg SyncMessage) {
	if s.cfg.Debounce <= 0 {
		s.send(ctx, msg)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Kind == SyncClear {
		s.pending = make(map[string]SyncMessage)
		s.order = s.order[:0]
	}
	slot := string(msg.Kind) + "\x00" + msg.Key
	if _, ok := s.pending[slot]; ok {
		for i, k := range s.order {
			if k == slot {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.pending[slot] = msg
	s.order = append(s.order, slot)
	if s.timer == nil {
		s.timer = time.AfterFunc(s.cfg.Debounce, s.flush)
	}
}

func (s *SyncChannel) flush() {
	s.mu.Lock()
	batch := make([]SyncMessage, 0, len(s.order))
	for _, slot := range s.order {
		batch = append(batch, s.pending[slot])
	}
	s.pending = make(map[string]SyncMessage)
	s.order = nil
	s.timer = nil
	s.mu.Unlock()

	for _, msg := range batch {
		s.send(context.Background(), msg)
	}
}

func (s *SyncChannel) send(ctx context.Context, msg SyncMessage) {
	if s.closed.Load() {
		return
	}
	msg.OriginID = s.id
	if msg.Timestamp == 0 {
		msg.Timestamp = s.nextTimestamp()
	}
	payload, err := encodeSyncMessage(msg)
	if err != nil {
		s.logger.Warn("cache sync encode failed", Fields{"kind": msg.Kind, "key": msg.Key, "error": err})
		return
	}
	s.state.Store(int32(SyncBroadcasting))
	defer s.state.Store(int32(SyncIdle))
	if err := s.transport.Publish(ctx, payload); err != nil {
		s.logger.Warn("cache sync publish failed", Fields{"kind": msg.Kind, "key": msg.Key, "error": err})
	}
}

func (s *SyncChannel) receive(ctx context.Context, payload []byte) {
	if s.closed.Load() {
		return
	}
	msg, err := decodeSyncMessage(payload)
	if err != nil {
		s.logger.Warn("cache sync message dropped", Fields{"error": err})
		return
	}
	if msg.OriginID == s.id {
		s.dropped.Add(1)
		return
	}
	s.peersMu.Lock()
	s.peers[msg.OriginID] = s.now()
	s.peersMu.Unlock()

	s.state.Store(int32(SyncApplying))
	defer s.state.Store(int32(SyncIdle))

	switch msg.Kind {
	case SyncSet:
		err = s.cache.applyRemoteSet(ctx, msg, s.cfg.Conflict)
	case SyncRemove:
		err = s.cache.remove(ctx, msg.Key, true)
	case SyncClear:
		err = s.cache.clear(ctx, true)
	case SyncRequest:
		s.dump(ctx)
	case SyncPing:
	}
	if err != nil {
		s.logger.Warn("cache sync apply failed", Fields{"kind": msg.Kind, "key": msg.Key, "origin": msg.OriginID, "error": err})
	}
}

// dump rebroadcasts every live record in synced backends as set messages.
func (s *SyncChannel) dump(ctx context.Context) {
	for _, b := range s.cache.reg.live() {
		if !s.cache.cfg.synced(b.Kind()) {
			continue
		}
		keys, err := b.Keys(ctx)
		if err != nil {
			s.logger.Warn("cache sync dump failed", Fields{"backend": b.Kind(), "error": err})
			continue
		}
		for _, physical := range keys {
			key, ok := s.cache.keys.logical(physical)
			if !ok {
				continue
			}
			rec, ok, err := b.Peek(ctx, physical)
			if err != nil || !ok {
				continue
			}
			s.send(ctx, s.setMessage(key, b.Kind(), rec))
		}
	}
}

func (s *SyncChannel) pingLoop(interval time.Duration) {
	defer s.wg.Done()
	s.send(context.Background(), SyncMessage{Kind: SyncPing})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.send(context.Background(), SyncMessage{Kind: SyncPing})
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the ping timer, discards pending debounced messages and
// releases the transport.
func (s *SyncChannel) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		s.wg.Wait()
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.pending = make(map[string]SyncMessage)
		s.order = nil
		s.mu.Unlock()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		err = s.transport.Close()
	})
	return err
}

// applyRemoteSet writes a replayed record straight into the named backend,
// bypassing selection. Backends not shared across instances are left alone.
func (c *Cache) applyRemoteSet(ctx context.Context, msg SyncMessage, policy ConflictPolicy) error {
	if c.closed.Load() {
		return ErrClosed
	}
	kind := msg.Options.Backend
	if !c.cfg.synced(kind) {
		return nil
	}
	b, ok := c.reg.get(kind)
	if !ok {
		return nil
	}
	physical := c.keys.physical(msg.Key)
	if policy == ConflictTimestampWins {
		cur, ok, err := b.Peek(ctx, physical)
		if err == nil && ok && cur.Metadata.CreatedAt > msg.Timestamp {
			c.logger.Debug("cache sync set skipped: local record is newer", Fields{"key": msg.Key, "backend": kind})
			return nil
		}
	}
	rec := cachecore.NewRecord(msg.Value, msg.Options.DataType, time.Duration(msg.Options.TTL)*time.Millisecond, c.now())
	rec.Metadata.Encrypted = msg.Options.Encrypted
	rec.Metadata.Backend = kind
	if err := b.SetItem(ctx, physical, rec); err != nil {
		return backendErr(kind, "set", msg.Key, err)
	}
	c.emit(ctx, Event{Type: EventSet, Key: msg.Key, Backend: kind, Record: &rec, Remote: true})
	return nil
}
