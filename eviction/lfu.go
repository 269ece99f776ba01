package eviction

import (
	"container/list"
	"time"
)

type lfuEntry struct {
	key  string
	freq int
}

// lfu keeps one recency list per access count. Within a bucket the back is the
// entry touched longest ago, which breaks frequency ties.
type lfu struct {
	items   map[string]*list.Element
	buckets map[int]*list.List
	minFreq int
	counters
}

func newLFU() *lfu {
	return &lfu{items: make(map[string]*list.Element), buckets: make(map[int]*list.List)}
}

func (l *lfu) Policy() Policy { return LFU }

func (l *lfu) RecordAdd(key string, _ time.Duration) {
	l.adds++
	if _, ok := l.items[key]; ok {
		l.bump(key)
		return
	}
	l.items[key] = l.bucket(1).PushFront(&lfuEntry{key: key, freq: 1})
	l.minFreq = 1
}

func (l *lfu) RecordAccess(key string) {
	if _, ok := l.items[key]; ok {
		l.accesses++
		l.bump(key)
	}
}

func (l *lfu) bump(key string) {
	el := l.items[key]
	e := el.Value.(*lfuEntry)
	old := l.buckets[e.freq]
	old.Remove(el)
	if old.Len() == 0 {
		delete(l.buckets, e.freq)
		if l.minFreq == e.freq {
			l.minFreq = e.freq + 1
		}
	}
	e.freq++
	l.items[key] = l.bucket(e.freq).PushFront(e)
}

func (l *lfu) bucket(freq int) *list.List {
	b, ok := l.buckets[freq]
	if !ok {
		b = list.New()
		l.buckets[freq] = b
	}
	return b
}

func (l *lfu) Remove(key string) {
	el, ok := l.items[key]
	if !ok {
		return
	}
	e := el.Value.(*lfuEntry)
	b := l.buckets[e.freq]
	b.Remove(el)
	delete(l.items, key)
	if b.Len() == 0 {
		delete(l.buckets, e.freq)
		if l.minFreq == e.freq {
			l.recomputeMin()
		}
	}
}

func (l *lfu) recomputeMin() {
	l.minFreq = 0
	for f := range l.buckets {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}

func (l *lfu) EvictionKey() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	b, ok := l.buckets[l.minFreq]
	if !ok {
		l.recomputeMin()
		b = l.buckets[l.minFreq]
	}
	return b.Back().Value.(*lfuEntry).key, true
}

func (l *lfu) Clear() {
	l.items = make(map[string]*list.Element)
	l.buckets = make(map[int]*list.List)
	l.minFreq = 0
}

func (l *lfu) Len() int { return len(l.items) }

func (l *lfu) Stats() Stats { return l.stats(LFU, len(l.items)) }
