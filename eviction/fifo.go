package eviction

import (
	"container/list"
	"time"
)

// fifo evicts in insertion order. Rewriting a key moves it to the back of the queue.
type fifo struct {
	queue *list.List
	items map[string]*list.Element
	counters
}

func newFIFO() *fifo {
	return &fifo{queue: list.New(), items: make(map[string]*list.Element)}
}

func (f *fifo) Policy() Policy { return FIFO }

func (f *fifo) RecordAdd(key string, _ time.Duration) {
	f.adds++
	if el, ok := f.items[key]; ok {
		f.queue.MoveToBack(el)
		return
	}
	f.items[key] = f.queue.PushBack(key)
}

func (f *fifo) RecordAccess(key string) {
	if _, ok := f.items[key]; ok {
		f.accesses++
	}
}

func (f *fifo) Remove(key string) {
	if el, ok := f.items[key]; ok {
		f.queue.Remove(el)
		delete(f.items, key)
	}
}

func (f *fifo) EvictionKey() (string, bool) {
	el := f.queue.Front()
	if el == nil {
		return "", false
	}
	return el.Value.(string), true
}

func (f *fifo) Clear() {
	f.queue.Init()
	f.items = make(map[string]*list.Element)
}

func (f *fifo) Len() int { return len(f.items) }

func (f *fifo) Stats() Stats { return f.stats(FIFO, len(f.items)) }
