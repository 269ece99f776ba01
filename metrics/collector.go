// Package metrics exports cache statistics to Prometheus.
package metrics

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goforj/hybridcache"
	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/eviction"
)

// StatsSource is implemented by *hybridcache.Cache.
type StatsSource interface {
	Stats(ctx context.Context) hybridcache.Stats
}

// Collector reads a fresh Stats snapshot on every scrape.
type Collector struct {
	src StatsSource

	hits, misses, hitRatio, syncDropped *prometheus.Desc

	items, bytes, maxBytes, maxItems           *prometheus.Desc
	backendHits, backendMisses                 *prometheus.Desc
	evictions, expired, unavailable, arcWeight *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector whose metric names start with namespace
// ("hybridcache" when empty).
// @group Constructors
//
// Example: register with the default registry
//
//	prometheus.MustRegister(metrics.NewCollector("app_cache", c))
func NewCollector(namespace string, src StatsSource) *Collector {
	if namespace == "" {
		namespace = "hybridcache"
	}
	name := func(n string) string { return prometheus.BuildFQName(namespace, "", n) }
	backend := []string{"backend"}
	return &Collector{
		src:           src,
		hits:          prometheus.NewDesc(name("hits_total"), "Cache reads that found a live record.", nil, nil),
		misses:        prometheus.NewDesc(name("misses_total"), "Cache reads that found nothing in any backend.", nil, nil),
		hitRatio:      prometheus.NewDesc(name("hit_ratio"), "hits / (hits + misses); zero before the first read.", nil, nil),
		syncDropped:   prometheus.NewDesc(name("sync_echo_dropped_total"), "Sync messages discarded because they carried this instance's origin.", nil, nil),
		items:         prometheus.NewDesc(name("backend_items"), "Records held by a backend.", backend, nil),
		bytes:         prometheus.NewDesc(name("backend_used_bytes"), "Bytes accounted to a backend.", backend, nil),
		maxBytes:      prometheus.NewDesc(name("backend_max_bytes"), "Byte capacity of a backend; 0 is unbounded.", backend, nil),
		maxItems:      prometheus.NewDesc(name("backend_max_items"), "Item capacity of a backend; -1 is unbounded.", backend, nil),
		backendHits:   prometheus.NewDesc(name("backend_hits_total"), "Reads served by a backend.", backend, nil),
		backendMisses: prometheus.NewDesc(name("backend_misses_total"), "Global misses recorded against a backend.", backend, nil),
		evictions:     prometheus.NewDesc(name("backend_evictions_total"), "Records removed to make room.", backend, nil),
		expired:       prometheus.NewDesc(name("backend_expired_total"), "Records removed because they expired.", backend, nil),
		unavailable:   prometheus.NewDesc(name("backend_unavailable"), "1 for a configured backend that failed to initialise.", backend, nil),
		arcWeight:     prometheus.NewDesc(name("backend_arc_lfu_weight"), "Probability that an ARC strategy delegates eviction to LFU.", backend, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hits, c.misses, c.hitRatio, c.syncDropped,
		c.items, c.bytes, c.maxBytes, c.maxItems,
		c.backendHits, c.backendMisses, c.evictions, c.expired,
		c.unavailable, c.arcWeight,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats(context.Background())
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, st.HitRate)
	ch <- prometheus.MustNewConstMetric(c.syncDropped, prometheus.CounterValue, float64(st.SyncDropped))

	kinds := make([]cachecore.Kind, 0, len(st.Backends))
	for k := range st.Backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		b := st.Backends[k]
		label := string(k)
		ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(b.Items), label)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(b.UsedSize), label)
		ch <- prometheus.MustNewConstMetric(c.maxBytes, prometheus.GaugeValue, float64(b.MaxSize), label)
		ch <- prometheus.MustNewConstMetric(c.maxItems, prometheus.GaugeValue, float64(b.MaxItems), label)
		ch <- prometheus.MustNewConstMetric(c.backendHits, prometheus.CounterValue, float64(b.Hits), label)
		ch <- prometheus.MustNewConstMetric(c.backendMisses, prometheus.CounterValue, float64(b.Misses), label)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(b.Evictions), label)
		ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(b.Expired), label)
		if b.Eviction.Policy == eviction.ARC {
			ch <- prometheus.MustNewConstMetric(c.arcWeight, prometheus.GaugeValue, b.Eviction.Weight, label)
		}
	}
	for k := range st.Unavailable {
		ch <- prometheus.MustNewConstMetric(c.unavailable, prometheus.GaugeValue, 1, string(k))
	}
}
