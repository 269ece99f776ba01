// Package selector scores backend kinds for a write given the payload size,
// its data type and the requested lifetime. Select is a pure function.
package selector

import (
	"fmt"
	"time"

	"github.com/goforj/hybridcache/cachecore"
)

const (
	weightTTL      = 0.50
	weightSize     = 0.30
	weightType     = 0.15
	weightPriority = 0.05

	cookieLimit   = 4 * 1024
	heavyPayload  = 100 * 1024
	databaseBoost = 0.3
	storageDamp   = 0.5
)

// SizeThresholds splits payloads into small, medium, large and huge (above Large).
type SizeThresholds struct {
	Small  int `koanf:"small" json:"small" validate:"gte=0"`
	Medium int `koanf:"medium" json:"medium" validate:"gte=0"`
	Large  int `koanf:"large" json:"large" validate:"gte=0"`
}

// TTLThresholds splits lifetimes into short, medium and long.
type TTLThresholds struct {
	Short  time.Duration `koanf:"short" json:"short" validate:"gte=0"`
	Medium time.Duration `koanf:"medium" json:"medium" validate:"gte=0"`
	Long   time.Duration `koanf:"long" json:"long" validate:"gte=0"`
}

// Config tunes scoring. Zero fields fall back to defaults.
type Config struct {
	Priority []cachecore.Kind
	Size     SizeThresholds
	TTL      TTLThresholds
}

// DefaultSizeThresholds returns 1 KiB / 100 KiB / 1 MiB.
func DefaultSizeThresholds() SizeThresholds {
	return SizeThresholds{Small: 1024, Medium: 100 * 1024, Large: 1024 * 1024}
}

// DefaultTTLThresholds returns 5m / 1h / 24h.
func DefaultTTLThresholds() TTLThresholds {
	return TTLThresholds{Short: 5 * time.Minute, Medium: time.Hour, Long: 24 * time.Hour}
}

func (c Config) withDefaults() Config {
	ds, dt := DefaultSizeThresholds(), DefaultTTLThresholds()
	if c.Size.Small <= 0 {
		c.Size.Small = ds.Small
	}
	if c.Size.Medium <= 0 {
		c.Size.Medium = ds.Medium
	}
	if c.Size.Large <= 0 {
		c.Size.Large = ds.Large
	}
	if c.TTL.Short <= 0 {
		c.TTL.Short = dt.Short
	}
	if c.TTL.Medium <= 0 {
		c.TTL.Medium = dt.Medium
	}
	if c.TTL.Long <= 0 {
		c.TTL.Long = dt.Long
	}
	return c
}

// Input describes the write being routed.
type Input struct {
	Key      string
	Size     int
	DataType cachecore.DataType
	TTL      time.Duration
}

// Result is the outcome of a selection. It is not persisted.
type Result struct {
	Backend    cachecore.Kind             `json:"backend"`
	Reason     string                     `json:"reason"`
	Confidence float64                    `json:"confidence"`
	Scores     map[cachecore.Kind]float64 `json:"scores"`
}

// Select picks the best candidate for in. Candidates are the live backends;
// ties resolve to the earlier entry in cfg.Priority, then candidate order.
// With no candidates the zero Result is returned.
func Select(cfg Config, candidates []cachecore.Kind, in Input) Result {
	if len(candidates) == 0 {
		return Result{}
	}
	cfg = cfg.withDefaults()
	priority := cfg.Priority
	if len(priority) == 0 {
		priority = candidates
	}

	sizeClass, sizePick := cfg.sizeRecommendation(in.Size)
	ttlClass, ttlPick := cfg.ttlRecommendation(in.TTL)
	typePick := typeRecommendation(in.DataType)
	heavy := in.Size > heavyPayload || in.DataType == cachecore.DataObject || in.DataType == cachecore.DataArray

	scores := make(map[cachecore.Kind]float64, len(candidates))
	for _, k := range candidates {
		var s float64
		if k == ttlPick {
			s += weightTTL
		}
		if k == sizePick {
			s += weightSize
		}
		if k == typePick {
			s += weightType
		}
		s += weightPriority * priorityScore(priority, k)

		if k == cachecore.KindCookie && (in.Size > cookieLimit || in.DataType == cachecore.DataBinary) {
			s = 0
		}
		if heavy {
			switch k {
			case cachecore.KindDatabase:
				s += databaseBoost
			case cachecore.KindPersistent, cachecore.KindSession:
				s *= storageDamp
			}
		}
		scores[k] = s
	}

	order := rank(priority, candidates)
	best, runnerUp := order[0], -1.0
	for _, k := range order[1:] {
		if scores[k] > scores[best] {
			runnerUp = scores[best]
			best = k
		} else if scores[k] > runnerUp {
			runnerUp = scores[k]
		}
	}
	if runnerUp < 0 {
		runnerUp = 0
	}

	top := scores[best]
	return Result{
		Backend:    best,
		Confidence: clamp(0.5*top + 0.5*(top-runnerUp)),
		Scores:     scores,
		Reason: fmt.Sprintf("%s payload (%d bytes, %s) with %s lifetime fits %s",
			sizeClass, in.Size, dataTypeName(in.DataType), ttlClass, best),
	}
}

func (c Config) sizeRecommendation(size int) (string, cachecore.Kind) {
	switch {
	case size <= c.Size.Small:
		return "small", cachecore.KindCookie
	case size <= c.Size.Medium:
		return "medium", cachecore.KindSession
	case size <= c.Size.Large:
		return "large", cachecore.KindDatabase
	default:
		return "huge", cachecore.KindDatabase
	}
}

func (c Config) ttlRecommendation(ttl time.Duration) (string, cachecore.Kind) {
	switch {
	case ttl <= 0:
		return "unbounded", cachecore.KindPersistent
	case ttl < c.TTL.Short:
		return "short", cachecore.KindMemory
	case ttl < c.TTL.Medium:
		return "medium", cachecore.KindSession
	case ttl < c.TTL.Long:
		return "long", cachecore.KindSession
	default:
		return "long", cachecore.KindPersistent
	}
}

func typeRecommendation(dt cachecore.DataType) cachecore.Kind {
	if dt == cachecore.DataScalar || dt == "" {
		return cachecore.KindPersistent
	}
	return cachecore.KindDatabase
}

func priorityScore(priority []cachecore.Kind, k cachecore.Kind) float64 {
	n := len(priority)
	for i, p := range priority {
		if p == k {
			return float64(n-i) / float64(n)
		}
	}
	return 0
}

// rank orders candidates by priority position, unlisted kinds last in input order.
func rank(priority, candidates []cachecore.Kind) []cachecore.Kind {
	out := make([]cachecore.Kind, 0, len(candidates))
	seen := make(map[cachecore.Kind]bool, len(candidates))
	in := make(map[cachecore.Kind]bool, len(candidates))
	for _, k := range candidates {
		in[k] = true
	}
	for _, k := range priority {
		if in[k] && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	for _, k := range candidates {
		if !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	return out
}

func dataTypeName(dt cachecore.DataType) string {
	if dt == "" {
		return string(cachecore.DataScalar)
	}
	return string(dt)
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
