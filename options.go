package hybridcache

import (
	"time"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/codec"
	"github.com/goforj/hybridcache/eviction"
	"github.com/goforj/hybridcache/transport"
)

type settings struct {
	logger       Logger
	serializer   codec.Serializer
	security     Security
	keys         KeyTransform
	now          func() time.Time
	storages     map[cachecore.Kind]cachecore.Storage
	strategies   map[cachecore.Kind]eviction.Strategy
	evictionOpts []eviction.Option
	observers    []Observer
	transport    transport.Transport
	fallback     transport.Transport
}

func defaultSettings() settings {
	return settings{
		logger:     NopLogger{},
		security:   NopSecurity{},
		keys:       IdentityKeys{},
		now:        time.Now,
		storages:   make(map[cachecore.Kind]cachecore.Storage),
		strategies: make(map[cachecore.Kind]eviction.Strategy),
	}
}

// Option mutates construction settings for New.
type Option func(settings) settings

// WithLogger routes cache logs to l.
func WithLogger(l Logger) Option {
	return func(s settings) settings {
		if l != nil {
			s.logger = l
		}
		return s
	}
}

// WithSerializer overrides the serializer named in Config.
func WithSerializer(sz codec.Serializer) Option {
	return func(s settings) settings {
		s.serializer = sz
		return s
	}
}

// WithSecurity installs an encryption hook applied to every payload.
func WithSecurity(sec Security) Option {
	return func(s settings) settings {
		if sec != nil {
			s.security = sec
		}
		return s
	}
}

// WithKeyTransform sets the reversible logical-to-stored key mapping.
func WithKeyTransform(kt KeyTransform) Option {
	return func(s settings) settings {
		if kt != nil {
			s.keys = kt
		}
		return s
	}
}

// WithClock overrides the time source used for metadata and expiry.
func WithClock(now func() time.Time) Option {
	return func(s settings) settings {
		if now != nil {
			s.now = now
		}
		return s
	}
}

// WithStorage supplies the physical storage for a configured backend kind
// instead of building one from its BackendConfig.
func WithStorage(kind cachecore.Kind, storage cachecore.Storage) Option {
	return func(s settings) settings {
		s.storages[kind] = storage
		return s
	}
}

// WithEvictionStrategy supplies a strategy instance for a backend kind,
// overriding the policy named in its BackendConfig.
func WithEvictionStrategy(kind cachecore.Kind, strategy eviction.Strategy) Option {
	return func(s settings) settings {
		s.strategies[kind] = strategy
		return s
	}
}

// WithEvictionOptions passes options (clock, seed) to every strategy built from config.
func WithEvictionOptions(opts ...eviction.Option) Option {
	return func(s settings) settings {
		s.evictionOpts = append(s.evictionOpts, opts...)
		return s
	}
}

// WithObserver subscribes o before any backend is built, so it also sees
// events raised during construction.
func WithObserver(o Observer) Option {
	return func(s settings) settings {
		s.observers = append(s.observers, o)
		return s
	}
}

// WithSync enables the sync channel over primary, falling back to fallback
// when primary is nil. With neither, sync is a no-op.
func WithSync(primary, fallback transport.Transport) Option {
	return func(s settings) settings {
		s.transport = primary
		s.fallback = fallback
		return s
	}
}
