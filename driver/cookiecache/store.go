// Package cookiecache provides the small-value storage with cookie-jar
// semantics: each record becomes one RFC 6265 cookie, bounded to 4096 bytes
// per cookie and 50 cookies per jar. The jar can be seeded from an incoming
// request and exported to a response header.
package cookiecache

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goforj/hybridcache/cachecore"
)

const (
	// MaxCookieBytes is the serialized size limit of a single cookie.
	MaxCookieBytes = 4096
	// MaxCookies is the number of cookies a jar may hold.
	MaxCookies = 50

	namePrefix = "hc_"
)

var enc = base64.RawURLEncoding

// Config configures the cookie storage.
type Config struct {
	Path   string
	Domain string
	Secure bool
	// Seed preloads the jar, e.g. from (*http.Request).Cookies().
	// Cookies without the storage name prefix are ignored.
	Seed []*http.Cookie
}

// Store is the cookie-backed storage. Besides cachecore.Storage it exposes the
// jar for HTTP glue code.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	values map[string]string // cookie name -> encoded value
}

var _ cachecore.Storage = (*Store)(nil)

// New builds a cookie storage.
func New(cfg Config) *Store {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	s := &Store{cfg: cfg, values: make(map[string]string)}
	for _, c := range cfg.Seed {
		if c == nil || !strings.HasPrefix(c.Name, namePrefix) {
			continue
		}
		if _, err := decodeName(c.Name); err != nil {
			continue
		}
		if len(s.values) >= MaxCookies {
			break
		}
		s.values[c.Name] = c.Value
	}
	s.cfg.Seed = nil
	return s
}

func (s *Store) Kind() cachecore.Kind { return cachecore.KindCookie }

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	v, ok := s.values[cookieName(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	raw, err := enc.DecodeString(v)
	if err != nil {
		return nil, false, fmt.Errorf("cookiecache: decode %q: %w", key, err)
	}
	return raw, true, nil
}

// Write stores raw as a cookie. It fails with cachecore.ErrValueTooLarge when
// the serialized cookie exceeds MaxCookieBytes and with
// cachecore.ErrCapacityExceeded when the jar is full.
func (s *Store) Write(_ context.Context, key string, raw []byte) error {
	name := cookieName(key)
	value := enc.EncodeToString(raw)
	if n := len(s.cookie(name, value).String()); n > MaxCookieBytes {
		return fmt.Errorf("%w: cookie %q is %d bytes", cachecore.ErrValueTooLarge, key, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[name]; !exists && len(s.values) >= MaxCookies {
		return cachecore.ErrCapacityExceeded
	}
	s.values[name] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, cookieName(key))
	s.mu.Unlock()
	return nil
}

func (s *Store) Keys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for name := range s.values {
		if key, err := decodeName(name); err == nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Flush(context.Context) error {
	s.mu.Lock()
	s.values = make(map[string]string)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// Cookies returns a snapshot of the jar, sorted by name.
func (s *Store) Cookies() []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*http.Cookie, 0, len(s.values))
	for name, value := range s.values {
		out = append(out, s.cookie(name, value))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WriteHeader appends a Set-Cookie line per cookie to h.
func (s *Store) WriteHeader(h http.Header) {
	for _, c := range s.Cookies() {
		if v := c.String(); v != "" {
			h.Add("Set-Cookie", v)
		}
	}
}

func (s *Store) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.cfg.Path,
		Domain:   s.cfg.Domain,
		Secure:   s.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func cookieName(key string) string {
	return namePrefix + enc.EncodeToString([]byte(key))
}

func decodeName(name string) (string, error) {
	raw, err := enc.DecodeString(strings.TrimPrefix(name, namePrefix))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
