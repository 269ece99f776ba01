package cachecore

import (
	"fmt"
	"strings"
)

// Kind identifies a storage backend class.
type Kind string

const (
	KindMemory     Kind = "memory"
	KindPersistent Kind = "persistent"
	KindSession    Kind = "session"
	KindCookie     Kind = "cookie"
	KindDatabase   Kind = "database"
)

// Kinds lists every backend kind in default read priority order.
func Kinds() []Kind {
	return []Kind{KindMemory, KindPersistent, KindSession, KindDatabase, KindCookie}
}

// Valid reports whether k names a known backend kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMemory, KindPersistent, KindSession, KindCookie, KindDatabase:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ParseKind resolves a case-insensitive backend name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("cachecore: unknown backend kind %q", s)
	}
	return k, nil
}
