package hybridcache

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/goforj/hybridcache/cachecore"
)

// SyncKind names a sync message.
type SyncKind string

const (
	SyncSet     SyncKind = "set"
	SyncRemove  SyncKind = "remove"
	SyncClear   SyncKind = "clear"
	SyncRequest SyncKind = "syncRequest"
	SyncPing    SyncKind = "ping"
)

// SyncOptions carries what a peer needs to rebuild a replayed record.
type SyncOptions struct {
	Backend cachecore.Kind `json:"backend,omitempty"`
	// TTL is the remaining lifetime in milliseconds at send time. Zero means no expiry.
	TTL       int64              `json:"ttl,omitempty"`
	DataType  cachecore.DataType `json:"dataType,omitempty"`
	Encrypted bool               `json:"encrypted,omitempty"`
}

// SyncMessage is the wire envelope exchanged between instances.
type SyncMessage struct {
	Kind      SyncKind     `json:"kind"`
	Key       string       `json:"key,omitempty"`
	Value     []byte       `json:"value,omitempty"`
	Options   *SyncOptions `json:"options,omitempty"`
	Timestamp int64        `json:"timestamp"`
	OriginID  string       `json:"originId"`
}

var errMalformedSync = errors.New("cache: malformed sync message")

func encodeSyncMessage(m SyncMessage) ([]byte, error) {
	return json.Marshal(m)
}

func decodeSyncMessage(b []byte) (SyncMessage, error) {
	var m SyncMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return SyncMessage{}, fmt.Errorf("%w: %v", errMalformedSync, err)
	}
	if m.OriginID == "" {
		return SyncMessage{}, fmt.Errorf("%w: missing origin", errMalformedSync)
	}
	switch m.Kind {
	case SyncSet:
		if m.Key == "" || m.Options == nil || m.Options.Backend == "" {
			return SyncMessage{}, fmt.Errorf("%w: set needs key and backend", errMalformedSync)
		}
	case SyncRemove:
		if m.Key == "" {
			return SyncMessage{}, fmt.Errorf("%w: remove needs key", errMalformedSync)
		}
	case SyncClear, SyncRequest, SyncPing:
	default:
		return SyncMessage{}, fmt.Errorf("%w: unknown kind %q", errMalformedSync, m.Kind)
	}
	return m, nil
}
