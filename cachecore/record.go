package cachecore

import (
	"errors"
	"time"

	json "github.com/goccy/go-json"
)

// DataType classifies a cached value for backend selection.
type DataType string

const (
	DataScalar DataType = "scalar"
	DataObject DataType = "object"
	DataArray  DataType = "array"
	DataBinary DataType = "binary"
)

// ErrCorruptRecord is returned when stored bytes are not a record envelope.
var ErrCorruptRecord = errors.New("cache: corrupt record")

// Metadata travels in the same physical record as the value.
// Timestamps are Unix milliseconds; ExpiresAt of zero means no expiry.
type Metadata struct {
	CreatedAt      int64    `json:"createdAt"`
	LastAccessedAt int64    `json:"lastAccessedAt"`
	ExpiresAt      int64    `json:"expiresAt,omitempty"`
	DataType       DataType `json:"dataType"`
	Size           int      `json:"size"`
	AccessCount    int64    `json:"accessCount"`
	Backend        Kind     `json:"backend"`
	Encrypted      bool     `json:"encrypted,omitempty"`
}

// Record is the envelope persisted by every backend.
type Record struct {
	Value    []byte   `json:"value"`
	Metadata Metadata `json:"metadata"`
}

// NewRecord builds a record created at now, expiring after ttl when ttl > 0.
func NewRecord(value []byte, dt DataType, ttl time.Duration, now time.Time) Record {
	ms := now.UnixMilli()
	rec := Record{
		Value: value,
		Metadata: Metadata{
			CreatedAt:      ms,
			LastAccessedAt: ms,
			DataType:       dt,
			Size:           len(value),
		},
	}
	if ttl > 0 {
		rec.Metadata.ExpiresAt = now.Add(ttl).UnixMilli()
	}
	return rec
}

// Expired reports whether the record is logically absent at now.
func (r Record) Expired(now time.Time) bool {
	return r.Metadata.ExpiresAt > 0 && now.UnixMilli() > r.Metadata.ExpiresAt
}

// TTL returns the remaining lifetime at now, zero when the record never expires
// and a negative duration once it has expired.
func (r Record) TTL(now time.Time) time.Duration {
	if r.Metadata.ExpiresAt == 0 {
		return 0
	}
	return time.UnixMilli(r.Metadata.ExpiresAt).Sub(now)
}

// Touch registers a read hit at now.
func (r *Record) Touch(now time.Time) {
	r.Metadata.AccessCount++
	r.Metadata.LastAccessedAt = now.UnixMilli()
}

// EncodeRecord serializes the envelope.
func EncodeRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRecord parses an envelope written by EncodeRecord.
func DecodeRecord(raw []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, errors.Join(ErrCorruptRecord, err)
	}
	if r.Metadata.CreatedAt == 0 {
		return Record{}, ErrCorruptRecord
	}
	return r, nil
}
