// Package codec provides the value serializers used by the cache orchestrator.
package codec

import (
	"errors"

	json "github.com/goccy/go-json"
)

// Serializer turns cache values into bytes and back.
type Serializer interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, dst any) error
	Name() string
}

// ErrNilDestination is returned when Decode is given a nil target.
var ErrNilDestination = errors.New("codec: nil decode destination")

// JSON serializes with goccy/go-json. The zero value is ready to use.
type JSON struct{}

var _ Serializer = JSON{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Decode(b []byte, dst any) error {
	if dst == nil {
		return ErrNilDestination
	}
	return json.Unmarshal(b, dst)
}
