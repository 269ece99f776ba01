package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes with vmihailenco/msgpack/v5. The zero value is ready to use.
// Use `msgpack:"name"` tags for explicit field control.
type Msgpack struct{}

var _ Serializer = Msgpack{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack) Decode(b []byte, dst any) error {
	if dst == nil {
		return ErrNilDestination
	}
	return msgpack.Unmarshal(b, dst)
}
