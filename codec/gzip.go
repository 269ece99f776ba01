package codec

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
)

var (
	compressMagic = []byte("CMP1")

	// ErrCorruptCompression is returned when a compressed payload cannot be inflated.
	ErrCorruptCompression = errors.New("codec: corrupt compressed payload")
)

type gzipSerializer struct {
	inner     Serializer
	threshold int
}

// Gzip compresses the output of inner once it is at least threshold bytes.
// Payloads without the compression header are decoded as-is, so values written
// before compression was enabled stay readable.
func Gzip(inner Serializer, threshold int) Serializer {
	if inner == nil {
		inner = JSON{}
	}
	return &gzipSerializer{inner: inner, threshold: threshold}
}

func (g *gzipSerializer) Name() string { return g.inner.Name() + "+gzip" }

func (g *gzipSerializer) Encode(v any) ([]byte, error) {
	raw, err := g.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(raw) < g.threshold {
		return raw, nil
	}
	var buf bytes.Buffer
	buf.Write(compressMagic)
	_ = buf.WriteByte('g')
	zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *gzipSerializer) Decode(b []byte, dst any) error {
	raw, err := inflate(b)
	if err != nil {
		return err
	}
	return g.inner.Decode(raw, dst)
}

func inflate(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 || !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	if in[len(compressMagic)] != 'g' {
		return nil, ErrCorruptCompression
	}
	gr, err := gzip.NewReader(bytes.NewReader(in[len(compressMagic)+1:]))
	if err != nil {
		return nil, ErrCorruptCompression
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, ErrCorruptCompression
	}
	return out, nil
}
