// Package filecache provides the persistent on-device storage: one file per
// key inside a directory, written atomically so readers never see partial records.
package filecache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goforj/hybridcache/cachecore"
)

const fileExt = ".cache"

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

// fileRecordMagic prefixes each file. The header carries the original key so
// Keys can be answered without a side index.
var fileRecordMagic = []byte("HCF1")

// ErrCorruptFile is returned when a file in the cache directory lacks a valid header.
var ErrCorruptFile = errors.New("filecache: corrupt file")

// Config configures the file storage.
type Config struct {
	// Dir holds the cache files. Defaults to <os.TempDir>/hybridcache.
	Dir string
}

type store struct {
	dir string
}

// New builds a file storage rooted at cfg.Dir. The directory is created lazily
// by Probe and Write.
func New(cfg Config) cachecore.Storage {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "hybridcache")
	}
	return &store{dir: dir}
}

func (s *store) Kind() cachecore.Kind { return cachecore.KindPersistent }

// Probe creates the directory and verifies it is writable.
func (s *store) Probe(context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := createTempFile(s.dir, "probe-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

func (s *store) Read(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stored, value, err := decodeFile(data)
	if err != nil {
		return nil, false, err
	}
	if stored != key {
		// sha256 collision or a foreign file; treat as absent.
		return nil, false, nil
	}
	return value, true, nil
}

func (s *store) Write(_ context.Context, key string, raw []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := createTempFile(s.dir, "tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	header := make([]byte, len(fileRecordMagic)+4, len(fileRecordMagic)+4+len(key))
	copy(header, fileRecordMagic)
	binary.BigEndian.PutUint32(header[len(fileRecordMagic):], uint32(len(key)))
	header = append(header, key...)

	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := renameFile(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Keys lists the keys of every readable file. Corrupt files are removed.
func (s *store) Keys(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		key, _, err := decodeFile(data)
		if err != nil {
			_ = os.Remove(path)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *store) Flush(context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *store) Close() error { return nil }

func (s *store) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileExt)
}

func decodeFile(data []byte) (string, []byte, error) {
	n := len(fileRecordMagic)
	if len(data) < n+4 || !bytes.Equal(data[:n], fileRecordMagic) {
		return "", nil, ErrCorruptFile
	}
	keyLen := int(binary.BigEndian.Uint32(data[n : n+4]))
	if len(data) < n+4+keyLen {
		return "", nil, fmt.Errorf("%w: truncated key", ErrCorruptFile)
	}
	key := string(data[n+4 : n+4+keyLen])
	return key, data[n+4+keyLen:], nil
}
