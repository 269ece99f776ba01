package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/goforj/hybridcache"
)

func TestLoggerWritesAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))}

	l.Debug("cache set", hybridcache.Fields{"key": "user:1", "size": 12})

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if got["level"] != "DEBUG" || got["msg"] != "cache set" {
		t.Fatalf("unexpected record %v", got)
	}
	if got["key"] != "user:1" || got["size"] != float64(12) {
		t.Fatalf("unexpected attrs %v", got)
	}
}
