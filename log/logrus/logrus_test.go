package logrus

import (
	"testing"

	"github.com/goforj/hybridcache"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLoggerWritesFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := Logger{E: logrus.NewEntry(base)}

	l.Info("cache backend unavailable", hybridcache.Fields{"backend": "database"})
	l.Error("cache sync publish failed", nil)

	if len(hook.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hook.Entries))
	}
	first := hook.Entries[0]
	if first.Level != logrus.InfoLevel || first.Data["backend"] != "database" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if hook.LastEntry().Level != logrus.ErrorLevel {
		t.Fatalf("unexpected last level %v", hook.LastEntry().Level)
	}
}
