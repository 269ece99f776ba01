// Package zerolog adapts github.com/rs/zerolog to hybridcache.Logger.
package zerolog

import (
	"github.com/goforj/hybridcache"
	"github.com/rs/zerolog"
)

var _ hybridcache.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f hybridcache.Fields) { write(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f hybridcache.Fields)  { write(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f hybridcache.Fields)  { write(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f hybridcache.Fields) { write(z.L.Error(), msg, f) }

func write(ev *zerolog.Event, msg string, f hybridcache.Fields) {
	if ev == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			ev = ev.AnErr(k, err)
			continue
		}
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
