// Package zap adapts go.uber.org/zap to hybridcache.Logger.
package zap

import (
	"github.com/goforj/hybridcache"
	"go.uber.org/zap"
)

var _ hybridcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f hybridcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f hybridcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f hybridcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f hybridcache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f hybridcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
