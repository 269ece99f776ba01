// Package logrus adapts github.com/sirupsen/logrus to hybridcache.Logger.
package logrus

import (
	"github.com/goforj/hybridcache"
	"github.com/sirupsen/logrus"
)

var _ hybridcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f hybridcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l Logger) Info(msg string, f hybridcache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f hybridcache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f hybridcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
