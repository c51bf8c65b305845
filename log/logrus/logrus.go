// Package logrus adapts a logrus entry to rescache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f rescache.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f rescache.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f rescache.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f rescache.Fields) { l.entry(f).Error(msg) }

// entry maps an "err" error field onto logrus' own error key.
func (l Logger) entry(f rescache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
