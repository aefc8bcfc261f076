// Package logging wraps logrus behind the small interface the rest of the
// service depends on.
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WithError(err error) *logrus.Entry
	SetLevel(level logrus.Level)
}

type logger struct {
	*logrus.Logger
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	return &logger{Logger: l}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return New(io.Discard, logrus.PanicLevel)
}

// ParseVerbosity maps a verbosity flag value to a level. Numeric and named
// forms are accepted: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace.
// ok is false for "silent", which callers handle by discarding output.
func ParseVerbosity(v string) (level logrus.Level, ok bool, err error) {
	switch v {
	case "0", "silent":
		return logrus.PanicLevel, false, nil
	case "1", "error":
		return logrus.ErrorLevel, true, nil
	case "2", "warn":
		return logrus.WarnLevel, true, nil
	case "3", "info":
		return logrus.InfoLevel, true, nil
	case "4", "debug":
		return logrus.DebugLevel, true, nil
	case "5", "trace":
		return logrus.TraceLevel, true, nil
	default:
		return 0, false, fmt.Errorf("unknown verbosity level %q", v)
	}
}
