// Package log provides the leveled, structured logger the pipeline
// components use. Debug logging is switched on with the SVXLINK_DEBUG
// environment variable.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("SVXLINK_DEBUG"))
	if err != nil {
		debug = false
	}
}

// Logger is a leveled logger carrying a set of structured fields.
// Components derive a scoped logger with WithField and keep it for their
// lifetime, so every line they emit names its origin.
type Logger struct {
	entry *logrus.Entry
}

// GetLogger returns a new logger instance.
func GetLogger() *Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// WithField returns a logger that adds the field to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger that adds the fields to every entry.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}
