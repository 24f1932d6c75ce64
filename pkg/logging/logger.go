// Package logging provides the SDK's structured logger, a thin wrapper
// around logrus matching infrastructure/logging in the service-layer
// codebase this SDK's ambient stack is grounded on.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey namespaces values this package reads out of a context.Context.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	ClientIDKey ContextKey = "client_id"
)

// Logger wraps logrus.Logger with SDK-component tagging.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a Logger for component at the given level ("debug"..."error")
// and format ("json" or "text").
func New(component, level, format string) *Logger {
	base := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	base.SetOutput(os.Stdout)

	return &Logger{Logger: base, component: component}
}

// NewFromEnv builds a Logger from POLARIS_LOG_LEVEL / POLARIS_LOG_FORMAT,
// defaulting to info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("POLARIS_LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("POLARIS_LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext pulls a trace id, if present, into the returned entry.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if clientID := ctx.Value(ClientIDKey); clientID != nil {
		entry = entry.WithField("client_id", clientID)
	}
	return entry
}

// WithFields tags component plus the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError tags component plus err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

var (
	globalOnce sync.Once
	global     *Logger
)

// Global returns the process-wide logger, initializing it exactly once.
// Per DESIGN NOTES §9, this uses an idempotent sync.Once rather than a
// CAS-based atomic install.
func Global() *Logger {
	globalOnce.Do(func() {
		global = NewFromEnv("polaris-go")
	})
	return global
}

// SetGlobal overrides the process-wide logger. Intended for test setup and
// applications embedding the SDK that want a shared sink; safe to call
// before Global() is otherwise used.
func SetGlobal(l *Logger) {
	globalOnce.Do(func() {})
	global = l
}
