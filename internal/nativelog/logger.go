// Package nativelog bridges script-space log calls to the host's native
// log transport.
package nativelog

import (
	"errors"

	"github.com/cryguy/jsbridge/internal/core"
)

// ErrNoSink is returned by Emit when the Logger has no sink.
var ErrNoSink = errors.New("nativelog: no sink")

// Sink is the host's native log transport.
type Sink interface {
	Log(message string, severity int) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(message string, severity int) error

// Log calls f(message, severity).
func (f SinkFunc) Log(message string, severity int) error {
	return f(message, severity)
}

// Logger forwards log lines to a single native sink. It holds no state
// beyond the sink, so one Logger is shared by the engine and by the
// script-visible logging binding of an executor.
type Logger struct {
	sink Sink
}

var _ core.Logger = (*Logger)(nil)

// New returns a Logger bound to sink.
func New(sink Sink) *Logger {
	return &Logger{sink: sink}
}

// Emit forwards message and severity to the sink unchanged. Errors from the
// sink are returned as is.
func (l *Logger) Emit(message string, severity int) error {
	if l == nil || l.sink == nil {
		return ErrNoSink
	}
	return l.sink.Log(message, severity)
}
