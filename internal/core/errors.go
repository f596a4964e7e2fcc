package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateBinding is returned when a native binding is registered
	// under a global name that already exists.
	ErrDuplicateBinding = errors.New("duplicate global binding")

	// ErrWrongThread is returned when the execution environment is touched
	// from a goroutine other than its dispatch thread.
	ErrWrongThread = errors.New("execution environment used off its dispatch thread")

	// ErrUnknownEngine is returned by Lookup for unregistered names.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrClosed is returned by runtimes after Close.
	ErrClosed = errors.New("runtime closed")
)

// ConfigError reports a malformed or unusable configuration value.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
