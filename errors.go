package jsbridge

import (
	"errors"
	"fmt"

	"github.com/cryguy/jsbridge/internal/capability"
	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/dispatch"
)

var (
	// ErrDestroyed is returned by every operation on a destroyed executor.
	ErrDestroyed = errors.New("jsbridge: executor destroyed")

	// ErrNotReady is returned when an executor is used before its
	// capabilities are installed.
	ErrNotReady = errors.New("jsbridge: executor not ready")

	// ErrBusy is returned by Destroy when called from inside a running
	// script.
	ErrBusy = errors.New("jsbridge: executor is running a script")

	// ErrInvalidArgument reports a nil or malformed argument.
	ErrInvalidArgument = errors.New("jsbridge: invalid argument")

	// ErrUnsupported is returned when the engine lacks an optional feature.
	ErrUnsupported = errors.New("jsbridge: not supported by engine")

	// ErrCallAbandoned is returned to script when the timeout policy gives
	// up on a native call.
	ErrCallAbandoned = errors.New("jsbridge: native call abandoned")

	// ErrThreadStopped is what a MessageQueueThread returns once it no
	// longer accepts tasks.
	ErrThreadStopped = dispatch.ErrStopped

	ErrWrongThread      = core.ErrWrongThread
	ErrDuplicateBinding = core.ErrDuplicateBinding
	ErrUnknownEngine    = core.ErrUnknownEngine
)

// ConfigError reports a malformed or unusable configuration value.
type ConfigError = core.ConfigError

// InstallError reports the capability whose installation failed.
type InstallError = capability.InstallError

// ScriptError is a failed script evaluation. Timeout is set when the
// execution watchdog interrupted the script; Panic holds a value recovered
// from a panicking native binding.
type ScriptError struct {
	Name    string
	Err     error
	Timeout bool
	Panic   any
}

func (e *ScriptError) Error() string {
	name := e.Name
	if name == "" {
		name = "script"
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: execution timed out: %v", name, e.Err)
	case e.Panic != nil:
		return fmt.Sprintf("%s: panic: %v", name, e.Panic)
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
