// Package capability installs native functions into the global namespace
// of an execution environment before any user script runs.
package capability

import (
	"fmt"
	"strconv"

	"github.com/cryguy/jsbridge/internal/core"
)

// DefaultLoggingHook is the global name scripts call to log natively.
const DefaultLoggingHook = "nativeLoggingHook"

// Installer registers one capability into an environment. Callers invoke
// Install once per environment; a second call fails with the engine's
// core.ErrDuplicateBinding.
type Installer interface {
	Name() string
	Install(rt core.JSRuntime) error
}

// NativeLogger exposes Logger.Emit to script as Global(message, severity).
type NativeLogger struct {
	Logger core.Logger
	// Global is the global function name. Empty means DefaultLoggingHook.
	Global string
}

// Name returns the global name the capability binds.
func (n NativeLogger) Name() string {
	if n.Global == "" {
		return DefaultLoggingHook
	}
	return n.Global
}

// Install registers the logging function. Sink failures are thrown into
// the calling script. Severity is truncated toward zero in script before it
// reaches Go, so every engine logs 1.7 as 1 and NaN as 0.
func (n NativeLogger) Install(rt core.JSRuntime) error {
	name := n.Name()
	defined, err := rt.HasGlobal(name)
	if err != nil {
		return err
	}
	if defined {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBinding, name)
	}

	logger := n.Logger
	rawName := "__jsbridge_raw_" + name
	if err := rt.RegisterFunc(rawName, func(message string, severity int) error {
		return logger.Emit(message, severity)
	}); err != nil {
		return err
	}
	return rt.Eval(fmt.Sprintf(loggerShimJS, strconv.Quote(rawName), strconv.Quote(name)))
}

const loggerShimJS = `
(function(rawName, name) {
	var raw = globalThis[rawName];
	delete globalThis[rawName];
	globalThis[name] = function(message, severity) {
		raw(String(message), (+severity) | 0);
	};
})(%s, %s);
`

// InstallError reports which capability failed to install.
type InstallError struct {
	Capability string
	Err        error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("installing %s: %v", e.Capability, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// Set is an ordered list of installers applied as one unit.
type Set []Installer

// Install runs each installer in order and stops at the first failure,
// returned as an *InstallError.
func (s Set) Install(rt core.JSRuntime) error {
	for _, inst := range s {
		if err := inst.Install(rt); err != nil {
			return &InstallError{Capability: inst.Name(), Err: err}
		}
	}
	return nil
}

// Names lists the installers' names in installation order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, inst := range s {
		names[i] = inst.Name()
	}
	return names
}
