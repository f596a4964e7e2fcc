package core

import "fmt"

// JSRuntime abstracts the JavaScript engine (goja, QuickJS or V8) behind a
// common interface. It is the execution environment an executor owns: the
// live global context of one engine instance.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// The function's Go types are automatically marshaled to/from JS types.
	// A trailing non-nil error return is thrown into script. Registering a
	// name that is already defined on the global object fails with
	// ErrDuplicateBinding.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// HasGlobal reports whether name is defined on the global object.
	HasGlobal(name string) (bool, error)

	// Interrupt aborts the script currently running. It is the only
	// method that may be called from outside the dispatch thread.
	Interrupt()

	// Close releases the engine instance. The runtime is unusable after.
	Close() error
}

// Program is an engine-specific precompiled script.
type Program interface {
	Name() string
}

// Compiler is an optional interface for runtimes that can compile source
// once and run the result many times.
type Compiler interface {
	Compile(name, src string) (Program, error)
	RunProgram(p Program) (string, error)
}

// InterruptClearer is an optional interface for runtimes whose interrupt
// stays pending until cleared. Executors clear it before the outermost
// script only, so an interrupt aimed at a running script survives nested
// evaluations.
type InterruptClearer interface {
	ClearInterrupt()
}

// definedCheckJS reports whether a global property is defined.
const definedCheckJS = "typeof globalThis[%q] !== 'undefined'"

// DefinedCheck returns JS that evaluates to true when the global name is
// defined. Runtimes share it so HasGlobal agrees across engines.
func DefinedCheck(name string) string {
	return fmt.Sprintf(definedCheckJS, name)
}
