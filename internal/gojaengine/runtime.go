// Package gojaengine provides the pure-Go goja engine variant.
package gojaengine

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/nativelog"
)

// Name is the registry name of this engine.
const Name = "goja"

func init() {
	core.Register(engine{})
}

type engine struct{}

func (engine) Name() string { return Name }

// NewRuntime creates a goja VM configured from opts. goja has no heap
// limit, so a MemoryLimitMB setting is reported through the logger and
// otherwise ignored.
func (engine) NewRuntime(opts core.Options) (core.JSRuntime, error) {
	stack, err := opts.Config.Int(core.KeyMaxCallStackSize, 0)
	if err != nil {
		return nil, err
	}
	if stack < 0 {
		return nil, &core.ConfigError{Key: core.KeyMaxCallStackSize, Err: fmt.Errorf("must not be negative, got %d", stack)}
	}
	memLimit, err := opts.Config.Int(core.KeyMemoryLimitMB, 0)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if stack > 0 {
		vm.SetMaxCallStackSize(stack)
	}
	if memLimit > 0 && opts.Logger != nil {
		if err := opts.Logger.Emit(fmt.Sprintf("goja: %s=%d is not enforced", core.KeyMemoryLimitMB, memLimit), nativelog.SeverityWarn); err != nil {
			return nil, fmt.Errorf("logging engine warning: %w", err)
		}
	}
	return &gojaRuntime{vm: vm, iv: vm}, nil
}

// gojaRuntime implements core.JSRuntime for goja.
type gojaRuntime struct {
	vm *goja.Runtime
	iv *goja.Runtime // never cleared; Interrupt reads it off-thread
}

var _ core.JSRuntime = (*gojaRuntime)(nil)
var _ core.Compiler = (*gojaRuntime)(nil)
var _ core.InterruptClearer = (*gojaRuntime)(nil)

func (r *gojaRuntime) run(js string) (goja.Value, error) {
	if r.vm == nil {
		return nil, core.ErrClosed
	}
	return r.vm.RunString(js)
}

// Eval evaluates JavaScript and discards the result.
func (r *gojaRuntime) Eval(js string) error {
	_, err := r.run(js)
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
// undefined and null yield "".
func (r *gojaRuntime) EvalString(js string) (string, error) {
	v, err := r.run(js)
	if err != nil {
		return "", err
	}
	return valueString(v), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *gojaRuntime) EvalBool(js string) (bool, error) {
	v, err := r.run(js)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	return v.ToBoolean(), nil
}

// RegisterFunc binds fn under name. goja converts arguments by reflection
// and throws a trailing non-nil error as a GoError.
func (r *gojaRuntime) RegisterFunc(name string, fn any) error {
	defined, err := r.HasGlobal(name)
	if err != nil {
		return err
	}
	if defined {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBinding, name)
	}
	return r.vm.Set(name, fn)
}

// SetGlobal sets a global property on the VM.
func (r *gojaRuntime) SetGlobal(name string, value any) error {
	if r.vm == nil {
		return core.ErrClosed
	}
	return r.vm.Set(name, value)
}

// HasGlobal reports whether name is defined on globalThis.
func (r *gojaRuntime) HasGlobal(name string) (bool, error) {
	return r.EvalBool(core.DefinedCheck(name))
}

// Interrupt aborts the running script. Safe from any goroutine.
func (r *gojaRuntime) Interrupt() {
	r.iv.Interrupt("execution interrupted")
}

// ClearInterrupt drops a pending interrupt. Until it is called, an
// interrupt that arrived after the last run returned aborts the next one,
// nested runs included.
func (r *gojaRuntime) ClearInterrupt() {
	r.iv.ClearInterrupt()
}

// Close drops the VM; goja memory is reclaimed by the Go GC.
func (r *gojaRuntime) Close() error {
	if r.vm == nil {
		return core.ErrClosed
	}
	r.vm = nil
	return nil
}

// program wraps a compiled goja program.
type program struct {
	name string
	p    *goja.Program
}

func (p *program) Name() string { return p.name }

// Compile parses and compiles src without running it.
func (r *gojaRuntime) Compile(name, src string) (core.Program, error) {
	p, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, err
	}
	return &program{name: name, p: p}, nil
}

// RunProgram runs a program produced by Compile and returns its result as
// a string.
func (r *gojaRuntime) RunProgram(p core.Program) (string, error) {
	if r.vm == nil {
		return "", core.ErrClosed
	}
	gp, ok := p.(*program)
	if !ok {
		return "", fmt.Errorf("goja: cannot run program of type %T", p)
	}
	v, err := r.vm.RunProgram(gp.p)
	if err != nil {
		return "", err
	}
	return valueString(v), nil
}

func valueString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
