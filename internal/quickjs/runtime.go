// Package quickjs provides the QuickJS engine variant backed by
// modernc.org/quickjs.
package quickjs

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"modernc.org/quickjs"

	"github.com/cryguy/jsbridge/internal/core"
)

// Name is the registry name of this engine.
const Name = "quickjs"

func init() {
	core.Register(engine{})
}

type engine struct{}

func (engine) Name() string { return Name }

// NewRuntime creates a QuickJS VM, applying MemoryLimitMB when set.
func (engine) NewRuntime(opts core.Options) (core.JSRuntime, error) {
	memoryLimitMB, err := opts.Config.Int(core.KeyMemoryLimitMB, 0)
	if err != nil {
		return nil, err
	}
	if memoryLimitMB < 0 {
		return nil, &core.ConfigError{Key: core.KeyMemoryLimitMB, Err: fmt.Errorf("must not be negative, got %d", memoryLimitMB)}
	}

	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if memoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(memoryLimitMB) * 1024 * 1024)
	}
	return &qjsRuntime{vm: vm}, nil
}

// qjsRuntime implements core.JSRuntime for the QuickJS engine.
type qjsRuntime struct {
	mu     sync.Mutex // guards vm against Interrupt racing Close
	vm     *quickjs.VM
	closed bool

	// pending outlives the VM's own flag, which every eval resets.
	pending atomic.Bool
}

var _ core.JSRuntime = (*qjsRuntime)(nil)
var _ core.InterruptClearer = (*qjsRuntime)(nil)

var errInterrupted = errors.New("interrupted")

// run evaluates through fn unless an interrupt is pending. An interrupt
// still pending afterwards is re-armed so the enclosing script sees it too.
func (r *qjsRuntime) run(fn func() error) error {
	if r.closed {
		return core.ErrClosed
	}
	if r.pending.Load() {
		return errInterrupted
	}
	err := fn()
	if r.pending.Load() {
		r.vm.Interrupt()
	}
	return err
}

var (
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	undefinedType = reflect.TypeOf(quickjs.Undefined{})
)

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) error {
	return r.run(func() error {
		v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
		if err != nil {
			return err
		}
		v.Free()
		return nil
	})
}

// EvalString evaluates JavaScript and returns the result as a Go string.
// undefined and null yield "".
func (r *qjsRuntime) EvalString(js string) (string, error) {
	var result any
	err := r.run(func() (err error) {
		result, err = r.vm.Eval(js, quickjs.EvalGlobal)
		return err
	})
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *qjsRuntime) EvalBool(js string) (bool, error) {
	var result any
	err := r.run(func() (err error) {
		result, err = r.vm.Eval(js, quickjs.EvalGlobal)
		return err
	})
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Multi-value Go returns (T, error) are automatically unwrapped: on success
// returns T, on error throws a TypeError. This is necessary because the
// QuickJS Go wrapper returns multi-value results as JS arrays. A function
// whose only result is an error is widened to (quickjs.Undefined, error)
// first.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	defined, err := r.HasGlobal(name)
	if err != nil {
		return err
	}
	if defined {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBinding, name)
	}

	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, widenErrorOnly(fn), false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// widenErrorOnly turns func(...) error into func(...) (quickjs.Undefined, error)
// so the error reaches the JS wrapper as the second array element and a
// successful call returns undefined.
func widenErrorOnly(fn any) any {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumOut() != 1 || ft.Out(0) != errorType {
		return fn
	}
	ins := make([]reflect.Type, ft.NumIn())
	for i := range ins {
		ins[i] = ft.In(i)
	}
	wt := reflect.FuncOf(ins, []reflect.Type{undefinedType, errorType}, ft.IsVariadic())
	return reflect.MakeFunc(wt, func(args []reflect.Value) []reflect.Value {
		var out []reflect.Value
		if ft.IsVariadic() {
			out = fv.CallSlice(args)
		} else {
			out = fv.Call(args)
		}
		return []reflect.Value{reflect.ValueOf(quickjs.Undefined{}), out[0]}
	}).Interface()
}

// SetGlobal sets a global property on the VM's global object.
func (r *qjsRuntime) SetGlobal(name string, value any) error {
	if r.closed {
		return core.ErrClosed
	}
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// HasGlobal reports whether name is defined on globalThis.
func (r *qjsRuntime) HasGlobal(name string) (bool, error) {
	return r.EvalBool(core.DefinedCheck(name))
}

// Interrupt aborts the running script. Safe from any goroutine.
func (r *qjsRuntime) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.pending.Store(true)
		r.vm.Interrupt()
	}
}

// ClearInterrupt drops a pending interrupt.
func (r *qjsRuntime) ClearInterrupt() {
	r.pending.Store(false)
}

// Close frees the VM.
func (r *qjsRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrClosed
	}
	r.closed = true
	r.vm.Close()
	return nil
}

// VM returns the underlying QuickJS VM for engine-specific operations.
func (r *qjsRuntime) VM() *quickjs.VM {
	return r.vm
}
