//go:build v8

// Package v8engine provides the V8 engine variant backed by
// github.com/tommie/v8go. It is compiled only with the v8 build tag.
package v8engine

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	v8 "github.com/tommie/v8go"

	"github.com/cryguy/jsbridge/internal/core"
)

// Name is the registry name of this engine.
const Name = "v8"

func init() {
	core.Register(engine{})
}

type engine struct{}

func (engine) Name() string { return Name }

// NewRuntime creates an isolate and context. MemoryLimitMB caps the heap
// through V8 resource constraints.
func (engine) NewRuntime(opts core.Options) (core.JSRuntime, error) {
	memoryLimitMB, err := opts.Config.Int(core.KeyMemoryLimitMB, 0)
	if err != nil {
		return nil, err
	}
	if memoryLimitMB < 0 {
		return nil, &core.ConfigError{Key: core.KeyMemoryLimitMB, Err: fmt.Errorf("must not be negative, got %d", memoryLimitMB)}
	}

	var iso *v8.Isolate
	if memoryLimitMB > 0 {
		heapSize := uint64(memoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	return &v8Runtime{iso: iso, ctx: ctx}, nil
}

// v8Runtime implements core.JSRuntime for the V8 engine.
type v8Runtime struct {
	mu     sync.Mutex // guards iso against Interrupt racing Close
	iso    *v8.Isolate
	ctx    *v8.Context
	closed bool
}

var _ core.JSRuntime = (*v8Runtime)(nil)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func (r *v8Runtime) run(js, origin string) (*v8.Value, error) {
	if r.closed {
		return nil, core.ErrClosed
	}
	return r.ctx.RunScript(js, origin)
}

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.run(js, "eval.js")
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
// undefined and null yield "".
func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.run(js, "eval_string.js")
	if err != nil {
		return "", err
	}
	if val == nil || val.IsUndefined() || val.IsNull() {
		return "", nil
	}
	return val.String(), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *v8Runtime) EvalBool(js string) (bool, error) {
	val, err := r.run(js, "eval_bool.js")
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}
	return val.Boolean(), nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Uses reflection to inspect the Go function's signature and creates a
// V8 FunctionTemplate that marshals arguments and return values.
//
// Supported Go function signatures:
//   - func(args...): no return, JS function returns undefined
//   - func(args...) T: single return, JS function returns T
//   - func(args...) error: throws on error, otherwise returns undefined
//   - func(args...) (T, error): on success returns T, on error throws
//
// Supported argument and return types: string, int, int64, float64, bool
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("RegisterFunc: expected function, got %T", fn)
	}
	defined, err := r.HasGlobal(name)
	if err != nil {
		return err
	}
	if defined {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBinding, name)
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()

		if len(args) < fnType.NumIn() {
			return r.throw(fmt.Sprintf("%s requires at least %d argument(s), got %d", name, fnType.NumIn(), len(args)))
		}

		goArgs := make([]reflect.Value, fnType.NumIn())
		for i := 0; i < fnType.NumIn(); i++ {
			goArgs[i] = jsToGoArg(args[i], fnType.In(i))
		}

		results := fnVal.Call(goArgs)

		switch fnType.NumOut() {
		case 0:
			return nil
		case 1:
			if fnType.Out(0) == errorType {
				if !results[0].IsNil() {
					return r.throw(fmt.Sprintf("calling %s: %s", name, results[0].Interface().(error).Error()))
				}
				return nil
			}
			return goToJSValue(r.iso, results[0])
		case 2:
			errVal := results[1]
			if !errVal.IsNil() {
				return r.throw(fmt.Sprintf("calling %s: %s", name, errVal.Interface().(error).Error()))
			}
			return goToJSValue(r.iso, results[0])
		default:
			return nil
		}
	})

	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

func (r *v8Runtime) throw(msg string) *v8.Value {
	jsMsg, _ := v8.NewValue(r.iso, msg)
	return r.iso.ThrowException(jsMsg)
}

// SetGlobal sets a global variable on the JS context.
func (r *v8Runtime) SetGlobal(name string, value any) error {
	if r.closed {
		return core.ErrClosed
	}
	jsVal, err := goAnyToJSValue(r.iso, r.ctx, value)
	if err != nil {
		return fmt.Errorf("converting value for %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, jsVal)
}

// HasGlobal reports whether name is defined on globalThis.
func (r *v8Runtime) HasGlobal(name string) (bool, error) {
	return r.EvalBool(core.DefinedCheck(name))
}

// Interrupt terminates the running script. Safe from any goroutine.
func (r *v8Runtime) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.iso.TerminateExecution()
	}
}

// Close closes the context and disposes the isolate.
func (r *v8Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrClosed
	}
	r.closed = true
	r.ctx.Close()
	r.iso.Dispose()
	return nil
}

// Iso returns the underlying V8 isolate for engine-specific operations.
func (r *v8Runtime) Iso() *v8.Isolate {
	return r.iso
}

// jsToGoArg converts a V8 value to a Go reflect.Value of the expected type.
func jsToGoArg(val *v8.Value, targetType reflect.Type) reflect.Value {
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(val.String())
	case reflect.Int:
		return reflect.ValueOf(int(val.Integer()))
	case reflect.Int64:
		return reflect.ValueOf(val.Integer())
	case reflect.Float64:
		return reflect.ValueOf(val.Number())
	case reflect.Bool:
		return reflect.ValueOf(val.Boolean())
	default:
		return reflect.Zero(targetType)
	}
}

// goToJSValue converts a Go reflect.Value to a V8 value.
func goToJSValue(iso *v8.Isolate, val reflect.Value) *v8.Value {
	if !val.IsValid() {
		return nil
	}
	switch val.Kind() {
	case reflect.String:
		v, _ := v8.NewValue(iso, val.String())
		return v
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		v, _ := newIntValue(iso, val.Int())
		return v
	case reflect.Float64, reflect.Float32:
		v, _ := v8.NewValue(iso, val.Float())
		return v
	case reflect.Bool:
		v, _ := v8.NewValue(iso, val.Bool())
		return v
	default:
		return nil
	}
}

// newIntValue keeps n exact up to 2^53: values outside int32 become
// numbers rather than wrapping.
func newIntValue(iso *v8.Isolate, n int64) (*v8.Value, error) {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return v8.NewValue(iso, int32(n))
	}
	return v8.NewValue(iso, float64(n))
}

// goAnyToJSValue converts a Go any value to a V8 value.
func goAnyToJSValue(iso *v8.Isolate, ctx *v8.Context, value any) (*v8.Value, error) {
	if value == nil {
		return v8.Undefined(iso), nil
	}

	switch v := value.(type) {
	case string:
		return v8.NewValue(iso, v)
	case int:
		return newIntValue(iso, int64(v))
	case int32:
		return v8.NewValue(iso, v)
	case int64:
		return newIntValue(iso, v)
	case float64:
		return v8.NewValue(iso, v)
	case bool:
		return v8.NewValue(iso, v)
	case *v8.Value:
		return v, nil
	case *v8.Object:
		return v.Value, nil
	default:
		// For complex types, serialize to JSON and parse in JS.
		data, err := sonic.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshaling value: %w", err)
		}
		script := fmt.Sprintf("JSON.parse(%s)", strconv.Quote(string(data)))
		return ctx.RunScript(script, "set_global.js")
	}
}
