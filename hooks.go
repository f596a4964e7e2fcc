package jsbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/metrics"
)

// Globals the executor installs before any capability.
const (
	FlushQueueHook = "nativeFlushQueueImmediate"
	CallSyncHook   = "nativeCallSyncHook"
)

// bridgeHooks exposes the delegate to script as nativeFlushQueueImmediate
// and nativeCallSyncHook. Values cross the boundary as JSON.
type bridgeHooks struct{ e *Executor }

func (bridgeHooks) Name() string { return "nativeHooks" }

func (h bridgeHooks) Install(rt core.JSRuntime) error {
	for _, name := range []string{FlushQueueHook, CallSyncHook} {
		ok, err := rt.HasGlobal(name)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: %s", core.ErrDuplicateBinding, name)
		}
	}
	if err := rt.RegisterFunc("__jsbridgeFlush", h.e.flushQueue); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__jsbridgeCallSync", h.e.callSync); err != nil {
		return err
	}
	return rt.Eval(hooksJS)
}

const hooksJS = `
(function(flush, callSync) {
	globalThis.nativeFlushQueueImmediate = function(calls) {
		flush(JSON.stringify(calls === undefined ? [] : calls));
	};
	globalThis.nativeCallSyncHook = function(module, method, args) {
		return JSON.parse(callSync(String(module), String(method), JSON.stringify(args === undefined ? [] : args)));
	};
})(globalThis.__jsbridgeFlush, globalThis.__jsbridgeCallSync);
`

func (e *Executor) nativeContext() context.Context {
	if e.callCtx != nil {
		return e.callCtx
	}
	return context.Background()
}

func (e *Executor) flushQueue(callsJSON string) error {
	var calls []NativeCall
	if err := sonic.UnmarshalString(callsJSON, &calls); err != nil {
		return fmt.Errorf("%s: decoding calls: %w", FlushQueueHook, err)
	}
	delegate, _ := e.refs()
	if delegate == nil {
		return ErrDestroyed
	}
	batch := NativeCall{Method: FlushQueueHook, Args: []any{len(calls)}}
	_, err := e.timeout(e.nativeContext(), batch, func(ctx context.Context) (any, error) {
		return nil, delegate.CallNativeModules(ctx, calls, true)
	})
	e.metrics.NativeCall(metrics.KindBatch, callOutcome(err))
	return err
}

func (e *Executor) callSync(module, method, argsJSON string) (string, error) {
	call := NativeCall{Module: module, Method: method}
	if err := sonic.UnmarshalString(argsJSON, &call.Args); err != nil {
		return "", fmt.Errorf("%s: decoding arguments: %w", call, err)
	}
	delegate, _ := e.refs()
	if delegate == nil {
		return "", ErrDestroyed
	}
	value, err := e.timeout(e.nativeContext(), call, func(ctx context.Context) (any, error) {
		return delegate.CallSerializableNativeHook(ctx, call)
	})
	e.metrics.NativeCall(metrics.KindSync, callOutcome(err))
	if err != nil {
		return "", err
	}
	out, err := sonic.MarshalString(value)
	if err != nil {
		return "", fmt.Errorf("%s: encoding result: %w", call, err)
	}
	return out, nil
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrCallAbandoned):
		return metrics.OutcomeAbandoned
	}
	return metrics.OutcomeError
}
