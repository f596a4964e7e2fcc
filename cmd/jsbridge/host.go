package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/jsbridge"
)

// HostModule is the native module scripts reach through nativeCallSyncHook.
const HostModule = "Host"

// hostDelegate serves the Host module and logs flushed batches.
type hostDelegate struct {
	logger *zap.Logger
	getenv func(string) string
	now    func() time.Time
}

func newHostDelegate(logger *zap.Logger, getenv func(string) string) *hostDelegate {
	return &hostDelegate{logger: logger, getenv: getenv, now: time.Now}
}

func (h *hostDelegate) CallNativeModules(_ context.Context, calls []jsbridge.NativeCall, isEndOfBatch bool) error {
	for _, call := range calls {
		h.logger.Info("native call", zap.Stringer("call", call), zap.Any("args", call.Args), zap.Bool("endOfBatch", isEndOfBatch))
	}
	return nil
}

func (h *hostDelegate) CallSerializableNativeHook(_ context.Context, call jsbridge.NativeCall) (any, error) {
	if call.Module != HostModule {
		return nil, fmt.Errorf("unknown module %q", call.Module)
	}
	switch call.Method {
	case "now":
		return h.now().UnixMilli(), nil
	case "env":
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("%s: expected 1 argument, got %d", call, len(call.Args))
		}
		name, ok := call.Args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: argument must be a string", call)
		}
		return h.getenv(name), nil
	}
	return nil, fmt.Errorf("unknown method %s", call)
}
