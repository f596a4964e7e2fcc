package jsbridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/cryguy/jsbridge/internal/dispatch"
)

// NativeCall is one invocation of a native module method from script.
// Args arrive JSON-decoded: numbers are float64, objects map[string]any.
type NativeCall struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

func (c NativeCall) String() string {
	if c.Module == "" {
		return c.Method
	}
	return c.Module + "." + c.Method
}

// Delegate receives native-module calls made by script. The executor
// references it until Destroy; it is never owned.
type Delegate interface {
	// CallNativeModules handles a batch flushed by nativeFlushQueueImmediate.
	CallNativeModules(ctx context.Context, calls []NativeCall, isEndOfBatch bool) error
	// CallSerializableNativeHook handles nativeCallSyncHook and returns a
	// JSON-serializable result.
	CallSerializableNativeHook(ctx context.Context, call NativeCall) (any, error)
}

// MessageQueueThread is the dispatch thread an executor is bound to. All
// script execution and native-callback delivery happen on it.
//
// RunOnQueueSync must run task inline when the caller is already on the
// thread. Once stopped, both Run methods return ErrThreadStopped.
type MessageQueueThread interface {
	RunOnQueue(task func()) error
	RunOnQueueSync(task func()) error
	IsOnThread() bool
}

// Thread is the bundled MessageQueueThread: one goroutine locked to its OS
// thread running tasks in submission order.
type Thread = dispatch.Thread

var _ MessageQueueThread = (*Thread)(nil)

// NewThread starts a dispatch thread. logger may be nil.
func NewThread(name string, logger *zap.Logger) *Thread {
	return dispatch.NewThread(name, logger)
}
