package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/cryguy/jsbridge/internal/capability"
	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/metrics"
	"github.com/cryguy/jsbridge/internal/runtimeadapter"
)

// Script is one unit of work for an executor. Program, when set, takes
// precedence over Source.
type Script struct {
	Name    string
	Source  string
	Program Program
}

// Result is the outcome of a successful script. Value is the completion
// value converted to a string; undefined and null yield "".
type Result struct {
	Value    string
	Duration time.Duration
}

// Executor runs scripts against one execution environment bound to one
// dispatch thread. Execute and CallFunction must be called on that thread;
// the other methods are safe from any goroutine.
type Executor struct {
	id          string
	engine      string
	rt          core.JSRuntime
	installers  capability.Set
	timeout     TimeoutInvoker
	execTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
	state       atomic.Int32

	refMu    sync.RWMutex
	delegate Delegate
	thread   MessageQueueThread

	// dispatch thread only
	depth   int
	callCtx context.Context
}

// ID returns the executor's unique identifier.
func (e *Executor) ID() string { return e.id }

// Engine returns the engine name backing the executor.
func (e *Executor) Engine() string { return e.engine }

// State returns the current lifecycle state.
func (e *Executor) State() State { return State(e.state.Load()) }

func (e *Executor) refs() (Delegate, MessageQueueThread) {
	e.refMu.RLock()
	defer e.refMu.RUnlock()
	return e.delegate, e.thread
}

// install runs the executor hooks and capability installers exactly once,
// then marks the executor ready.
func (e *Executor) install() error {
	if e.State() != StateConstructed {
		return fmt.Errorf("%w: capabilities already installed", ErrInvalidArgument)
	}
	set := append(capability.Set{bridgeHooks{e}}, e.installers...)
	if err := set.Install(e.rt); err != nil {
		return err
	}
	e.state.Store(int32(StateReady))
	return nil
}

func (e *Executor) enter() error {
	switch e.State() {
	case StateDestroyed:
		return ErrDestroyed
	case StateConstructed:
		return ErrNotReady
	}
	_, thread := e.refs()
	if thread == nil {
		return ErrDestroyed
	}
	if !thread.IsOnThread() {
		return ErrWrongThread
	}
	e.depth++
	if e.depth == 1 {
		// Interrupts left by a watchdog or context that fired after the
		// previous outermost run returned. Nested entries keep them.
		if c, ok := e.rt.(core.InterruptClearer); ok {
			c.ClearInterrupt()
		}
		e.state.Store(int32(StateRunning))
	}
	return nil
}

func (e *Executor) leave() {
	e.depth--
	if e.depth == 0 {
		e.state.CompareAndSwap(int32(StateRunning), int32(StateReady))
	}
}

// Execute evaluates script on the calling goroutine, which must be the
// dispatch thread. Cancelling ctx interrupts the script. Native calls the
// script makes receive ctx.
func (e *Executor) Execute(ctx context.Context, script Script) (*Result, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev := e.callCtx
	e.callCtx = ctx
	defer func() { e.callCtx = prev }()

	rt := e.rt
	var timedOut atomic.Bool
	if e.execTimeout > 0 && e.depth == 1 {
		watchdog := time.AfterFunc(e.execTimeout, func() {
			timedOut.Store(true)
			rt.Interrupt()
		})
		defer watchdog.Stop()
	}
	stop := context.AfterFunc(ctx, rt.Interrupt)
	defer stop()

	start := time.Now()
	value, panicked, err := evaluate(rt, script)
	elapsed := time.Since(start)

	if err != nil {
		serr := &ScriptError{Name: script.Name, Err: err, Timeout: timedOut.Load(), Panic: panicked}
		if ctxErr := ctx.Err(); ctxErr != nil && !serr.Timeout {
			serr.Err = errors.Join(ctxErr, err)
		}
		outcome := metrics.OutcomeError
		if serr.Timeout {
			outcome = metrics.OutcomeTimeout
		}
		e.metrics.ScriptDone(outcome, elapsed)
		e.logger.Debug("script failed", zap.String("script", script.Name), zap.Error(serr))
		return nil, serr
	}
	e.metrics.ScriptDone(metrics.OutcomeOK, elapsed)
	return &Result{Value: value, Duration: elapsed}, nil
}

func evaluate(rt core.JSRuntime, s Script) (value string, panicked any, err error) {
	defer func() {
		if p := recover(); p != nil {
			panicked = p
			err = fmt.Errorf("recovered panic: %v", p)
		}
	}()
	c, compiles := rt.(core.Compiler)
	switch {
	case s.Program != nil:
		if !compiles {
			return "", nil, ErrUnsupported
		}
		value, err = c.RunProgram(s.Program)
	case s.Name != "" && compiles:
		p, cerr := c.Compile(s.Name, s.Source)
		if cerr != nil {
			return "", nil, cerr
		}
		value, err = c.RunProgram(p)
	default:
		value, err = rt.EvalString(s.Source)
	}
	return value, nil, err
}

// ExecuteOnQueue runs Execute on the dispatch thread and waits for it.
func (e *Executor) ExecuteOnQueue(ctx context.Context, script Script) (*Result, error) {
	_, thread := e.refs()
	if thread == nil || e.State() == StateDestroyed {
		return nil, ErrDestroyed
	}
	var (
		res *Result
		err error
	)
	if qerr := thread.RunOnQueueSync(func() { res, err = e.Execute(ctx, script) }); qerr != nil {
		return nil, qerr
	}
	return res, err
}

// Compile prepares src for repeated execution through Script.Program. It
// does not touch the environment and may be called from any goroutine.
func (e *Executor) Compile(name, src string) (Program, error) {
	if e.State() == StateDestroyed {
		return nil, ErrDestroyed
	}
	c, ok := e.rt.(core.Compiler)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot precompile", ErrUnsupported, e.engine)
	}
	return c.Compile(name, src)
}

// CallFunction calls the global function name with JSON-encoded args and
// returns its JSON-encoded result. It has the threading rules of Execute.
func (e *Executor) CallFunction(ctx context.Context, name string, args ...any) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty function name", ErrInvalidArgument)
	}
	if args == nil {
		args = []any{}
	}
	argsJSON, err := sonic.MarshalString(args)
	if err != nil {
		return "", fmt.Errorf("%w: encoding arguments: %v", ErrInvalidArgument, err)
	}
	nameLit, _ := sonic.MarshalString(name)
	argsLit, _ := sonic.MarshalString(argsJSON)
	src := fmt.Sprintf(`(function() {
	var fn = globalThis[%[1]s];
	if (typeof fn !== 'function') throw new TypeError(%[1]s + ' is not a function');
	var out = fn.apply(null, JSON.parse(%[2]s));
	return out === undefined ? 'null' : JSON.stringify(out);
})()`, nameLit, argsLit)

	res, err := e.Execute(ctx, Script{Source: src})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

// Destroy closes the environment on the dispatch thread, then releases the
// delegate and thread. Every later call, Destroy included, returns
// ErrDestroyed. Destroy fails with ErrBusy from inside a running script.
// If the thread has already stopped the environment is closed directly.
func (e *Executor) Destroy() error {
	_, thread := e.refs()
	if thread == nil || e.State() == StateDestroyed {
		return ErrDestroyed
	}
	var err error
	qerr := thread.RunOnQueueSync(func() { err = e.teardown(e.rt.Close) })
	if errors.Is(qerr, ErrThreadStopped) {
		e.logger.Warn("dispatch thread stopped before destroy, closing environment directly")
		return e.teardown(func() error { return runtimeadapter.CloseDetached(e.rt) })
	}
	if qerr != nil {
		return qerr
	}
	return err
}

func (e *Executor) teardown(closeEnv func() error) error {
	if e.depth > 0 {
		return ErrBusy
	}
	if State(e.state.Swap(int32(StateDestroyed))) == StateDestroyed {
		return ErrDestroyed
	}
	err := closeEnv()

	e.refMu.Lock()
	e.delegate = nil
	e.thread = nil
	e.refMu.Unlock()

	e.metrics.ExecutorDestroyed(e.engine)
	e.logger.Debug("executor destroyed")
	if err != nil {
		return fmt.Errorf("closing environment: %w", err)
	}
	return nil
}
