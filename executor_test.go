package jsbridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/jsbridge/internal/capability"
	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/metrics"
)

type logLine struct {
	message  string
	severity int
}

type recordingSink struct {
	mu    sync.Mutex
	lines []logLine
}

func (s *recordingSink) Log(message string, severity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, logLine{message, severity})
	return nil
}

func (s *recordingSink) Lines() []logLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logLine(nil), s.lines...)
}

type testDelegate struct {
	mu      sync.Mutex
	batches [][]NativeCall
	ends    []bool
	calls   []NativeCall

	batchErr error
	onSync   func(ctx context.Context, call NativeCall) (any, error)
}

func (d *testDelegate) CallNativeModules(_ context.Context, calls []NativeCall, isEndOfBatch bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, calls)
	d.ends = append(d.ends, isEndOfBatch)
	return d.batchErr
}

func (d *testDelegate) CallSerializableNativeHook(ctx context.Context, call NativeCall) (any, error) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	onSync := d.onSync
	d.mu.Unlock()
	if onSync == nil {
		return nil, nil
	}
	return onSync(ctx, call)
}

func newTestThread(t *testing.T) *Thread {
	t.Helper()
	th := NewThread(t.Name(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = th.Quit(ctx)
	})
	return th
}

func newTestExecutor(t *testing.T, d Delegate, opts ...Option) (*Executor, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	opts = append([]Option{WithEngine("goja"), WithSink(sink)}, opts...)
	e, err := CreateExecutor(Config{}, d, newTestThread(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Destroy() })
	return e, sink
}

func run(t *testing.T, e *Executor, src string) string {
	t.Helper()
	res, err := e.ExecuteOnQueue(context.Background(), Script{Source: src})
	require.NoError(t, err)
	return res.Value
}

func TestCreateExecutor_EndToEnd(t *testing.T) {
	for _, engine := range []string{"goja", "quickjs"} {
		t.Run(engine, func(t *testing.T) {
			cacheDir := filepath.Join(t.TempDir(), "cache")
			sink := &recordingSink{}
			e, err := CreateExecutor(Config{"CacheDirectory": cacheDir}, &testDelegate{}, newTestThread(t),
				WithEngine(engine), WithSink(sink), WithLoggingHookName("nativeLog"))
			require.NoError(t, err)
			assert.Equal(t, StateReady, e.State())
			assert.Equal(t, engine, e.Engine())
			assert.NotEmpty(t, e.ID())

			info, err := os.Stat(cacheDir)
			require.NoError(t, err)
			assert.True(t, info.IsDir())

			_, err = e.ExecuteOnQueue(context.Background(), Script{Source: `nativeLog("x", 1)`})
			require.NoError(t, err)
			assert.Equal(t, []logLine{{"x", 1}}, sink.Lines())

			require.NoError(t, e.Destroy())
			assert.Equal(t, StateDestroyed, e.State())

			_, err = e.ExecuteOnQueue(context.Background(), Script{Source: `1`})
			assert.ErrorIs(t, err, ErrDestroyed)
			_, err = e.Execute(context.Background(), Script{Source: `1`})
			assert.ErrorIs(t, err, ErrDestroyed)
			assert.ErrorIs(t, e.Destroy(), ErrDestroyed)
			assert.Len(t, sink.Lines(), 1)
		})
	}
}

func TestExecutor_LogOrderPreserved(t *testing.T) {
	e, sink := newTestExecutor(t, &testDelegate{})

	run(t, e, `nativeLoggingHook("A", 1); nativeLoggingHook("B", 2); nativeLoggingHook("hello", 2);`)

	assert.Equal(t, []logLine{{"A", 1}, {"B", 2}, {"hello", 2}}, sink.Lines())
}

func TestExecutor_SinkErrorReachesScript(t *testing.T) {
	failing := SinkFunc(func(string, int) error { return errors.New("sink down") })
	e, err := CreateExecutor(Config{}, &testDelegate{}, newTestThread(t), WithEngine("goja"), WithSink(failing))
	require.NoError(t, err)
	defer e.Destroy()

	got := run(t, e, `try { nativeLoggingHook("x", 1); "no" } catch (err) { String(err) }`)
	assert.Contains(t, got, "sink down")
}

func TestCreateExecutor_InvalidArguments(t *testing.T) {
	_, err := CreateExecutor(Config{}, nil, newTestThread(t), WithEngine("goja"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = CreateExecutor(Config{}, &testDelegate{}, nil, WithEngine("goja"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewFactory_UnknownEngine(t *testing.T) {
	_, err := NewFactory(Config{}, WithEngine("spidermonkey"))
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestNewFactory_NegativeExecutionTimeout(t *testing.T) {
	_, err := NewFactory(Config{}, WithExecutionTimeout(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewFactory_Defaults(t *testing.T) {
	f, err := NewFactory(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultEngine(), f.Engine())
	assert.Contains(t, Engines(), DefaultEngine())
	assert.Contains(t, Engines(), "goja")
}

func TestCreateExecutor_ConfigErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"cache path is a file", Config{"CacheDirectory": file}},
		{"cache path wrong type", Config{"CacheDirectory": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := CreateExecutor(tt.cfg, &testDelegate{}, newTestThread(t), WithEngine("goja"))
			require.Error(t, err)
			assert.Nil(t, e)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "CacheDirectory", cfgErr.Key)

			var instErr *InstallError
			assert.False(t, errors.As(err, &instErr))
		})
	}
}

func TestFactory_CapturesConfigCopy(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := Config{}
	f, err := NewFactory(cfg, WithEngine("goja"))
	require.NoError(t, err)
	cfg["CacheDirectory"] = file

	e, err := f.CreateExecutor(&testDelegate{}, newTestThread(t))
	require.NoError(t, err)
	assert.NoError(t, e.Destroy())
}

// leakCheck fails installation after recording the environment it got.
type leakCheck struct {
	rt core.JSRuntime
}

func (l *leakCheck) Name() string { return "leakCheck" }

func (l *leakCheck) Install(rt core.JSRuntime) error {
	l.rt = rt
	return rt.RegisterFunc("nativeLoggingHook", func() {})
}

func TestCreateExecutor_InstallFailureIsAtomic(t *testing.T) {
	th := newTestThread(t)
	check := &leakCheck{}

	e, err := CreateExecutor(Config{}, &testDelegate{}, th, WithEngine("goja"), WithInstallers(check))
	require.Error(t, err)
	assert.Nil(t, e)

	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, "leakCheck", instErr.Capability)
	assert.ErrorIs(t, err, ErrDuplicateBinding)

	require.NotNil(t, check.rt)
	var evalErr error
	require.NoError(t, th.RunOnQueueSync(func() { evalErr = check.rt.Eval("1") }))
	assert.ErrorIs(t, evalErr, core.ErrClosed)
}

type panickingInstaller struct {
	rt core.JSRuntime
}

func (p *panickingInstaller) Name() string { return "panicking" }

func (p *panickingInstaller) Install(rt core.JSRuntime) error {
	p.rt = rt
	panic("installer bug")
}

func TestCreateExecutor_InstallPanicClosesEnvironment(t *testing.T) {
	th := newTestThread(t)
	inst := &panickingInstaller{}

	e, err := CreateExecutor(Config{}, &testDelegate{}, th, WithEngine("goja"), WithInstallers(inst))
	require.Error(t, err)
	assert.Nil(t, e)
	assert.Contains(t, err.Error(), "installer bug")

	require.NotNil(t, inst.rt)
	var evalErr error
	require.NoError(t, th.RunOnQueueSync(func() { evalErr = inst.rt.Eval("1") }))
	assert.ErrorIs(t, evalErr, core.ErrClosed)

	// The thread survives the panic.
	e2, err := CreateExecutor(Config{}, &testDelegate{}, th, WithEngine("goja"))
	require.NoError(t, err)
	require.NoError(t, e2.Destroy())
}

func TestCreateExecutor_HookCollisionWithCustomName(t *testing.T) {
	_, err := CreateExecutor(Config{}, &testDelegate{}, newTestThread(t),
		WithEngine("goja"), WithLoggingHookName(CallSyncHook))
	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, CallSyncHook, instErr.Capability)
	assert.ErrorIs(t, err, ErrDuplicateBinding)
}

func TestExecutor_InstallTwiceRejected(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})

	_, thread := e.refs()
	var err error
	require.NoError(t, thread.RunOnQueueSync(func() {
		err = capability.NativeLogger{Logger: nil}.Install(e.rt)
	}))
	assert.ErrorIs(t, err, ErrDuplicateBinding)
}

func TestExecutor_ExecuteOffThread(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})

	_, err := e.Execute(context.Background(), Script{Source: `1`})
	assert.ErrorIs(t, err, ErrWrongThread)

	_, err = e.CallFunction(context.Background(), "Math.max")
	assert.ErrorIs(t, err, ErrWrongThread)
}

func TestExecutor_ScriptErrorKeepsThreadAlive(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})

	_, err := e.ExecuteOnQueue(context.Background(), Script{Name: "bad.js", Source: `throw new Error("kaboom")`})
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "bad.js", scriptErr.Name)
	assert.False(t, scriptErr.Timeout)
	assert.Contains(t, err.Error(), "kaboom")

	assert.Equal(t, "2", run(t, e, `1 + 1`))
	assert.Equal(t, StateReady, e.State())
}

func TestExecutor_NativeCallSyncHook(t *testing.T) {
	d := &testDelegate{onSync: func(_ context.Context, call NativeCall) (any, error) {
		return map[string]any{"module": call.Module, "n": len(call.Args)}, nil
	}}
	e, _ := newTestExecutor(t, d)

	got := run(t, e, `var r = nativeCallSyncHook("Host", "now", [1, "a"]); r.module + ":" + r.n`)
	assert.Equal(t, "Host:2", got)

	require.Len(t, d.calls, 1)
	assert.Equal(t, NativeCall{Module: "Host", Method: "now", Args: []any{float64(1), "a"}}, d.calls[0])
	assert.Equal(t, "Host.now", d.calls[0].String())
}

func TestExecutor_NativeCallFailureThrown(t *testing.T) {
	d := &testDelegate{onSync: func(context.Context, NativeCall) (any, error) {
		return nil, errors.New("boom")
	}}
	e, _ := newTestExecutor(t, d)

	got := run(t, e, `try { nativeCallSyncHook("M", "m"); "no" } catch (err) { String(err) }`)
	assert.Contains(t, got, "boom")

	_, err := e.ExecuteOnQueue(context.Background(), Script{Source: `nativeCallSyncHook("M", "m")`})
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Contains(t, err.Error(), "boom")
}

func TestExecutor_FlushQueue(t *testing.T) {
	d := &testDelegate{}
	e, _ := newTestExecutor(t, d)

	run(t, e, `nativeFlushQueueImmediate([{module: "UI", method: "render", args: [1, {a: true}]}, {module: "Log", method: "x"}])`)

	require.Len(t, d.batches, 1)
	assert.Equal(t, []NativeCall{
		{Module: "UI", Method: "render", Args: []any{float64(1), map[string]any{"a": true}}},
		{Module: "Log", Method: "x"},
	}, d.batches[0])
	assert.Equal(t, []bool{true}, d.ends)

	d.batchErr = errors.New("queue rejected")
	got := run(t, e, `try { nativeFlushQueueImmediate([]); "no" } catch (err) { String(err) }`)
	assert.Contains(t, got, "queue rejected")
}

func TestExecutor_DeadlineTimeoutAbandonsCall(t *testing.T) {
	d := &testDelegate{onSync: func(ctx context.Context, _ NativeCall) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	reg := prometheus.NewRegistry()
	e, _ := newTestExecutor(t, d, WithTimeoutInvoker(DeadlineTimeoutInvoker(20*time.Millisecond)), WithMetrics(reg))

	got := run(t, e, `try { nativeCallSyncHook("Slow", "wait", []); "no" } catch (err) { String(err) }`)
	assert.Contains(t, got, "abandoned")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.NativeCalls.WithLabelValues(metrics.KindSync, metrics.OutcomeAbandoned)))
}

func TestDeadlineTimeoutInvoker_PassesResult(t *testing.T) {
	invoke := DeadlineTimeoutInvoker(time.Second)
	v, err := invoke(context.Background(), NativeCall{Module: "M", Method: "m"}, func(context.Context) (any, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = invoke(context.Background(), NativeCall{Module: "M", Method: "m"}, func(context.Context) (any, error) {
		panic("delegate bug")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delegate bug")
	assert.NotErrorIs(t, err, ErrCallAbandoned)
}

func TestExecutor_ExecutionTimeout(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{}, WithExecutionTimeout(50*time.Millisecond))

	_, err := e.ExecuteOnQueue(context.Background(), Script{Source: `for (;;) {}`})
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.True(t, scriptErr.Timeout)

	assert.Equal(t, "ok", run(t, e, `"ok"`))
}

func TestExecutor_ExecutionTimeoutSurvivesNestedExecute(t *testing.T) {
	for _, engine := range []string{"goja", "quickjs"} {
		t.Run(engine, func(t *testing.T) {
			d := &testDelegate{}
			e, _ := newTestExecutor(t, d, WithEngine(engine), WithExecutionTimeout(50*time.Millisecond))
			d.onSync = func(ctx context.Context, _ NativeCall) (any, error) {
				time.Sleep(100 * time.Millisecond)
				_, _ = e.Execute(ctx, Script{Source: `1`})
				return nil, nil
			}

			done := make(chan error, 1)
			go func() {
				_, err := e.ExecuteOnQueue(context.Background(), Script{Source: `nativeCallSyncHook("Nested", "run", []); for (;;) {}`})
				done <- err
			}()

			select {
			case err := <-done:
				var scriptErr *ScriptError
				require.ErrorAs(t, err, &scriptErr)
				assert.True(t, scriptErr.Timeout)
			case <-time.After(5 * time.Second):
				t.Fatal("nested execute cleared the watchdog interrupt")
			}

			assert.Equal(t, "ok", run(t, e, `"ok"`))
		})
	}
}

func TestExecutor_QuickJSHooksReturnUndefined(t *testing.T) {
	d := &testDelegate{}
	e, sink := newTestExecutor(t, d, WithEngine("quickjs"), WithConsole())

	out := run(t, e, `[
		typeof nativeLoggingHook("hello", 1),
		typeof nativeFlushQueueImmediate([{module: "UI", method: "render"}]),
		typeof console.log("from console")
	].join(",")`)
	assert.Equal(t, "undefined,undefined,undefined", out)
	assert.Equal(t, []logLine{{"hello", 1}, {"from console", 1}}, sink.Lines())

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.batches, 1)
}

func TestExecutor_ContextCancelInterrupts(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.ExecuteOnQueue(ctx, Script{Source: `for (;;) {}`})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_CompiledProgram(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})

	p, err := e.Compile("add.js", `40 + 2`)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		res, err := e.ExecuteOnQueue(context.Background(), Script{Name: "add.js", Program: p})
		require.NoError(t, err)
		assert.Equal(t, "42", res.Value)
	}

	_, err = e.Compile("bad.js", `function (`)
	assert.Error(t, err)
}

func TestExecutor_CompileUnsupported(t *testing.T) {
	e, err := CreateExecutor(Config{}, &testDelegate{}, newTestThread(t), WithEngine("quickjs"))
	require.NoError(t, err)
	defer e.Destroy()

	_, err = e.Compile("x.js", `1`)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExecutor_CallFunction(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})
	run(t, e, `function add(a, b) { return {sum: a + b}; } function nothing() {}`)

	var (
		out, empty string
		err, err2  error
		missingErr error
	)
	_, thread := e.refs()
	require.NoError(t, thread.RunOnQueueSync(func() {
		out, err = e.CallFunction(context.Background(), "add", 1, 2)
		empty, err2 = e.CallFunction(context.Background(), "nothing")
		_, missingErr = e.CallFunction(context.Background(), "missing")
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sum":3}`, out)
	require.NoError(t, err2)
	assert.Equal(t, "null", empty)

	var scriptErr *ScriptError
	require.ErrorAs(t, missingErr, &scriptErr)
	assert.Contains(t, missingErr.Error(), "missing is not a function")

	_, err = e.CallFunction(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExecutor_Console(t *testing.T) {
	e, sink := newTestExecutor(t, &testDelegate{}, WithConsole())

	run(t, e, `console.log("hi", 1); console.warn("w");`)
	assert.Equal(t, []logLine{{"hi 1", 1}, {"w", 2}}, sink.Lines())
}

func TestExecutor_StateDuringRun(t *testing.T) {
	var (
		e      *Executor
		during State
	)
	d := &testDelegate{onSync: func(context.Context, NativeCall) (any, error) {
		during = e.State()
		return nil, nil
	}}
	e, _ = newTestExecutor(t, d)

	run(t, e, `nativeCallSyncHook("S", "s", [])`)
	assert.Equal(t, StateRunning, during)
	assert.Equal(t, StateReady, e.State())
}

func TestExecutor_DestroyFromScriptIsBusy(t *testing.T) {
	var e *Executor
	d := &testDelegate{onSync: func(context.Context, NativeCall) (any, error) {
		return e.Destroy().Error(), nil
	}}
	e, _ = newTestExecutor(t, d)

	got := run(t, e, `nativeCallSyncHook("Self", "destroy", [])`)
	assert.Equal(t, ErrBusy.Error(), got)
	assert.Equal(t, StateReady, e.State())
}

func TestExecutor_DestroyAfterThreadStopped(t *testing.T) {
	th := NewThread("stopped", nil)
	e, err := CreateExecutor(Config{}, &testDelegate{}, th, WithEngine("goja"))
	require.NoError(t, err)

	require.NoError(t, th.Quit(context.Background()))
	require.NoError(t, e.Destroy())
	assert.Equal(t, StateDestroyed, e.State())
	assert.ErrorIs(t, e.Destroy(), ErrDestroyed)
}

func TestExecutor_DestroyReleasesReferences(t *testing.T) {
	e, _ := newTestExecutor(t, &testDelegate{})
	require.NoError(t, e.Destroy())

	d, th := e.refs()
	assert.Nil(t, d)
	assert.Nil(t, th)

	_, err := e.Compile("x.js", `1`)
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestExecutor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, _ := newTestExecutor(t, &testDelegate{}, WithMetrics(reg))

	run(t, e, `nativeLoggingHook("a", 2); nativeLoggingHook("b", 2)`)
	_, _ = e.ExecuteOnQueue(context.Background(), Script{Source: `throw 1`})
	require.NoError(t, e.Destroy())

	m := e.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutorsCreated.WithLabelValues("goja")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutorsDestroyed.WithLabelValues("goja")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scripts.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scripts.WithLabelValues(metrics.OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NativeLogMessages.WithLabelValues("warn")))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "constructed", StateConstructed.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "unknown", State(9).String())
}
