// Package jsbridge embeds a JavaScript engine in a Go host. A Factory
// produces executors bound to one dispatch thread, with the native logging
// hook and native-module hooks installed before any script runs.
package jsbridge

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cryguy/jsbridge/internal/capability"
	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/metrics"
	"github.com/cryguy/jsbridge/internal/nativelog"
	"github.com/cryguy/jsbridge/internal/runtimeadapter"
)

// Factory creates executors that share one configuration and engine.
type Factory struct {
	cfg     core.Config
	adapter *runtimeadapter.Adapter
	opts    options
	metrics *metrics.Metrics
}

// NewFactory captures a copy of cfg and resolves the engine. Later changes
// to cfg do not affect the factory.
func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	o := options{engine: defaultEngine}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.timeout == nil {
		o.timeout = DefaultTimeoutInvoker
	}
	if o.hookName == "" {
		o.hookName = capability.DefaultLoggingHook
	}
	if o.sink == nil {
		o.sink = nativelog.ZapSink(o.logger.Named("js"))
	}
	if o.execTimeout < 0 {
		return nil, fmt.Errorf("%w: negative execution timeout %s", ErrInvalidArgument, o.execTimeout)
	}

	engine, err := core.Lookup(o.engine)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return &Factory{
		cfg:     cfg.Clone(),
		adapter: runtimeadapter.New(engine),
		opts:    o,
		metrics: m,
	}, nil
}

// Engine returns the engine name executors are built on.
func (f *Factory) Engine() string { return f.adapter.Engine().Name() }

// CreateExecutor builds an executor bound to thread that forwards native
// calls to delegate. The environment is created and its capabilities are
// installed on thread, inline when the caller is already on it. On failure
// no executor is returned and any environment created is closed.
func (f *Factory) CreateExecutor(delegate Delegate, thread MessageQueueThread) (*Executor, error) {
	if delegate == nil || thread == nil {
		return nil, fmt.Errorf("%w: delegate and thread are required", ErrInvalidArgument)
	}

	logger := nativelog.New(f.countingSink())

	installers := capability.Set{capability.NativeLogger{Logger: logger, Global: f.opts.hookName}}
	if f.opts.console {
		installers = append(installers, capability.Console{Hook: f.opts.hookName})
	}
	installers = append(installers, f.opts.installers...)

	e := &Executor{
		id:          uuid.NewString(),
		engine:      f.Engine(),
		delegate:    delegate,
		thread:      thread,
		timeout:     f.opts.timeout,
		execTimeout: f.opts.execTimeout,
		installers:  installers,
		metrics:     f.metrics,
	}
	e.logger = f.opts.logger.With(zap.String("executor", e.id), zap.String("engine", e.engine))

	var buildErr error
	err := thread.RunOnQueueSync(func() {
		defer func() {
			if p := recover(); p != nil {
				buildErr = fmt.Errorf("panic while building environment: %v", p)
				e.closeFailed()
			}
		}()
		rt, err := f.adapter.Create(f.cfg, logger, thread)
		if err != nil {
			buildErr = err
			return
		}
		e.rt = rt
		if err := e.install(); err != nil {
			buildErr = err
			e.closeFailed()
		}
	})
	if err == nil {
		err = buildErr
	}
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}

	f.metrics.ExecutorCreated(e.engine)
	e.logger.Debug("executor created", zap.Strings("capabilities", installers.Names()))
	return e, nil
}

// countingSink wraps the configured sink to count delivered log lines.
func (f *Factory) countingSink() Sink {
	sink, m := f.opts.sink, f.metrics
	return nativelog.SinkFunc(func(message string, severity int) error {
		if err := sink.Log(message, severity); err != nil {
			return err
		}
		m.NativeLog(nativelog.SeverityName(severity))
		return nil
	})
}

// CreateExecutor is NewFactory followed by Factory.CreateExecutor.
func CreateExecutor(cfg Config, delegate Delegate, thread MessageQueueThread, opts ...Option) (*Executor, error) {
	f, err := NewFactory(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return f.CreateExecutor(delegate, thread)
}

// closeFailed closes an environment that never became ready.
func (e *Executor) closeFailed() {
	if e.rt == nil {
		return
	}
	if err := e.rt.Close(); err != nil {
		e.logger.Warn("closing environment after failed build", zap.Error(err))
	}
}
