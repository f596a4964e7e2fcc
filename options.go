package jsbridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/cryguy/jsbridge/internal/capability"
	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/nativelog"
)

// Config holds engine tuning parameters. Recognized keys are
// "CacheDirectory", "MemoryLimitMB" and "MaxCallStackSize"; others pass
// through to the engine untouched.
type Config = core.Config

// Runtime is the execution environment handed to installers.
type Runtime = core.JSRuntime

// Program is a script compiled by Executor.Compile.
type Program = core.Program

// Installer registers one capability into a fresh environment.
type Installer = capability.Installer

// Sink is the native log transport behind the logging hook.
type Sink = nativelog.Sink

// SinkFunc adapts a function to Sink.
type SinkFunc = nativelog.SinkFunc

// ZapSink logs script log lines through a zap logger.
func ZapSink(logger *zap.Logger) Sink { return nativelog.ZapSink(logger) }

// ZerologSink logs script log lines through a zerolog logger.
func ZerologSink(logger zerolog.Logger) Sink { return nativelog.ZerologSink(logger) }

// Engines lists the engine names usable with WithEngine.
func Engines() []string { return core.Engines() }

// DefaultEngine is the engine used when WithEngine is not given.
func DefaultEngine() string { return defaultEngine }

type options struct {
	engine      string
	sink        Sink
	logger      *zap.Logger
	timeout     TimeoutInvoker
	installers  []Installer
	registerer  prometheus.Registerer
	execTimeout time.Duration
	hookName    string
	console     bool
}

// Option configures a Factory.
type Option func(*options)

// WithEngine selects the engine by registered name.
func WithEngine(name string) Option {
	return func(o *options) { o.engine = name }
}

// WithSink sets the native log sink. The default logs through the
// factory's zap logger.
func WithSink(sink Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithLogger sets the host-side logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTimeoutInvoker sets the native call timeout policy.
func WithTimeoutInvoker(invoker TimeoutInvoker) Option {
	return func(o *options) { o.timeout = invoker }
}

// WithInstallers adds capabilities installed after the built-in ones.
func WithInstallers(installers ...Installer) Option {
	return func(o *options) { o.installers = append(o.installers, installers...) }
}

// WithMetrics registers the bridge's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithExecutionTimeout interrupts scripts running longer than d.
func WithExecutionTimeout(d time.Duration) Option {
	return func(o *options) { o.execTimeout = d }
}

// WithLoggingHookName renames the global logging function.
func WithLoggingHookName(name string) Option {
	return func(o *options) { o.hookName = name }
}

// WithConsole installs a console object that logs through the logging hook.
func WithConsole() Option {
	return func(o *options) { o.console = true }
}
