package core

import (
	"fmt"
	"sort"
	"sync"
)

// Logger is the engine-facing side of the logging bridge. Engines use it
// for engine-internal diagnostics only.
type Logger interface {
	Emit(message string, severity int) error
}

// Options is everything an engine variant receives to construct a runtime.
type Options struct {
	// CacheDirectory is the resolved cache directory, "" for none.
	CacheDirectory string
	// Config is the full engine configuration, including keys the
	// adapter does not interpret.
	Config Config
	// Logger forwards engine-internal log lines to the native sink.
	Logger Logger
}

// Engine is the interface that engine implementations (goja, QuickJS, V8)
// must satisfy. Each variant knows how to construct a fully initialized
// runtime from options.
type Engine interface {
	Name() string
	NewRuntime(opts Options) (JSRuntime, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Engine{}
)

// Register makes an engine available by name. Variants call it from init.
// Registering the same name twice panics.
func Register(e Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[e.Name()]; dup {
		panic(fmt.Sprintf("core: engine %q registered twice", e.Name()))
	}
	registry[e.Name()] = e
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, error) {
	registryMu.RLock()
	e, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e, nil
}

// Engines lists registered engine names in sorted order.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
