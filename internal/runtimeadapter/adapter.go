// Package runtimeadapter constructs and owns the execution environment of
// one executor on top of a registered engine variant.
package runtimeadapter

import (
	"fmt"
	"os"

	"github.com/cryguy/jsbridge/internal/core"
)

// ThreadChecker reports whether the caller runs on the dispatch thread.
type ThreadChecker interface {
	IsOnThread() bool
}

// Adapter builds environments from one engine variant.
type Adapter struct {
	engine core.Engine
}

// New returns an adapter for engine.
func New(engine core.Engine) *Adapter {
	return &Adapter{engine: engine}
}

// Engine returns the variant backing the adapter.
func (a *Adapter) Engine() core.Engine { return a.engine }

// ResolveCacheDirectory returns the CacheDirectory setting, "" when unset.
// A non-empty directory is created if missing and must be a directory.
func ResolveCacheDirectory(cfg core.Config) (string, error) {
	dir, err := cfg.String(core.KeyCacheDirectory, "")
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &core.ConfigError{Key: core.KeyCacheDirectory, Err: err}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", &core.ConfigError{Key: core.KeyCacheDirectory, Err: err}
	}
	if !info.IsDir() {
		return "", &core.ConfigError{Key: core.KeyCacheDirectory, Err: fmt.Errorf("%s is not a directory", dir)}
	}
	return dir, nil
}

// Create resolves cfg, constructs a fully initialized runtime and wraps it
// so that every use off the dispatch thread fails with core.ErrWrongThread.
// Construction failures are returned as is; nothing is retried.
func (a *Adapter) Create(cfg core.Config, logger core.Logger, thread ThreadChecker) (core.JSRuntime, error) {
	cacheDir, err := ResolveCacheDirectory(cfg)
	if err != nil {
		return nil, err
	}
	rt, err := a.engine.NewRuntime(core.Options{
		CacheDirectory: cacheDir,
		Config:         cfg,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s runtime: %w", a.engine.Name(), err)
	}
	if thread == nil {
		return rt, nil
	}
	if c, ok := rt.(core.Compiler); ok {
		return &guardedCompiler{guarded: guarded{rt: rt, thread: thread}, c: c}, nil
	}
	return &guarded{rt: rt, thread: thread}, nil
}
