package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cryguy/jsbridge"
	"github.com/cryguy/jsbridge/internal/bundle"
	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/hostconfig"
)

type runFlags struct {
	Engine      string
	ConfigPath  string
	CacheDir    string
	Bundle      bool
	Watch       bool
	Timeout     time.Duration
	CallTimeout time.Duration
}

func newRunCmd(global *globalFlags) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] FILE...",
		Short: "Execute script files in order in one executor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			host, logger, err := hostSetup(global)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if flags.Engine == "" {
				flags.Engine = host.Engine
			}

			r, err := newRunner(flags, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer r.Close()

			if !flags.Watch {
				return r.Run(cmd.Context(), files)
			}
			return r.Watch(cmd.Context(), files)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.Engine, "engine", "", "engine name (default from JSBRIDGE_ENGINE, else the build default)")
	f.StringVar(&flags.ConfigPath, "config", "", "YAML file with engine options")
	f.StringVar(&flags.CacheDir, "cache-dir", "", "engine cache directory, overrides the config file")
	f.BoolVar(&flags.Bundle, "bundle", false, "bundle each file with its imports before running")
	f.BoolVar(&flags.Watch, "watch", false, "re-run when any file changes")
	f.DurationVar(&flags.Timeout, "timeout", 0, "interrupt a script after this long (0 disables)")
	f.DurationVar(&flags.CallTimeout, "call-timeout", 0, "abandon native calls after this long (0 waits)")
	return cmd
}

// runner executes files through fresh executors on one dispatch thread.
type runner struct {
	flags   runFlags
	logger  *zap.Logger
	out     io.Writer
	factory *jsbridge.Factory
	thread  *jsbridge.Thread
}

func newRunner(flags runFlags, logger *zap.Logger, out io.Writer) (*runner, error) {
	cfg, err := hostconfig.LoadEngineConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.CacheDir != "" {
		cfg[core.KeyCacheDirectory] = flags.CacheDir
	}

	opts := []jsbridge.Option{
		jsbridge.WithLogger(logger),
		jsbridge.WithSink(jsbridge.ZapSink(logger.Named("js"))),
		jsbridge.WithConsole(),
		jsbridge.WithExecutionTimeout(flags.Timeout),
	}
	if flags.Engine != "" {
		opts = append(opts, jsbridge.WithEngine(flags.Engine))
	}
	if flags.CallTimeout > 0 {
		opts = append(opts, jsbridge.WithTimeoutInvoker(jsbridge.DeadlineTimeoutInvoker(flags.CallTimeout)))
	}
	factory, err := jsbridge.NewFactory(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &runner{
		flags:   flags,
		logger:  logger,
		out:     out,
		factory: factory,
		thread:  jsbridge.NewThread("jsbridge-run", logger),
	}, nil
}

// Run executes files in order in a single executor and prints each
// non-empty completion value. The first failing file stops the run.
func (r *runner) Run(ctx context.Context, files []string) error {
	exec, err := r.factory.CreateExecutor(newHostDelegate(r.logger, os.Getenv), r.thread)
	if err != nil {
		return err
	}
	defer func() {
		if err := exec.Destroy(); err != nil {
			r.logger.Warn("destroying executor", zap.Error(err))
		}
	}()

	for _, file := range files {
		script, err := r.load(file)
		if err != nil {
			return err
		}
		res, err := exec.ExecuteOnQueue(ctx, script)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		r.logger.Debug("script finished", zap.String("file", file), zap.Duration("took", res.Duration))
		if res.Value != "" {
			fmt.Fprintln(r.out, res.Value)
		}
	}
	return nil
}

func (r *runner) load(file string) (jsbridge.Script, error) {
	if r.flags.Bundle {
		src, err := bundle.File(file)
		if err != nil {
			return jsbridge.Script{}, err
		}
		return jsbridge.Script{Name: file, Source: src}, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return jsbridge.Script{}, fmt.Errorf("reading script: %w", err)
	}
	src := string(data)
	switch {
	case bundle.NeedsBundling(src):
		src, err = bundle.File(file)
	case bundle.NeedsTransform(file):
		src, err = bundle.Transform(filepath.Base(file), src)
	}
	if err != nil {
		return jsbridge.Script{}, err
	}
	return jsbridge.Script{Name: file, Source: src}, nil
}

// Watch runs files, then runs them again whenever one is written or
// replaced, until ctx ends. Run failures are logged, not returned.
func (r *runner) Watch(ctx context.Context, files []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}

	r.runLogged(ctx, files)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] {
				continue
			}
			r.logger.Info("file changed, re-running", zap.String("file", event.Name))
			r.runLogged(ctx, files)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (r *runner) runLogged(ctx context.Context, files []string) {
	if err := r.Run(ctx, files); err != nil {
		r.logger.Error("run failed", zap.Error(err))
	}
}

// Close stops the dispatch thread.
func (r *runner) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.thread.Quit(ctx)
}
