package runtimeadapter

import "github.com/cryguy/jsbridge/internal/core"

// guarded rejects environment access from any goroutine other than the
// dispatch thread.
type guarded struct {
	rt     core.JSRuntime
	thread ThreadChecker
}

var _ core.JSRuntime = (*guarded)(nil)

func (g *guarded) check() error {
	if !g.thread.IsOnThread() {
		return core.ErrWrongThread
	}
	return nil
}

func (g *guarded) Eval(js string) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.rt.Eval(js)
}

func (g *guarded) EvalString(js string) (string, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	return g.rt.EvalString(js)
}

func (g *guarded) EvalBool(js string) (bool, error) {
	if err := g.check(); err != nil {
		return false, err
	}
	return g.rt.EvalBool(js)
}

func (g *guarded) RegisterFunc(name string, fn any) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.rt.RegisterFunc(name, fn)
}

func (g *guarded) SetGlobal(name string, value any) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.rt.SetGlobal(name, value)
}

func (g *guarded) HasGlobal(name string) (bool, error) {
	if err := g.check(); err != nil {
		return false, err
	}
	return g.rt.HasGlobal(name)
}

// Interrupt is exempt: it is how watchdogs stop a script from elsewhere.
func (g *guarded) Interrupt() { g.rt.Interrupt() }

// ClearInterrupt forwards to the engine when it keeps interrupts pending.
func (g *guarded) ClearInterrupt() {
	if c, ok := g.rt.(core.InterruptClearer); ok {
		c.ClearInterrupt()
	}
}

func (g *guarded) Close() error {
	if err := g.check(); err != nil {
		return err
	}
	return g.rt.Close()
}

type guardedCompiler struct {
	guarded
	c core.Compiler
}

var _ core.Compiler = (*guardedCompiler)(nil)

// Compile does not touch the environment, so it is allowed off-thread.
func (g *guardedCompiler) Compile(name, src string) (core.Program, error) {
	return g.c.Compile(name, src)
}

func (g *guardedCompiler) RunProgram(p core.Program) (string, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	return g.c.RunProgram(p)
}

// CloseDetached closes rt bypassing the thread guard. It is only for
// environments whose dispatch thread has already exited, where no
// goroutine can ever pass the guard again.
func CloseDetached(rt core.JSRuntime) error {
	switch g := rt.(type) {
	case *guarded:
		return g.rt.Close()
	case *guardedCompiler:
		return g.rt.Close()
	default:
		return rt.Close()
	}
}
