package capability

import (
	"fmt"
	"strconv"

	"github.com/cryguy/jsbridge/internal/core"
)

// Console replaces globalThis.console with methods that route through the
// logging hook. It must be installed after the NativeLogger it targets.
type Console struct {
	// Hook is the logging global to call. Empty means DefaultLoggingHook.
	Hook string
}

// Name returns "console".
func (Console) Name() string { return "console" }

// Install defines console.{debug,log,info,warn,error} plus the count,
// assert and time helpers.
func (c Console) Install(rt core.JSRuntime) error {
	hook := c.Hook
	if hook == "" {
		hook = DefaultLoggingHook
	}
	ok, err := rt.HasGlobal(hook)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("console: logging hook %q is not installed", hook)
	}
	return rt.Eval(fmt.Sprintf(consoleJS, strconv.Quote(hook)))
}

const consoleJS = `
(function(hookName) {
	var hook = globalThis[hookName];
	function format(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) {
			var arg = args[i];
			if (typeof arg === 'object' && arg !== null) {
				try { parts.push(JSON.stringify(arg)); } catch (e) { parts.push(String(arg)); }
			} else {
				parts.push(String(arg));
			}
		}
		return parts.join(' ');
	}
	var levels = { debug: 0, log: 1, info: 1, warn: 2, error: 3 };
	var con = {};
	Object.keys(levels).forEach(function(lvl) {
		con[lvl] = function() { hook(format(arguments), levels[lvl]); };
	});
	var counters = {};
	var timers = {};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) { counters[label || 'default'] = 0; };
	con.assert = function(cond) {
		if (cond) return;
		var rest = Array.prototype.slice.call(arguments, 1);
		con.error(rest.length ? 'Assertion failed: ' + format(rest) : 'Assertion failed');
	};
	con.time = function(label) { timers[label || 'default'] = Date.now(); };
	con.timeEnd = function(label) {
		var l = label || 'default';
		if (timers[l] === undefined) { con.warn('Timer "' + l + '" does not exist'); return; }
		var elapsed = Date.now() - timers[l];
		delete timers[l];
		con.log(l + ': ' + elapsed + 'ms');
	};
	globalThis.console = con;
})(%s);
`
