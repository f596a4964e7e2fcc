// Package metrics holds the prometheus collectors for executors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeAbandoned = "abandoned"
)

// Native call kinds.
const (
	KindSync  = "sync"
	KindBatch = "batch"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ExecutorsCreated   *prometheus.CounterVec
	ExecutorsDestroyed *prometheus.CounterVec
	Scripts            *prometheus.CounterVec
	ScriptDuration     prometheus.Histogram
	NativeCalls        *prometheus.CounterVec
	NativeLogMessages  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ExecutorsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsbridge_executors_created_total",
			Help: "Executors successfully created, by engine.",
		}, []string{"engine"}),
		ExecutorsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsbridge_executors_destroyed_total",
			Help: "Executors destroyed, by engine.",
		}, []string{"engine"}),
		Scripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsbridge_scripts_total",
			Help: "Script executions, by outcome.",
		}, []string{"outcome"}),
		ScriptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jsbridge_script_duration_seconds",
			Help:    "Script execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		NativeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsbridge_native_calls_total",
			Help: "Native module calls issued from script, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		NativeLogMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jsbridge_native_log_messages_total",
			Help: "Lines sent through the native logging hook, by severity.",
		}, []string{"severity"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.ExecutorsCreated, m.ExecutorsDestroyed, m.Scripts,
		m.ScriptDuration, m.NativeCalls, m.NativeLogMessages,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ExecutorCreated(engine string) {
	if m == nil {
		return
	}
	m.ExecutorsCreated.WithLabelValues(engine).Inc()
}

func (m *Metrics) ExecutorDestroyed(engine string) {
	if m == nil {
		return
	}
	m.ExecutorsDestroyed.WithLabelValues(engine).Inc()
}

// ScriptDone records one script execution.
func (m *Metrics) ScriptDone(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Scripts.WithLabelValues(outcome).Inc()
	m.ScriptDuration.Observe(d.Seconds())
}

func (m *Metrics) NativeCall(kind, outcome string) {
	if m == nil {
		return
	}
	m.NativeCalls.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) NativeLog(severity string) {
	if m == nil {
		return
	}
	m.NativeLogMessages.WithLabelValues(severity).Inc()
}
