// Package stats wraps go-metrics with the small instrument surface the
// scheduler core needs: counters, gauges and latencies, each optionally
// namespaced with Scope. It intentionally drops the teacher's latching
// snapshot machinery and JSON rendering (no metrics UI is in scope here,
// see SPEC_FULL.md Non-goals) but keeps the same instrument shapes so
// callers read the same way the teacher's sched/scheduler package does.
package stats

import (
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
)

// StatsReceiver is the interface every scheduler-core component takes a
// dependency on, so tests can substitute NilStatsReceiver.
type StatsReceiver interface {
	Scope(scope ...string) StatsReceiver
	Counter(name ...string) Counter
	Gauge(name ...string) Gauge
	Latency(name ...string) Latency
}

type Counter interface {
	Inc(int64)
	Count() int64
}

type Gauge interface {
	Update(int64)
	Value() int64
}

// Latency records durations; Time() starts the clock, Stop() records it.
type Latency interface {
	Time() Latency
	Stop()
}

type defaultStatsReceiver struct {
	registry metrics.Registry
	scope    []string
}

// NewDefaultStatsReceiver returns a StatsReceiver backed by a fresh
// go-metrics registry.
func NewDefaultStatsReceiver() StatsReceiver {
	return &defaultStatsReceiver{registry: metrics.NewRegistry()}
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{registry: s.registry, scope: s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	c, _ := s.registry.GetOrRegister(s.scopedName(name...), metrics.NewCounter).(metrics.Counter)
	return &metricCounter{c}
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	g, _ := s.registry.GetOrRegister(s.scopedName(name...), metrics.NewGauge).(metrics.Gauge)
	return &metricGauge{g}
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	factory := func() metrics.Timer { return metrics.NewTimer() }
	t, _ := s.registry.GetOrRegister(s.scopedName(name...), factory).(metrics.Timer)
	return &metricLatency{timer: t}
}

func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	out := make([]string, len(scope))
	for i, e := range scope {
		out[i] = strings.Replace(e, "/", "_SLASH_", -1)
	}
	return append(append([]string{}, s.scope...), out...)
}

func (s *defaultStatsReceiver) scopedName(scope ...string) string {
	return strings.Join(s.scoped(scope...), "/")
}

// NilStatsReceiver discards all stats, for tests and callers that don't
// want to pay for instrumentation.
func NilStatsReceiver() StatsReceiver { return &nilStatsReceiver{} }

type nilStatsReceiver struct{}

func (n *nilStatsReceiver) Scope(scope ...string) StatsReceiver { return n }
func (n *nilStatsReceiver) Counter(name ...string) Counter      { return &nilCounter{} }
func (n *nilStatsReceiver) Gauge(name ...string) Gauge          { return &nilGauge{} }
func (n *nilStatsReceiver) Latency(name ...string) Latency      { return &nilLatency{} }

type metricCounter struct{ metrics.Counter }

func (c *metricCounter) Inc(v int64)  { c.Counter.Inc(v) }
func (c *metricCounter) Count() int64 { return c.Counter.Count() }

type metricGauge struct{ metrics.Gauge }

func (g *metricGauge) Update(v int64) { g.Gauge.Update(v) }
func (g *metricGauge) Value() int64   { return g.Gauge.Value() }

type metricLatency struct {
	timer metrics.Timer
	start time.Time
}

func (l *metricLatency) Time() Latency { l.start = time.Now(); return l }
func (l *metricLatency) Stop()         { l.timer.Update(time.Since(l.start)) }

type nilCounter struct{}

func (*nilCounter) Inc(int64)  {}
func (*nilCounter) Count() int64 { return 0 }

type nilGauge struct{}

func (*nilGauge) Update(int64) {}
func (*nilGauge) Value() int64 { return 0 }

type nilLatency struct{}

func (l *nilLatency) Time() Latency { return l }
func (l *nilLatency) Stop()         {}
