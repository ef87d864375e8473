package scheduler

import (
	"time"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/pool"
)

// SpeculationTicker periodically asks the root pool whether any running
// task looks slow enough to warrant a speculative duplicate, and if so
// prompts the backend to emit a fresh offer round (spec.md §4.6). It is
// not armed at all in local mode (spec.md §6 Configuration, IsLocal).
type SpeculationTicker struct {
	pool     *pool.Pool
	backend  Backend
	interval time.Duration

	// withMonitor runs f while holding the scheduler's monitor.
	withMonitor func(func())
	stop        chan struct{}
}

func NewSpeculationTicker(p *pool.Pool, backend Backend, interval time.Duration, withMonitor func(func())) *SpeculationTicker {
	return &SpeculationTicker{pool: p, backend: backend, interval: interval, withMonitor: withMonitor, stop: make(chan struct{})}
}

func (t *SpeculationTicker) Start() { go t.loop() }

func (t *SpeculationTicker) Stop() { close(t.stop) }

func (t *SpeculationTicker) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			var speculatable bool
			t.withMonitor(func() { speculatable = t.pool.CheckSpeculatableTasks() })
			if speculatable {
				t.backend.ReviveOffers()
			}
		}
	}
}

// StarvationWatchdog is armed on the first task-set admission and warns,
// once per tick, until hasLaunched reports true, at which point it
// self-cancels (spec.md §4.6). Not armed when the backend is local
// (spec.md §4.1 step 5).
type StarvationWatchdog struct {
	timeout     time.Duration
	hasLaunched func() bool
	stageId     string
	stop        chan struct{}
}

func NewStarvationWatchdog(timeout time.Duration, hasLaunched func() bool, stageId string) *StarvationWatchdog {
	return &StarvationWatchdog{timeout: timeout, hasLaunched: hasLaunched, stageId: stageId, stop: make(chan struct{})}
}

func (w *StarvationWatchdog) Arm() { go w.loop() }

func (w *StarvationWatchdog) Cancel() { close(w.stop) }

func (w *StarvationWatchdog) loop() {
	ticker := time.NewTicker(w.timeout)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if w.hasLaunched() {
				return
			}
			log.WithField("stageId", w.stageId).Warn("no task has launched since the first task set was submitted")
		}
	}
}
