package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/manager"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/oracle"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/pool"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

// reviveOffersRateLimit caps how often the scheduler asks the backend to
// revive offers: every admission, failed-task, executor-loss and speculation
// path can each trigger a revive, and without a limiter a burst of any of those
// turns into a storm of redundant backend calls (grounded on
// bazel/server.go's rate.Limiter around its own request path).
const reviveOffersRateLimit = 50 // per second

// Scheduler is the facade tying the registry, pool, placement engine,
// lifecycle coordinator, and the two timers together (spec.md §2). It owns
// the single monitor spec.md §5 requires: every registry mutation and
// every dispatch decision runs while s.mu is held, and every call that
// crosses into the backend or stage planner happens after it is released.
// Grounded on the teacher's StatefulScheduler, which plays the same
// coordinating role over its own cluster/job-state registries.
type Scheduler struct {
	mu sync.Mutex

	cfg          sched.Config
	registry     *TaskRegistry
	pool         *pool.Pool
	idAlloc      *sched.TaskIdAllocator
	placement    *PlacementEngine
	lifecycle    *LifecycleCoordinator
	backend      Backend
	stagePlanner StagePlanner
	stat         stats.StatsReceiver

	admittedFirstStage bool
	hasLaunchedTask    atomic.Bool

	speculationTicker  *SpeculationTicker
	starvationWatchdog *StarvationWatchdog
}

func NewScheduler(cfg sched.Config, backend Backend, stagePlanner StagePlanner, predictionOracle oracle.PredictionOracle, deserializer ResultDeserializer, stat stats.StatsReceiver) (*Scheduler, error) {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	mode = predictionOracle.GetSchedulingMode(mode)

	backend = newRateLimitedBackend(backend, rate.NewLimiter(rate.Limit(reviveOffersRateLimit), reviveOffersRateLimit))

	s := &Scheduler{
		cfg:          cfg,
		registry:     NewTaskRegistry(nil),
		pool:         pool.NewRootPool(mode),
		idAlloc:      sched.NewTaskIdAllocator(),
		backend:      backend,
		stagePlanner: stagePlanner,
		stat:         stat,
	}
	s.placement = NewPlacementEngine(s.registry, s.pool, predictionOracle, cfg.CpusPerTask, stat.Scope("placement"))
	s.lifecycle = NewLifecycleCoordinator(s.registry, s.pool, deserializer, backend, stagePlanner, stat.Scope("lifecycle"), s.withMonitor)

	if cfg.SpeculationEnabled && !cfg.IsLocal {
		s.speculationTicker = NewSpeculationTicker(s.pool, backend, cfg.SpeculationInterval, s.withMonitor)
	}
	return s, nil
}

func (s *Scheduler) withMonitor(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

// Start brings up the backend and, unless disabled, the speculation timer.
func (s *Scheduler) Start() error {
	if err := s.backend.Start(); err != nil {
		return err
	}
	if s.speculationTicker != nil {
		s.speculationTicker.Start()
	}
	return nil
}

// Stop shuts down the timers and the backend. In-flight StatusUpdate calls
// complete first because they hold the monitor while mutating state
// (spec.md §5).
func (s *Scheduler) Stop() error {
	s.withMonitor(func() {})
	if s.speculationTicker != nil {
		s.speculationTicker.Stop()
	}
	if s.starvationWatchdog != nil {
		s.starvationWatchdog.Cancel()
	}
	return s.backend.Stop()
}

// WaitBackendReady polls the backend at the interval spec.md §5 names
// until it reports ready.
func (s *Scheduler) WaitBackendReady() {
	for !s.backend.IsReady() {
		time.Sleep(100 * time.Millisecond)
	}
}

// SubmitTasks admits a new task set (spec.md §4.1). A caller that leaves
// StageAttemptId blank gets one generated, so retried submissions of the
// same stage don't collide in the registry's attempt index.
func (s *Scheduler) SubmitTasks(ts *sched.TaskSet) (sched.TaskSetManager, error) {
	if ts.StageAttemptId == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, errors.Wrap(err, "generate stage attempt id")
		}
		ts.StageAttemptId = id.String()
	}

	m := manager.New(ts, s.idAlloc, s.cfg.MaxTaskFailures)

	var admitErr error
	s.withMonitor(func() {
		if err := s.registry.AddManager(m); err != nil {
			admitErr = err
			return
		}
		s.pool.AddTaskSetManager(m)

		if !s.admittedFirstStage {
			s.admittedFirstStage = true
			if !s.cfg.IsLocal {
				s.starvationWatchdog = NewStarvationWatchdog(s.cfg.StarvationTimeout, s.hasLaunchedTask.Load, ts.StageId)
				s.starvationWatchdog.Arm()
			}
		}
	})
	if admitErr != nil {
		return nil, admitErr
	}

	s.backend.ReviveOffers()
	return m, nil
}

type killRequest struct {
	taskId     int64
	executorId string
}

// CancelTasks kills every running task under stageId and aborts its
// managers (spec.md §4.2). A no-op if stageId is unknown.
func (s *Scheduler) CancelTasks(stageId string) {
	var kills []killRequest
	s.withMonitor(func() {
		for _, m := range s.registry.ManagersForStage(stageId) {
			for _, taskId := range m.RunningTaskIds() {
				if execId, ok := s.registry.ExecutorFor(taskId); ok {
					kills = append(kills, killRequest{taskId: taskId, executorId: execId})
				}
			}
			m.Abort()
		}
	})
	for _, k := range kills {
		s.backend.KillTask(k.taskId, k.executorId, true)
	}
}

// TaskSetFinished detaches a manager once its stage attempt is done
// (spec.md §4.2). Idempotent.
func (s *Scheduler) TaskSetFinished(m sched.TaskSetManager) {
	s.withMonitor(func() {
		s.registry.RemoveManager(m)
		s.pool.RemoveTaskSetManager(m)
	})
}

// ResourceOffers runs one placement round and returns each offer's
// dispatch list, in the same order the offers were given (spec.md §4.3).
func (s *Scheduler) ResourceOffers(offers []sched.WorkerOffer) [][]sched.TaskDescription {
	var tasks [][]sched.TaskDescription
	var anyDispatched bool
	var newExecutors []sched.WorkerOffer
	s.withMonitor(func() {
		tasks, anyDispatched, newExecutors = s.placement.ResourceOffers(offers)
	})
	if anyDispatched {
		s.hasLaunchedTask.Store(true)
	}
	for _, ne := range newExecutors {
		s.stagePlanner.ExecutorAdded(ne.ExecutorId, ne.Host)
	}
	return tasks
}

// StatusUpdate reports a task's new lifecycle state (spec.md §4.4).
func (s *Scheduler) StatusUpdate(taskId int64, newState sched.TaskState, payload []byte) {
	var after []func()
	s.withMonitor(func() {
		after = s.lifecycle.StatusUpdate(taskId, newState, payload)
	})
	for _, f := range after {
		f()
	}
}

// ExecutorHeartbeatReceived records execId's liveness in the registry, then
// forwards the heartbeat to the stage planner (spec.md §6). The registry
// update runs under the monitor; the stage-planner call happens after it is
// released, per spec.md §5.
func (s *Scheduler) ExecutorHeartbeatReceived(execId string, updates []TaskMetricUpdate, blockManagerId string) bool {
	s.withMonitor(func() { s.lifecycle.ExecutorHeartbeat(execId) })
	return s.stagePlanner.ExecutorHeartbeatReceived(execId, updates, blockManagerId)
}
