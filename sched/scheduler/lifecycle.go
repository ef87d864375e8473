package scheduler

import (
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/pool"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

// LifecycleCoordinator consumes backend status updates and advances the
// registry and TaskSetManagers accordingly (spec.md §2, §4.4). Grounded on
// the teacher's statusUpdate handling in sched/scheduler/task_runner.go,
// which similarly separates "update the index now" from "decode the
// payload and call back later" to avoid decoding under the scheduler's own
// lock.
type LifecycleCoordinator struct {
	registry     *TaskRegistry
	pool         *pool.Pool
	deserializer ResultDeserializer
	backend      Backend
	stagePlanner StagePlanner
	stat         stats.StatsReceiver

	// withMonitor runs f while holding the scheduler's monitor. completeSuccess
	// and completeFailure use it to re-enter the monitor from the goroutine
	// that decodes a task's payload (spec.md §4.4 step 4, §5).
	withMonitor func(func())
}

func NewLifecycleCoordinator(registry *TaskRegistry, p *pool.Pool, deserializer ResultDeserializer, backend Backend, stagePlanner StagePlanner, stat stats.StatsReceiver, withMonitor func(func())) *LifecycleCoordinator {
	return &LifecycleCoordinator{
		registry:     registry,
		pool:         p,
		deserializer: deserializer,
		backend:      backend,
		stagePlanner: stagePlanner,
		stat:         stat,
		withMonitor:  withMonitor,
	}
}

// StatusUpdate runs under the scheduler monitor (spec.md §4.4). It returns
// the callbacks that must run after the caller releases the monitor --
// notifying the stage planner of executor loss and requesting revived
// offers are both backend/planner calls and must never happen while the
// monitor is held (spec.md §5).
func (c *LifecycleCoordinator) StatusUpdate(taskId int64, newState sched.TaskState, payload []byte) []func() {
	var after []func()
	var failedExecutor string

	if newState == sched.Lost {
		if execId, ok := c.registry.ExecutorFor(taskId); ok && c.registry.IsActiveExecutor(execId) {
			c.registry.RemoveExecutor(execId)
			failedExecutor = execId
		}
	}

	c.stat.Counter("statusUpdate", newState.String()).Inc(1)

	manager, ok := c.registry.TaskSetFor(taskId)
	if !ok {
		log.WithField("taskId", taskId).WithField("state", newState).Debug("statusUpdate for unknown task, ignoring")
	} else {
		if newState.IsTerminal() {
			c.registry.ClearTask(taskId)
			c.pool.DecrementRunningTasks(manager)
		}
		switch newState {
		case sched.Finished:
			go c.completeSuccess(taskId, manager, payload)
		case sched.Failed, sched.Killed, sched.Lost:
			go c.completeFailure(taskId, manager, newState, payload)
		}
	}

	if failedExecutor != "" {
		fe := failedExecutor
		after = append(after, func() { c.stagePlanner.ExecutorLost(fe) })
		after = append(after, c.backend.ReviveOffers)
	}
	return after
}

// ExecutorHeartbeat records execId's liveness in the registry (spec.md §6
// names executorHeartbeatReceived as an invoked stage-planner callback; this
// is the scheduler-side bookkeeping the caller does before forwarding to the
// stage planner). Runs under the scheduler monitor, same as StatusUpdate.
func (c *LifecycleCoordinator) ExecutorHeartbeat(execId string) {
	c.registry.RecordHeartbeat(execId)
}

// completeSuccess decodes a FINISHED task's payload off the monitor, then
// re-enters it to update the manager (spec.md §4.4 step 4).
func (c *LifecycleCoordinator) completeSuccess(taskId int64, manager sched.TaskSetManager, payload []byte) {
	result, err := c.deserializer.DeserializeSuccess(taskId, payload)
	if err != nil {
		log.WithField("taskId", taskId).WithError(err).Warn("failed to deserialize task result, dropping")
		return
	}
	c.withMonitor(func() { manager.HandleSuccessfulTask(taskId, result) })
}

// completeFailure decodes a FAILED/KILLED/LOST task's payload off the
// monitor, re-enters it to update the manager, and requests an offer
// revival outside the monitor if the manager is still usable (spec.md
// §4.4 step 5).
func (c *LifecycleCoordinator) completeFailure(taskId int64, manager sched.TaskSetManager, state sched.TaskState, payload []byte) {
	reason, err := c.deserializer.DeserializeFailure(taskId, payload)
	if err != nil {
		reason = err.Error()
	}

	var shouldRevive bool
	c.withMonitor(func() {
		manager.HandleFailedTask(taskId, state, reason)
		shouldRevive = !manager.IsZombie() && state != sched.Killed
	})
	if shouldRevive {
		c.backend.ReviveOffers()
	}
}
