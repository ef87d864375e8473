package scheduler

import (
	"time"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
)

// RackResolver maps a host to its rack, populating TaskRegistry.hostsByRack
// (spec.md §3, and SPEC_FULL.md's "rack-awareness in the registry"
// supplement). The default resolver puts every host on one rack.
type RackResolver func(host string) string

func singleRackResolver(host string) string { return "default-rack" }

// TaskRegistry holds the scheduler's process-local indexes (spec.md §3).
// Like Pool, it carries no internal locking: every method here must only
// be called while the caller holds the scheduler monitor (spec.md §5).
type TaskRegistry struct {
	rackOf RackResolver

	taskSetsByStage map[string]map[string]sched.TaskSetManager // stageId -> attemptId -> manager

	taskIdToTaskSet  map[int64]sched.TaskSetManager
	taskIdToExecutor map[int64]string

	activeExecutors map[string]bool
	executorToHost  map[string]string
	executorsByHost map[string]map[string]bool
	hostsByRack     map[string]map[string]bool

	lastHeartbeat map[string]time.Time
}

func NewTaskRegistry(rackOf RackResolver) *TaskRegistry {
	if rackOf == nil {
		rackOf = singleRackResolver
	}
	return &TaskRegistry{
		rackOf:           rackOf,
		taskSetsByStage:  map[string]map[string]sched.TaskSetManager{},
		taskIdToTaskSet:  map[int64]sched.TaskSetManager{},
		taskIdToExecutor: map[int64]string{},
		activeExecutors:  map[string]bool{},
		executorToHost:   map[string]string{},
		executorsByHost:  map[string]map[string]bool{},
		hostsByRack:      map[string]map[string]bool{},
		lastHeartbeat:    map[string]time.Time{},
	}
}

// AddManager inserts m under its stage/attempt, returning
// *sched.ConflictingTaskSet if another non-zombie manager for the same
// stageId has a different TaskSet identity (spec.md §4.1 step 3).
func (r *TaskRegistry) AddManager(m sched.TaskSetManager) error {
	stageId, attemptId := m.StageId(), m.StageAttemptId()
	attempts, ok := r.taskSetsByStage[stageId]
	if !ok {
		attempts = map[string]sched.TaskSetManager{}
		r.taskSetsByStage[stageId] = attempts
	}
	for otherAttempt, other := range attempts {
		if otherAttempt == attemptId {
			continue
		}
		if !other.IsZombie() && other.TaskSet() != m.TaskSet() {
			return &sched.ConflictingTaskSet{StageId: stageId}
		}
	}
	attempts[attemptId] = m
	return nil
}

// ManagersForStage returns every attempt's manager for stageId, or nil if
// the stage is unknown.
func (r *TaskRegistry) ManagersForStage(stageId string) []sched.TaskSetManager {
	attempts, ok := r.taskSetsByStage[stageId]
	if !ok {
		return nil
	}
	out := make([]sched.TaskSetManager, 0, len(attempts))
	for _, m := range attempts {
		out = append(out, m)
	}
	return out
}

// RemoveManager detaches m from the registry (spec.md §4.2
// taskSetFinished). Idempotent.
func (r *TaskRegistry) RemoveManager(m sched.TaskSetManager) {
	attempts, ok := r.taskSetsByStage[m.StageId()]
	if !ok {
		return
	}
	delete(attempts, m.StageAttemptId())
	if len(attempts) == 0 {
		delete(r.taskSetsByStage, m.StageId())
	}
}

// RecordDispatch indexes a freshly dispatched task (spec.md §3).
func (r *TaskRegistry) RecordDispatch(taskId int64, m sched.TaskSetManager, executorId string) {
	r.taskIdToTaskSet[taskId] = m
	r.taskIdToExecutor[taskId] = executorId
}

// ClearTask removes a terminal task's index entries (spec.md §4.4 step 3).
func (r *TaskRegistry) ClearTask(taskId int64) {
	delete(r.taskIdToTaskSet, taskId)
	delete(r.taskIdToExecutor, taskId)
}

func (r *TaskRegistry) TaskSetFor(taskId int64) (sched.TaskSetManager, bool) {
	m, ok := r.taskIdToTaskSet[taskId]
	return m, ok
}

func (r *TaskRegistry) ExecutorFor(taskId int64) (string, bool) {
	e, ok := r.taskIdToExecutor[taskId]
	return e, ok
}

// AddExecutor records a newly (or already) known executor, returning true
// the first time this executorId is seen (spec.md §4.3 step 1's
// first-seen-host trigger).
func (r *TaskRegistry) AddExecutor(executorId, host string) (isNew bool) {
	if r.activeExecutors[executorId] {
		return false
	}
	r.activeExecutors[executorId] = true
	r.executorToHost[executorId] = host
	if r.executorsByHost[host] == nil {
		r.executorsByHost[host] = map[string]bool{}
	}
	r.executorsByHost[host][executorId] = true
	rack := r.rackOf(host)
	if r.hostsByRack[rack] == nil {
		r.hostsByRack[rack] = map[string]bool{}
	}
	r.hostsByRack[rack][host] = true
	return true
}

// RemoveExecutor purges executorId from every index (spec.md §4.4 step 1,
// executor-loss handling), returning its last known host.
func (r *TaskRegistry) RemoveExecutor(executorId string) (host string, ok bool) {
	if !r.activeExecutors[executorId] {
		return "", false
	}
	host = r.executorToHost[executorId]
	delete(r.activeExecutors, executorId)
	delete(r.executorToHost, executorId)
	if hosts := r.executorsByHost[host]; hosts != nil {
		delete(hosts, executorId)
		if len(hosts) == 0 {
			delete(r.executorsByHost, host)
		}
	}
	delete(r.lastHeartbeat, executorId)
	return host, true
}

// RecordHeartbeat stamps executorId's last-seen time (spec.md §6's
// executorHeartbeatReceived callback). A no-op for an executor the registry
// never saw via AddExecutor -- the heartbeat still reaches the stage
// planner, but there is no liveness entry to update.
func (r *TaskRegistry) RecordHeartbeat(executorId string) {
	if !r.activeExecutors[executorId] {
		return
	}
	r.lastHeartbeat[executorId] = time.Now()
}

// LastHeartbeat returns the last time executorId was heard from, if any.
func (r *TaskRegistry) LastHeartbeat(executorId string) (time.Time, bool) {
	t, ok := r.lastHeartbeat[executorId]
	return t, ok
}

func (r *TaskRegistry) IsActiveExecutor(executorId string) bool {
	return r.activeExecutors[executorId]
}

func (r *TaskRegistry) HostFor(executorId string) (string, bool) {
	h, ok := r.executorToHost[executorId]
	return h, ok
}
