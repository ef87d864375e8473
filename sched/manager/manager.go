// Package manager provides a reference TaskSetManager (spec.md §2 names
// TaskSetManager as an external contract; the stage planner's real
// locality-aware retry logic lives outside this core). This implementation
// exists so the PlacementEngine and LifecycleCoordinator can be exercised
// end to end in tests and in cmd/schedulerdemo, grounded on the teacher's
// sched/scheduler/job_state.go per-task bookkeeping.
package manager

import (
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
)

type taskRecord struct {
	taskId     int64 // 0 until dispatched at least once
	state      sched.TaskState
	numTries   int
	executorId string
	launched   bool
}

// Manager is a straightforward, non-locality-aware TaskSetManager: it hands
// out its TaskSet's tasks in order on any locality level, retries failed
// tasks up to maxFailures, and goes zombie once aborted or every task has
// reached a terminal, non-retryable state.
type Manager struct {
	taskSet     *sched.TaskSet
	idAlloc     *sched.TaskIdAllocator
	maxFailures int

	records map[string]*taskRecord // sourceTaskId -> record
	order   []string                // TaskSet.TaskIds, fixed dispatch order
	zombie  bool
}

func New(ts *sched.TaskSet, idAlloc *sched.TaskIdAllocator, maxFailures int) *Manager {
	m := &Manager{
		taskSet:     ts,
		idAlloc:     idAlloc,
		maxFailures: maxFailures,
		records:     map[string]*taskRecord{},
		order:       append([]string{}, ts.TaskIds...),
	}
	for _, id := range ts.TaskIds {
		m.records[id] = &taskRecord{state: sched.Launching}
	}
	return m
}

func (m *Manager) StageId() string         { return m.taskSet.StageId }
func (m *Manager) StageAttemptId() string  { return m.taskSet.StageAttemptId }
func (m *Manager) TaskSet() *sched.TaskSet { return m.taskSet }
func (m *Manager) SchedulingPool() string  { return m.taskSet.Pool }
func (m *Manager) Priority() int           { return m.taskSet.Priority }

// ResourceOffer hands out the next task that is not currently launched:
// one never handed out before, or one a retryable failure made offerable
// again. The locality level is
// accepted but not discriminated on: a production TaskSetManager would
// only offer PROCESS_LOCAL/NODE_LOCAL tasks at stricter levels and fall
// back to NO_PREF/RACK_LOCAL/ANY as the locality wait elapses, but that
// policy belongs to the external stage planner per spec.md §1.
func (m *Manager) ResourceOffer(executorId, host string, locality sched.LocalityLevel) (sched.TaskDescription, bool) {
	if m.zombie {
		return sched.TaskDescription{}, false
	}
	for _, srcId := range m.order {
		rec := m.records[srcId]
		if rec.launched {
			continue
		}
		rec.launched = true
		rec.numTries++
		rec.state = sched.Running
		rec.executorId = executorId
		rec.taskId = m.idAlloc.Next()
		return sched.TaskDescription{
			TaskId:     rec.taskId,
			SourceTask: srcId,
			ExecutorId: executorId,
			Payload:    []byte(srcId),
		}, true
	}
	return sched.TaskDescription{}, false
}

func (m *Manager) ExecutorAdded(executorId, host string) {}

func (m *Manager) HandleSuccessfulTask(taskId int64, result []byte) {
	rec := m.findByTaskId(taskId)
	if rec == nil {
		return
	}
	rec.state = sched.Finished
	if m.allTerminal() {
		m.zombie = true
	}
}

func (m *Manager) HandleFailedTask(taskId int64, state sched.TaskState, reason string) {
	rec := m.findByTaskId(taskId)
	if rec == nil {
		return
	}
	if state == sched.Killed || rec.numTries >= m.maxFailures {
		rec.state = state
	} else {
		// Eligible for retry: make it offerable again on the next round.
		rec.state = sched.Launching
		rec.launched = false
	}
	if m.allTerminal() {
		m.zombie = true
	}
}

func (m *Manager) allTerminal() bool {
	for _, rec := range m.records {
		if !rec.state.IsTerminal() {
			return false
		}
	}
	return true
}

func (m *Manager) findByTaskId(taskId int64) *taskRecord {
	for _, rec := range m.records {
		if rec.taskId == taskId {
			return rec
		}
	}
	return nil
}

func (m *Manager) RunningTaskIds() []int64 {
	var out []int64
	for _, rec := range m.records {
		if rec.state == sched.Running || rec.state == sched.Launching && rec.launched {
			out = append(out, rec.taskId)
		}
	}
	return out
}

// CheckSpeculatableTasks is always false for this reference manager: it
// tracks no per-task timing, so it never nominates a duplicate attempt.
// A production manager would compare each running task's elapsed time
// against the median for its task set.
func (m *Manager) CheckSpeculatableTasks() bool { return false }

func (m *Manager) IsZombie() bool { return m.zombie }

func (m *Manager) Abort() { m.zombie = true }
