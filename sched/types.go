// Package sched defines the scheduler core's data model: task sets, task
// dispatch decisions, worker offers, locality levels and the external
// TaskSetManager contract. It is the Go-domain analogue of the teacher's
// sched package (sched/definitions.go), trimmed of thrift (de)serialization
// since this core speaks no wire protocol of its own.
package sched

import (
	"fmt"
	"sync/atomic"
)

// LocalityLevel orders how strongly a task prefers to run near its input
// data. Levels ascend from strictest to loosest: PROCESS_LOCAL is the
// strongest preference, ANY accepts every worker.
type LocalityLevel int

const (
	ProcessLocal LocalityLevel = iota
	NodeLocal
	NoPref
	RackLocal
	Any
)

func (l LocalityLevel) String() string {
	switch l {
	case ProcessLocal:
		return "PROCESS_LOCAL"
	case NodeLocal:
		return "NODE_LOCAL"
	case NoPref:
		return "NO_PREF"
	case RackLocal:
		return "RACK_LOCAL"
	case Any:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}

// TaskState is the lifecycle state of one dispatched task, as reported by
// the worker-facing backend through LifecycleCoordinator.StatusUpdate.
type TaskState int

const (
	Launching TaskState = iota
	Running
	Finished
	Failed
	Killed
	Lost
)

func (s TaskState) String() string {
	switch s {
	case Launching:
		return "LAUNCHING"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	case Failed:
		return "FAILED"
	case Killed:
		return "KILLED"
	case Lost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether this state ends a task's lifecycle: no further
// status updates are expected for a task once it reaches a terminal state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case Finished, Failed, Killed, Lost:
		return true
	default:
		return false
	}
}

// SchedulingMode selects how the root pool orders its task-set queue
// (spec.md §4.5).
type SchedulingMode int

const (
	FIFO SchedulingMode = iota
	FAIR
	CPU
	NONE
)

func (m SchedulingMode) String() string {
	switch m {
	case FIFO:
		return "FIFO"
	case FAIR:
		return "FAIR"
	case CPU:
		return "CPU"
	case NONE:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// SchedulingModeFromName parses a scheduling-mode name from configuration,
// returning ConfigurationError for anything unrecognized (spec.md §6).
func SchedulingModeFromName(name string) (SchedulingMode, error) {
	switch name {
	case "FIFO":
		return FIFO, nil
	case "FAIR":
		return FAIR, nil
	case "CPU":
		return CPU, nil
	case "NONE":
		return NONE, nil
	default:
		return FIFO, &ConfigurationError{Field: "SchedulingMode", Value: name}
	}
}

// PlacementPolicy is the PredictionOracle-selected custom placement policy
// (spec.md §4.3).
type PlacementPolicy string

const (
	PolicyDefault PlacementPolicy = ""
	PolicyPPA     PlacementPolicy = "PPA"
	PolicyBPA     PlacementPolicy = "BPA"
)

// TaskSet is an immutable batch of tasks belonging to one stage attempt
// (spec.md §3). Tasks themselves are opaque to the scheduler core beyond
// their ids: what runs is the concern of the TaskSetManager that owns this
// TaskSet.
type TaskSet struct {
	StageId         string
	StageAttemptId  string
	Pool            string
	Priority        int
	TaskIds         []string
	LocalityLevels  []LocalityLevel // accepted levels, in the order they'll be tried
}

func (ts *TaskSet) String() string {
	return fmt.Sprintf("TaskSet{stage:%s attempt:%s pool:%s tasks:%d}",
		ts.StageId, ts.StageAttemptId, ts.Pool, len(ts.TaskIds))
}

// TaskDescription is a dispatch decision: a task has been placed onto an
// executor and serialized for transport to it (spec.md §3).
type TaskDescription struct {
	TaskId     int64
	SourceTask string // the TaskSet-local task id this dispatch fulfills
	ExecutorId string
	Payload    []byte
}

// WorkerOffer is one worker's resource offer for a single resourceOffers
// round (spec.md §3). Cores are integer capacity units where 100 is a
// fully idle worker.
type WorkerOffer struct {
	ExecutorId string
	Host       string
	Cores      int
}

// TaskSetManager is the external contract spec.md §2 names: the scheduler
// core calls into it to request dispatch decisions and to report terminal
// task outcomes, but its own retry/locality bookkeeping is the stage
// planner's concern, not this core's. See sched/manager for a reference
// implementation used by this repo's tests and demo.
type TaskSetManager interface {
	StageId() string
	StageAttemptId() string
	TaskSet() *TaskSet
	SchedulingPool() string
	Priority() int

	// ResourceOffer asks the manager for a dispatch decision on the given
	// executor at the given locality level. ok is false if the manager has
	// nothing to place there right now.
	ResourceOffer(executorId, host string, locality LocalityLevel) (TaskDescription, bool)

	// ExecutorAdded notifies the manager that a new executor became known,
	// so it can reconsider locality preferences on the next offer round
	// (spec.md §4.3 step 1's "newExecutorAvailable" flag).
	ExecutorAdded(executorId, host string)

	// HandleSuccessfulTask and HandleFailedTask are invoked by
	// LifecycleCoordinator under the scheduler monitor (spec.md §4.4).
	HandleSuccessfulTask(taskId int64, result []byte)
	HandleFailedTask(taskId int64, state TaskState, reason string)

	// RunningTaskIds lists taskIds this manager currently considers
	// in-flight, for cancelTasks (spec.md §4.2).
	RunningTaskIds() []int64

	// CheckSpeculatableTasks reports whether any of this manager's running
	// tasks look slow enough to warrant a speculative duplicate, and if so
	// queues that work against the next resourceOffers round.
	CheckSpeculatableTasks() bool

	IsZombie() bool
	Abort()
}

// TaskIdAllocator is the single atomic counter spec.md §3 requires:
// TaskIds are monotonic and globally unique within one scheduler lifetime,
// so every TaskSetManager sharing one scheduler must draw from the same
// allocator instance.
type TaskIdAllocator struct {
	next int64
}

func NewTaskIdAllocator() *TaskIdAllocator {
	return &TaskIdAllocator{}
}

func (a *TaskIdAllocator) Next() int64 {
	return atomic.AddInt64(&a.next, 1)
}
