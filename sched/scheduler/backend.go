package scheduler

//go:generate mockgen -source=backend.go -package=scheduler -destination=deserializer_mock.go

import "golang.org/x/time/rate"

// Backend is the worker-facing transport the scheduler drives (spec.md §6,
// "external interfaces: Backend contract"). It is out of scope for this
// core: only the contract it must expose is defined here. The scheduler
// never calls Backend methods while holding its own monitor (spec.md §5).
type Backend interface {
	Start() error
	Stop() error
	IsReady() bool
	DefaultParallelism() int
	ApplicationId() string
	ApplicationAttemptId() string

	// ReviveOffers asynchronously requests a fresh resourceOffers round.
	ReviveOffers()

	// KillTask asks the backend to terminate a dispatched task.
	KillTask(taskId int64, executorId string, interruptThread bool)
}

// TaskMetricUpdate is one entry of an executor heartbeat (spec.md §6).
type TaskMetricUpdate struct {
	TaskId     int64
	StageId    string
	AttemptId  string
	Metrics    []byte
}

// StagePlanner is the upstream collaborator that supplied the task sets
// this scheduler dispatches (spec.md §6, "Stage-planner contract"). Like
// Backend, calls into it are always made after releasing the monitor.
type StagePlanner interface {
	ExecutorAdded(execId, host string)
	ExecutorLost(execId string)

	// ExecutorHeartbeatReceived reports per-task metrics for a liveness
	// heartbeat. A false return means the block manager at blockManagerId
	// must re-register.
	ExecutorHeartbeatReceived(execId string, updates []TaskMetricUpdate, blockManagerId string) bool
}

// ResultDeserializer decodes the opaque payload a worker attaches to a
// status update (spec.md §1's "result deserializer", out of scope beyond
// this contract). Decoding is assumed to be a potentially slow operation
// and is always invoked off the scheduler monitor (spec.md §4.4 step 4).
type ResultDeserializer interface {
	DeserializeSuccess(taskId int64, payload []byte) (result []byte, err error)
	DeserializeFailure(taskId int64, payload []byte) (reason string, err error)
}

// rateLimitedBackend wraps a Backend so every caller that asks for revived
// offers -- submitTasks, statusUpdate's failure path, the speculation
// ticker -- shares one limiter instead of each independently flooding the
// backend during a burst (grounded on bazel/server.go's rate.Limiter around
// its own request path).
type rateLimitedBackend struct {
	Backend
	limiter *rate.Limiter
}

func newRateLimitedBackend(b Backend, limiter *rate.Limiter) Backend {
	return &rateLimitedBackend{Backend: b, limiter: limiter}
}

func (b *rateLimitedBackend) ReviveOffers() {
	if !b.limiter.Allow() {
		return
	}
	b.Backend.ReviveOffers()
}
