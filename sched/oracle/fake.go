package oracle

import (
	"sync"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
)

// FakeOracle is an in-memory PredictionOracle for tests: per-task CPU
// demands set by SetDemand (RePrediction overwrites a task's demand with the
// residual it records), a togglable custom policy, and a recorded log of
// RePrediction calls so tests can assert on them (spec.md §8 scenario S3).
type FakeOracle struct {
	mu       sync.Mutex
	demand   map[int64]int
	custom   bool
	policy   sched.PlacementPolicy
	RePreds  []RePred
}

type RePred struct {
	TaskId   int64
	Residual int
}

func NewFakeOracle() *FakeOracle {
	return &FakeOracle{demand: map[int64]int{}}
}

func (f *FakeOracle) SetDemand(taskId int64, cpu int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.demand[taskId] = cpu
}

func (f *FakeOracle) SetCustom(policy sched.PlacementPolicy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom = policy != sched.PolicyDefault
	f.policy = policy
}

func (f *FakeOracle) IsCustomize() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.custom
}

func (f *FakeOracle) Mode() sched.PlacementPolicy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy
}

func (f *FakeOracle) CpuCore(taskId int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.demand[taskId]
}

func (f *FakeOracle) RePrediction(taskId int64, residual int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RePreds = append(f.RePreds, RePred{TaskId: taskId, Residual: residual})
	f.demand[taskId] = residual
}

func (f *FakeOracle) GetSchedulingMode(current sched.SchedulingMode) sched.SchedulingMode {
	return current
}
