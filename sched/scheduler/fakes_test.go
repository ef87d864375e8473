package scheduler

import (
	"strconv"
	"sync"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
)

// fakeBackend is an in-memory Backend for tests, grounded on the teacher's
// own in-memory cluster fakes (clusterimplementations/local) used the same
// way to exercise the scheduler without a real transport.
type fakeBackend struct {
	mu          sync.Mutex
	ready       bool
	revived     int
	killed      []killRequest
	stopped     bool
}

func newFakeBackend() *fakeBackend { return &fakeBackend{ready: true} }

func (b *fakeBackend) Start() error                  { return nil }
func (b *fakeBackend) Stop() error                   { b.mu.Lock(); defer b.mu.Unlock(); b.stopped = true; return nil }
func (b *fakeBackend) IsReady() bool                 { b.mu.Lock(); defer b.mu.Unlock(); return b.ready }
func (b *fakeBackend) DefaultParallelism() int        { return 1 }
func (b *fakeBackend) ApplicationId() string          { return "app-0" }
func (b *fakeBackend) ApplicationAttemptId() string   { return "attempt-0" }

func (b *fakeBackend) ReviveOffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revived++
}

func (b *fakeBackend) KillTask(taskId int64, executorId string, interruptThread bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed = append(b.killed, killRequest{taskId: taskId, executorId: executorId})
}

func (b *fakeBackend) revivedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revived
}

// fakeStagePlanner records upcalls for assertion.
type fakeStagePlanner struct {
	mu          sync.Mutex
	added       []string
	lost        []string
}

func newFakeStagePlanner() *fakeStagePlanner { return &fakeStagePlanner{} }

func (p *fakeStagePlanner) ExecutorAdded(execId, host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, execId)
}

func (p *fakeStagePlanner) ExecutorLost(execId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lost = append(p.lost, execId)
}

func (p *fakeStagePlanner) ExecutorHeartbeatReceived(execId string, updates []TaskMetricUpdate, blockManagerId string) bool {
	return true
}

func (p *fakeStagePlanner) lostExecutors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.lost...)
}

// fakeDeserializer decodes payloads synchronously and trivially: success
// payloads pass through, failure payloads become their reason string.
type fakeDeserializer struct{}

func (fakeDeserializer) DeserializeSuccess(taskId int64, payload []byte) ([]byte, error) {
	return payload, nil
}

func (fakeDeserializer) DeserializeFailure(taskId int64, payload []byte) (string, error) {
	return string(payload), nil
}

func taskSet(stageId string, n int, pool string, priority int, levels ...sched.LocalityLevel) *sched.TaskSet {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = stageId + "-t" + strconv.Itoa(i)
	}
	if len(levels) == 0 {
		levels = []sched.LocalityLevel{sched.Any}
	}
	return &sched.TaskSet{
		StageId:        stageId,
		StageAttemptId: "0",
		Pool:           pool,
		Priority:       priority,
		TaskIds:        ids,
		LocalityLevels: levels,
	}
}
