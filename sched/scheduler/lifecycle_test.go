package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/manager"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/pool"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

// syncMonitor is a withMonitor that serializes callers behind a real mutex,
// the same discipline the scheduler's own monitor provides (spec.md §5),
// so completeSuccess/completeFailure's re-entry never races this test's own
// assertions.
func syncMonitor() (func(func()), *sync.Mutex) {
	var mu sync.Mutex
	return func(f func()) {
		mu.Lock()
		defer mu.Unlock()
		f()
	}, &mu
}

func newLifecycleUnderTest(t *testing.T, deserializer ResultDeserializer, backend Backend) (*LifecycleCoordinator, *TaskRegistry, *pool.Pool, func(func())) {
	t.Helper()
	registry := NewTaskRegistry(nil)
	p := pool.NewRootPool(sched.FIFO)
	withMonitor, _ := syncMonitor()
	return NewLifecycleCoordinator(registry, p, deserializer, backend, newFakeStagePlanner(), stats.NilStatsReceiver(), withMonitor), registry, p, withMonitor
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

// A FINISHED status decodes the payload exactly once through the
// ResultDeserializer and hands the decoded result to the manager.
func TestLifecycle_StatusUpdateDecodesSuccessThroughDeserializer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDeserializer := NewMockResultDeserializer(ctrl)
	mockDeserializer.EXPECT().
		DeserializeSuccess(int64(1), gomock.Any()).
		Return([]byte("decoded-result"), nil).
		Times(1)

	backend := newFakeBackend()
	c, registry, p, withMonitor := newLifecycleUnderTest(t, mockDeserializer, backend)

	idAlloc := sched.NewTaskIdAllocator()
	ts := &sched.TaskSet{StageId: "s", StageAttemptId: "0", TaskIds: []string{"t0"}}
	m := manager.New(ts, idAlloc, 3)
	registry.AddManager(m)
	p.AddTaskSetManager(m)
	desc, ok := m.ResourceOffer("e1", "h1", sched.Any)
	if !ok {
		t.Fatalf("expected the manager to offer a task")
	}
	registry.RecordDispatch(desc.TaskId, m, "e1")

	c.StatusUpdate(desc.TaskId, sched.Finished, []byte("raw-payload"))

	var zombie bool
	waitFor(t, func() bool {
		withMonitor(func() { zombie = m.IsZombie() })
		return zombie
	})
	if _, ok := registry.TaskSetFor(desc.TaskId); ok {
		t.Fatalf("expected the terminal task to be cleared from the registry")
	}
}

// A FAILED status within the retry budget re-queues the task on its
// manager instead of going zombie, and decodes the failure reason.
func TestLifecycle_StatusUpdateRetriesFailureWithinBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDeserializer := NewMockResultDeserializer(ctrl)
	mockDeserializer.EXPECT().
		DeserializeFailure(int64(1), gomock.Any()).
		Return("transient", nil).
		Times(1)

	backend := newFakeBackend()
	c, registry, p, withMonitor := newLifecycleUnderTest(t, mockDeserializer, backend)

	idAlloc := sched.NewTaskIdAllocator()
	ts := &sched.TaskSet{StageId: "s", StageAttemptId: "0", TaskIds: []string{"t0"}}
	m := manager.New(ts, idAlloc, 3)
	registry.AddManager(m)
	p.AddTaskSetManager(m)
	desc, _ := m.ResourceOffer("e1", "h1", sched.Any)
	registry.RecordDispatch(desc.TaskId, m, "e1")

	c.StatusUpdate(desc.TaskId, sched.Failed, []byte("boom"))

	waitFor(t, func() bool { return backend.revivedCount() > 0 })

	var (
		zombie bool
		redesc sched.TaskDescription
		ok     bool
	)
	withMonitor(func() {
		zombie = m.IsZombie()
		redesc, ok = m.ResourceOffer("e1", "h1", sched.Any)
	})
	if zombie {
		t.Fatalf("a retryable failure should not zombie the manager")
	}
	if !ok || redesc.SourceTask != "t0" {
		t.Fatalf("expected the failed task to be offerable again, got ok=%v desc=%+v", ok, redesc)
	}
}

// go-cmp/go-spew sanity check: a dispatch decision's fields round-trip
// through the registry/manager exactly as constructed.
func TestTaskDescription_FieldsSurviveDispatch(t *testing.T) {
	idAlloc := sched.NewTaskIdAllocator()
	ts := &sched.TaskSet{StageId: "s", StageAttemptId: "0", TaskIds: []string{"only"}}
	m := manager.New(ts, idAlloc, 1)

	desc, ok := m.ResourceOffer("exec-9", "host-9", sched.NoPref)
	if !ok {
		t.Fatalf("expected a dispatch")
	}

	want := sched.TaskDescription{
		TaskId:     desc.TaskId, // allocator-assigned, not asserted against a literal
		SourceTask: "only",
		ExecutorId: "exec-9",
		Payload:    []byte("only"),
	}
	if diff := cmp.Diff(want, desc); diff != "" {
		t.Fatalf("dispatch decision mismatch (-want +got):\n%s\nfull value: %s", diff, spew.Sdump(desc))
	}
}
