package scheduler

import (
	"math/rand"
	"testing"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/oracle"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

func newTestScheduler(t *testing.T, o *oracle.FakeOracle) (*Scheduler, *fakeBackend, *fakeStagePlanner) {
	t.Helper()
	backend := newFakeBackend()
	planner := newFakeStagePlanner()
	cfg := sched.DefaultConfig()
	s, err := NewScheduler(cfg, backend, planner, o, fakeDeserializer{}, stats.NilStatsReceiver())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.placement.SetRand(rand.New(rand.NewSource(42)))
	return s, backend, planner
}

func countDispatched(tasks [][]sched.TaskDescription) int {
	n := 0
	for _, ts := range tasks {
		n += len(ts)
	}
	return n
}

// S1: default policy round-robin across two equally-sized workers.
func TestScenario_DefaultRoundRobin(t *testing.T) {
	s, _, _ := newTestScheduler(t, oracle.NewFakeOracle())
	if _, err := s.SubmitTasks(taskSet("s1", 6, "", 0)); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}

	tasks := s.ResourceOffers([]sched.WorkerOffer{
		{ExecutorId: "e1", Host: "h1", Cores: 4},
		{ExecutorId: "e2", Host: "h2", Cores: 4},
	})

	if got := countDispatched(tasks); got != 6 {
		t.Fatalf("dispatched = %d, want 6", got)
	}
}

// S2: PPA minimizes leftover residual across two workers.
func TestScenario_PPAMinLeftover(t *testing.T) {
	o := oracle.NewFakeOracle()
	o.SetCustom(sched.PolicyPPA)
	o.SetDemand(1, 80)
	o.SetDemand(2, 40)

	s, _, _ := newTestScheduler(t, o)
	if _, err := s.SubmitTasks(taskSet("s2", 2, "", 0)); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}

	tasks := s.ResourceOffers([]sched.WorkerOffer{
		{ExecutorId: "e1", Host: "h1", Cores: 100},
		{ExecutorId: "e2", Host: "h2", Cores: 60},
	})

	var e1Tasks, e2Tasks int
	for i, off := range []string{"e1", "e2"} {
		for _, d := range tasks[i] {
			if d.ExecutorId != off {
				t.Fatalf("dispatch %v landed under offer for %s", d, off)
			}
		}
	}
	e1Tasks = len(tasks[0])
	e2Tasks = len(tasks[1])
	if e1Tasks != 1 || e2Tasks != 1 {
		t.Fatalf("expected one task per worker, got e1=%d e2=%d", e1Tasks, e2Tasks)
	}
	if tasks[0][0].TaskId != 1 {
		t.Fatalf("expected demand-80 task (id 1) on e1, got %d", tasks[0][0].TaskId)
	}
	if tasks[1][0].TaskId != 2 {
		t.Fatalf("expected demand-40 task (id 2) on e2, got %d", tasks[1][0].TaskId)
	}
}

// S3: PPA fallback re-predicts when no worker fully satisfies demand.
func TestScenario_PPAFallback(t *testing.T) {
	o := oracle.NewFakeOracle()
	o.SetCustom(sched.PolicyPPA)
	o.SetDemand(1, 50)

	s, _, _ := newTestScheduler(t, o)
	if _, err := s.SubmitTasks(taskSet("s3", 1, "", 0)); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}

	tasks := s.ResourceOffers([]sched.WorkerOffer{{ExecutorId: "e1", Host: "h1", Cores: 30}})

	if countDispatched(tasks) != 1 {
		t.Fatalf("expected the task to be placed despite insufficient residual")
	}
	if len(o.RePreds) != 1 || o.RePreds[0].TaskId != 1 || o.RePreds[0].Residual != 30 {
		t.Fatalf("unexpected RePrediction calls: %+v", o.RePreds)
	}
}

// S4: BPA takes a large task from freeMachines, promoting it to activeMachines.
func TestScenario_BPALargeFromFree(t *testing.T) {
	o := oracle.NewFakeOracle()
	o.SetCustom(sched.PolicyBPA)
	o.SetDemand(1, 70)

	s, _, _ := newTestScheduler(t, o)
	if _, err := s.SubmitTasks(taskSet("s4", 1, "", 0)); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}

	tasks := s.ResourceOffers([]sched.WorkerOffer{
		{ExecutorId: "e1", Host: "h1", Cores: 100},
		{ExecutorId: "e2", Host: "h2", Cores: 60},
		{ExecutorId: "e3", Host: "h3", Cores: 30},
	})

	for i, execId := range []string{"e1", "e2", "e3"} {
		if execId == "e1" {
			if len(tasks[i]) != 1 {
				t.Fatalf("expected the task on the free-bin worker (e1), got placements=%v", tasks)
			}
			continue
		}
		if len(tasks[i]) != 0 {
			t.Fatalf("did not expect a dispatch on %s, got %v", execId, tasks[i])
		}
	}
}

// S5: cancelTasks kills every running task under the stage and aborts the manager.
func TestScenario_CancelKillsRunningTasks(t *testing.T) {
	s, backend, _ := newTestScheduler(t, oracle.NewFakeOracle())
	m, err := s.SubmitTasks(taskSet("s5", 10, "", 0))
	if err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}

	s.ResourceOffers([]sched.WorkerOffer{{ExecutorId: "e1", Host: "h1", Cores: 3}})

	s.CancelTasks("s5")

	if len(backend.killed) != 3 {
		t.Fatalf("killed = %d, want 3: %+v", len(backend.killed), backend.killed)
	}
	for _, k := range backend.killed {
		if k.executorId != "e1" {
			t.Fatalf("unexpected kill target: %+v", k)
		}
	}
	if !m.IsZombie() {
		t.Fatalf("expected manager to be aborted (zombie) after cancelTasks")
	}
}

// S6: LOST status purges the executor and notifies the stage planner exactly once.
func TestScenario_ExecutorLossOnLostStatus(t *testing.T) {
	s, backend, planner := newTestScheduler(t, oracle.NewFakeOracle())
	if _, err := s.SubmitTasks(taskSet("s6", 2, "", 0)); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}

	tasks := s.ResourceOffers([]sched.WorkerOffer{{ExecutorId: "execX", Host: "hX", Cores: 2}})
	if countDispatched(tasks) == 0 {
		t.Fatalf("expected at least one dispatch to execX")
	}
	lostTaskId := tasks[0][0].TaskId

	revivedBefore := backend.revivedCount()
	s.StatusUpdate(lostTaskId, sched.Lost, nil)

	if s.registry.IsActiveExecutor("execX") {
		t.Fatalf("expected execX to be purged from activeExecutors")
	}
	lost := planner.lostExecutors()
	if len(lost) != 1 || lost[0] != "execX" {
		t.Fatalf("expected exactly one executorLost(execX), got %v", lost)
	}
	if backend.revivedCount() <= revivedBefore {
		t.Fatalf("expected reviveOffers to be requested after executor loss")
	}
}

// Invariant 3 (spec.md §8): at most one non-zombie manager per stageId.
func TestInvariant_AtMostOneNonZombieManagerPerStage(t *testing.T) {
	s, _, _ := newTestScheduler(t, oracle.NewFakeOracle())
	ts := taskSet("stageA", 1, "", 0)
	if _, err := s.SubmitTasks(ts); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}
	conflicting := taskSet("stageA", 1, "", 0)
	conflicting.StageAttemptId = "1" // a second, distinct attempt of the same stage
	if _, err := s.SubmitTasks(conflicting); err == nil {
		t.Fatalf("expected ConflictingTaskSet for a second non-zombie manager on the same stage")
	}
}

// Invariant 1 (spec.md §8): dispatched cpu demand per worker never exceeds
// what was offered.
func TestInvariant_NeverOverCommitsAWorker(t *testing.T) {
	s, _, _ := newTestScheduler(t, oracle.NewFakeOracle())
	if _, err := s.SubmitTasks(taskSet("over", 50, "", 0)); err != nil {
		t.Fatalf("SubmitTasks: %v", err)
	}
	tasks := s.ResourceOffers([]sched.WorkerOffer{{ExecutorId: "e1", Host: "h1", Cores: 5}})
	if len(tasks[0]) > 5 {
		t.Fatalf("worker offered 5 cores but received %d dispatches", len(tasks[0]))
	}
}
