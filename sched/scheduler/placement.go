// PlacementEngine is the heart of the scheduler core (spec.md §2, §4.3):
// given a round of WorkerOffers it emits per-worker dispatch lists under
// one of three policies (default round-robin by locality, PPA, BPA). Grounded on the teacher's task_scheduler.go offer
// loop (shuffle offers, scan by locality, track per-worker residual) and
// generalized here to the oracle-selected PPA/BPA policies spec.md adds.
package scheduler

import (
	"math/rand"
	"time"

	"github.com/luci/go-render/render"
	"github.com/sirupsen/logrus"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/oracle"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/pool"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

var log = logrus.WithField("component", "scheduler")

// placeholder identifies the dummy executor/host PPA and BPA offer to a
// manager while draining its tasks, before a worker has been chosen
// (spec.md §4.3's allTasks buffer is worker-agnostic until selection).
// The real executorId is substituted into the TaskDescription and the
// registry once a worker is picked; see drainManager.
const placeholderExecutor = ""

// PlacementEngine owns no locking of its own; ResourceOffers must only be
// called while the caller holds the scheduler monitor (spec.md §5).
type PlacementEngine struct {
	registry    *TaskRegistry
	pool        *pool.Pool
	oracle      oracle.PredictionOracle
	cpusPerTask int
	stat        stats.StatsReceiver
	rng         *rand.Rand
}

func NewPlacementEngine(registry *TaskRegistry, p *pool.Pool, o oracle.PredictionOracle, cpusPerTask int, stat stats.StatsReceiver) *PlacementEngine {
	return &PlacementEngine{
		registry:    registry,
		pool:        p,
		oracle:      o,
		cpusPerTask: cpusPerTask,
		stat:        stat,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand overrides the shuffle source, so tests can get a deterministic
// ordering for scenario assertions (spec.md §8 scenarios S1-S4).
func (e *PlacementEngine) SetRand(rng *rand.Rand) { e.rng = rng }

// offerRound is the per-round scratch state spec.md §3 names: tasks[i] and
// availableCpus[i] track worker i's growing dispatch list and residual
// capacity respectively.
type offerRound struct {
	execIds []string
	hosts   []string
	tasks   [][]sched.TaskDescription
	avail   []int
}

// ResourceOffers runs one resourceOffers round (spec.md §4.3). It returns
// one dispatch list per input offer (same order as offers), whether any
// dispatch occurred, and the set of executors seen for the first time this
// round -- the caller notifies the stage planner of those after releasing
// the monitor.
func (e *PlacementEngine) ResourceOffers(offers []sched.WorkerOffer) (tasks [][]sched.TaskDescription, anyDispatched bool, newExecutors []sched.WorkerOffer) {
	for _, o := range offers {
		if e.registry.AddExecutor(o.ExecutorId, o.Host) {
			newExecutors = append(newExecutors, o)
		}
	}

	shuffled := append([]sched.WorkerOffer{}, offers...)
	e.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	// Re-flatten the shuffled offers host-balanced (spec.md §4.7): take one
	// offer per host before taking a second from any host, so a pool
	// scan never exhausts one host's executors before trying another. The
	// per-host sub-order is whatever the shuffle above left it in.
	byHost := map[string][]sched.WorkerOffer{}
	for _, o := range shuffled {
		byHost[o.Host] = append(byHost[o.Host], o)
	}
	ordered := pool.PrioritizeContainers(byHost)

	round := &offerRound{
		execIds: make([]string, len(ordered)),
		hosts:   make([]string, len(ordered)),
		tasks:   make([][]sched.TaskDescription, len(ordered)),
		avail:   make([]int, len(ordered)),
	}
	for i, o := range ordered {
		round.execIds[i] = o.ExecutorId
		round.hosts[i] = o.Host
		round.avail[i] = o.Cores
	}

	queue := e.pool.GetSortedTaskSetQueue()
	if len(newExecutors) > 0 {
		for _, ts := range queue {
			if ts.IsZombie() {
				continue
			}
			for _, ne := range newExecutors {
				ts.ExecutorAdded(ne.ExecutorId, ne.Host)
			}
		}
	}

	policy := sched.PolicyDefault
	if e.oracle.IsCustomize() {
		policy = e.oracle.Mode()
	}

	aborted := false
	for _, ts := range queue {
		if aborted || ts.IsZombie() {
			continue
		}
		for _, locality := range ts.TaskSet().LocalityLevels {
			var dispatchedHere bool
			switch policy {
			case sched.PolicyPPA:
				dispatchedHere, aborted = e.runPPA(ts, locality, round)
			case sched.PolicyBPA:
				dispatchedHere, aborted = e.runBPA(ts, locality, round)
			default:
				dispatchedHere = e.runDefault(ts, locality, round)
			}
			if dispatchedHere {
				anyDispatched = true
			}
			if aborted {
				break
			}
		}
	}

	tasksByExecId := map[string][]sched.TaskDescription{}
	for i, id := range round.execIds {
		if len(round.tasks[i]) > 0 {
			tasksByExecId[id] = round.tasks[i]
		}
	}
	tasks = make([][]sched.TaskDescription, len(offers))
	dispatchedCount := int64(0)
	for i, o := range offers {
		tasks[i] = tasksByExecId[o.ExecutorId]
		dispatchedCount += int64(len(tasks[i]))
	}
	e.stat.Counter("rounds").Inc(1)
	e.stat.Counter("dispatches").Inc(dispatchedCount)
	e.stat.Gauge("offers").Update(int64(len(offers)))
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		log.WithField("round", render.Render(round)).Debug("resourceOffers round settled")
	}
	return tasks, anyDispatched, newExecutors
}

// runDefault implements the round-robin-by-locality policy (spec.md §4.3
// "Default policy"): repeated full scans of the shuffled worker list until
// a scan places nothing, then the caller advances to the next locality.
func (e *PlacementEngine) runDefault(ts sched.TaskSetManager, locality sched.LocalityLevel, round *offerRound) bool {
	any := false
	for {
		placedThisScan := false
		for i := range round.execIds {
			if round.avail[i] < e.cpusPerTask {
				continue
			}
			desc, ok := ts.ResourceOffer(round.execIds[i], round.hosts[i], locality)
			if !ok {
				continue
			}
			round.tasks[i] = append(round.tasks[i], desc)
			round.avail[i] -= e.cpusPerTask
			e.registry.RecordDispatch(desc.TaskId, ts, round.execIds[i])
			e.pool.IncrementRunningTasks(ts)
			placedThisScan, any = true, true
		}
		if !placedThisScan {
			return any
		}
	}
}

// drainManager pulls every task the manager is willing to offer at this
// locality right now, without committing any of them to a worker yet
// (PPA/BPA defer worker selection to their own bin logic).
func drainManager(ts sched.TaskSetManager, locality sched.LocalityLevel) []sched.TaskDescription {
	var out []sched.TaskDescription
	for {
		desc, ok := ts.ResourceOffer(placeholderExecutor, "", locality)
		if !ok {
			return out
		}
		out = append(out, desc)
	}
}
