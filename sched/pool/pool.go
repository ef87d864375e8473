// Package pool implements the scheduler's pool/SchedulableBuilder tree
// (spec.md §2, §4.5): a two-level tree of named schedulable pools that
// yields the sorted task-set queue PlacementEngine consumes each
// resourceOffers round. Grounded on the teacher's priority-bucketed
// ordering in sched/scheduler/task_scheduler.go and on
// apache/yunikorn-core's pkg/scheduler/policies sorting-policy shape.
//
// Pool is one of the registries spec.md §3/§5 says the scheduler owns
// exclusively; like TaskRegistry, it carries no internal locking of its
// own and must only be touched while the caller holds the scheduler
// monitor.
package pool

import (
	"sort"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
)

const defaultPoolName = "default"

// Pool is either the root of the tree (mode governs how its child pools are
// ordered) or a leaf pool (a named bucket of task sets, always ordered
// FIFO internally by submission order, the way Spark's per-pool queues
// are).
type Pool struct {
	name   string
	mode   sched.SchedulingMode
	weight int
	parent *Pool

	children map[string]*Pool // set only on the root
	entries  []*entry         // set only on leaves

	runningTasks int // maintained via IncrementRunningTasks/DecrementRunningTasks, used by FAIR

	seq *int64 // shared submission-order counter, root owns the backing int64

	sortPolicy SortingPolicy // set only on the root; governs FAIR-mode child ordering
}

// SortingPolicy selects the comparator FAIR-mode child-pool ordering uses,
// the same shape as apache/yunikorn-core's
// pkg/scheduler/policies.SortingPolicy (FairSortPolicy, FifoSortPolicy).
type SortingPolicy int

const (
	// FairSortPolicy orders pools by runningTasks/weight, the classic
	// weighted-fair-share ratio.
	FairSortPolicy SortingPolicy = iota
	// FifoSortPolicy ignores running-task counts and orders FAIR-mode pools
	// by submission order instead, same as FIFO mode's own ordering.
	FifoSortPolicy
)

// sortComparators maps each SortingPolicy to the less-than it imposes over
// sibling pools. Ties always fall back to pool name for determinism.
var sortComparators = map[SortingPolicy]func(a, b *Pool) bool{
	FairSortPolicy: func(a, b *Pool) bool {
		ar := float64(a.runningTasks) / float64(weightOf(a))
		br := float64(b.runningTasks) / float64(weightOf(b))
		if ar != br {
			return ar < br
		}
		return a.name < b.name
	},
	FifoSortPolicy: func(a, b *Pool) bool {
		if as, bs := oldestSeq(a), oldestSeq(b); as != bs {
			return as < bs
		}
		return a.name < b.name
	},
}

type entry struct {
	manager sched.TaskSetManager
	seq     int64
}

// NewRootPool creates the root of the schedulable tree using the given
// scheduling mode to order its child pools (spec.md §4.5).
func NewRootPool(mode sched.SchedulingMode) *Pool {
	var seq int64
	return &Pool{
		mode:     mode,
		children: map[string]*Pool{},
		seq:      &seq,
	}
}

// SetSortingPolicy picks the comparator FAIR-mode ordering uses (default
// FairSortPolicy). A no-op outside FAIR mode.
func (root *Pool) SetSortingPolicy(sp SortingPolicy) { root.sortPolicy = sp }

// AddTaskSetManager attaches m to its named pool (spec.md §4.1 step 4),
// creating the pool if this is the first task set submitted to it.
func (root *Pool) AddTaskSetManager(m sched.TaskSetManager) {
	name := m.SchedulingPool()
	if name == "" {
		name = defaultPoolName
	}
	child, ok := root.children[name]
	if !ok {
		child = &Pool{name: name, weight: 1, parent: root, seq: root.seq}
		root.children[name] = child
	}
	*root.seq++
	child.entries = append(child.entries, &entry{manager: m, seq: *root.seq})
}

// RemoveTaskSetManager detaches m from its pool (spec.md §4.2
// taskSetFinished). A no-op if m isn't currently attached.
func (root *Pool) RemoveTaskSetManager(m sched.TaskSetManager) {
	name := m.SchedulingPool()
	if name == "" {
		name = defaultPoolName
	}
	child, ok := root.children[name]
	if !ok {
		return
	}
	for i, e := range child.entries {
		if e.manager == m {
			child.entries = append(child.entries[:i], child.entries[i+1:]...)
			break
		}
	}
	if len(child.entries) == 0 {
		delete(root.children, name)
	}
}

// IncrementRunningTasks and DecrementRunningTasks maintain each pool's
// running-task count, which the FAIR ordering weighs against pool weight.
func (root *Pool) IncrementRunningTasks(m sched.TaskSetManager) {
	if child, ok := root.children[poolNameOf(m)]; ok {
		child.runningTasks++
	}
}

func (root *Pool) DecrementRunningTasks(m sched.TaskSetManager) {
	if child, ok := root.children[poolNameOf(m)]; ok && child.runningTasks > 0 {
		child.runningTasks--
	}
}

func poolNameOf(m sched.TaskSetManager) string {
	if m.SchedulingPool() == "" {
		return defaultPoolName
	}
	return m.SchedulingPool()
}

// GetSortedTaskSetQueue yields the current admission order (spec.md §4.5):
// child pools ordered per the root's scheduling mode, and within each pool
// its task sets in submission order. Managers that have gone zombie remain
// in the queue (they're only removed by an explicit taskSetFinished call)
// so callers that must skip them (PlacementEngine) do so explicitly.
func (root *Pool) GetSortedTaskSetQueue() []sched.TaskSetManager {
	children := make([]*Pool, 0, len(root.children))
	for _, c := range root.children {
		children = append(children, c)
	}
	sortPools(children, root.mode, root.sortPolicy)

	var out []sched.TaskSetManager
	for _, c := range children {
		entries := append([]*entry{}, c.entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
		for _, e := range entries {
			out = append(out, e.manager)
		}
	}
	return out
}

// sortPools orders child pools per the root's scheduling mode.
//   - FIFO, NONE: pools are ordered by the submission seq of their oldest
//     entry, i.e. whichever pool got a task set first goes first. NONE
//     additionally never reorders after the fact (no preemption hook), but
//     since this implementation always recomputes order from current state
//     the observable difference from FIFO is that NONE-mode pools never
//     factor running-task counts in, which they don't anyway.
//   - FAIR: ordering is delegated to sortPolicy's comparator (see
//     SortingPolicy); the classic weighted fair share is FairSortPolicy, the
//     default.
//   - CPU: ordered by the lowest Priority() among each pool's task sets
//     (lower first), ties broken by the submission order of the task set
//     carrying that priority.
func sortPools(children []*Pool, mode sched.SchedulingMode, sortPolicy SortingPolicy) {
	switch mode {
	case FAIR:
		cmp, ok := sortComparators[sortPolicy]
		if !ok {
			cmp = sortComparators[FairSortPolicy]
		}
		sort.Slice(children, func(i, j int) bool { return cmp(children[i], children[j]) })
	case CPU:
		sort.Slice(children, func(i, j int) bool {
			a, b := children[i], children[j]
			ap, aseq := headPriority(a)
			bp, bseq := headPriority(b)
			if ap != bp {
				return ap < bp
			}
			return aseq < bseq
		})
	default: // FIFO, NONE
		sort.Slice(children, func(i, j int) bool {
			return oldestSeq(children[i]) < oldestSeq(children[j])
		})
	}
}

func weightOf(p *Pool) int {
	if p.weight <= 0 {
		return 1
	}
	return p.weight
}

func oldestSeq(p *Pool) int64 {
	min := int64(-1)
	for _, e := range p.entries {
		if min == -1 || e.seq < min {
			min = e.seq
		}
	}
	return min
}

func headPriority(p *Pool) (int, int64) {
	bestPriority := 0
	bestSeq := int64(-1)
	for i, e := range p.entries {
		if i == 0 || e.manager.Priority() < bestPriority {
			bestPriority = e.manager.Priority()
			bestSeq = e.seq
		}
	}
	return bestPriority, bestSeq
}

// CheckSpeculatableTasks asks every attached task set whether it has
// speculatable tasks (spec.md §4.6); true if any does.
func (root *Pool) CheckSpeculatableTasks() bool {
	any := false
	for _, c := range root.children {
		for _, e := range c.entries {
			if e.manager.CheckSpeculatableTasks() {
				any = true
			}
		}
	}
	return any
}

// Mirror the sched package's mode constants so callers of this package
// don't need a second import for switch-casing on mode.
const (
	FIFO = sched.FIFO
	FAIR = sched.FAIR
	CPU  = sched.CPU
	NONE = sched.NONE
)
