package scheduler

import "github.com/tsinghua2016/ppa-bpa-scheduler/sched"

// bpaBins partitions worker indices into the three residual bins spec.md
// §4.3 "BPA" names. Bins hold indices, not residual snapshots: the live
// residual always comes from offerRound.avail, so a bin's membership is
// "stale" only in the sense the spec calls out -- a worker isn't moved
// between bins just because its residual changed, only at the explicit
// pop/push points the algorithm names.
type bpaBins struct {
	free   []int
	active []int
	extra  []int
}

func newBPABins(round *offerRound) *bpaBins {
	b := &bpaBins{}
	for i, avail := range round.avail {
		switch {
		case avail >= 100:
			b.free = append(b.free, i)
		case avail > 0 && avail <= 50:
			b.active = append(b.active, i)
		case avail > 50 && avail < 100:
			b.extra = append(b.extra, i)
		}
	}
	return b
}

func popFront(s []int) (int, []int) {
	return s[0], s[1:]
}

// runBPA implements the Bin Placement Algorithm (spec.md §4.3 "BPA").
// Bins are computed once per (taskSet, locality) call from each worker's
// current residual; see bpaBins for why they aren't recomputed mid-call.
func (e *PlacementEngine) runBPA(ts sched.TaskSetManager, locality sched.LocalityLevel, round *offerRound) (dispatched bool, abortRound bool) {
	allTasks := drainManager(ts, locality)
	bins := newBPABins(round)

	for len(allTasks) > 0 {
		desc := allTasks[0]
		consume := e.oracle.CpuCore(desc.TaskId)

		var chosen int
		selected := false
		if consume > 50 {
			chosen, selected = e.bpaSelectLarge(bins, round, consume)
		} else {
			chosen, selected = e.bpaSelectSmall(bins, round, consume)
		}

		if !selected {
			e.oracle.RePrediction(desc.TaskId, bpaHeadResidual(bins, round))
			return dispatched, true
		}

		round.avail[chosen] -= consume
		desc.ExecutorId = round.execIds[chosen]
		round.tasks[chosen] = append(round.tasks[chosen], desc)
		e.registry.RecordDispatch(desc.TaskId, ts, round.execIds[chosen])
		e.pool.IncrementRunningTasks(ts)
		dispatched = true
		allTasks = allTasks[1:]
	}
	return dispatched, false
}

func (e *PlacementEngine) bpaSelectLarge(bins *bpaBins, round *offerRound, consume int) (int, bool) {
	if len(bins.free) > 0 && round.avail[bins.free[0]] >= consume {
		var idx int
		idx, bins.free = popFront(bins.free)
		bins.active = append(bins.active, idx)
		return idx, true
	}
	for _, idx := range bins.extra {
		if round.avail[idx] >= consume {
			return idx, true
		}
	}
	return 0, false
}

func (e *PlacementEngine) bpaSelectSmall(bins *bpaBins, round *offerRound, consume int) (int, bool) {
	if len(bins.active) > 0 && round.avail[bins.active[0]] >= consume {
		return bins.active[0], true
	}
	if len(bins.active) > 0 {
		_, bins.active = popFront(bins.active)
	}

	for len(bins.extra) > 0 {
		if round.avail[bins.extra[0]] >= consume {
			return bins.extra[0], true
		}
		_, bins.extra = popFront(bins.extra)
	}

	if len(bins.free) > 0 {
		var idx int
		idx, bins.free = popFront(bins.free)
		bins.extra = append(bins.extra, idx)
		return idx, true
	}
	return 0, false
}

// bpaHeadResidual reports the residual RePrediction should record on
// selection failure: the head of whichever of extra/active is non-empty
// (spec.md §4.3's "headResidualOf(extraMachines or activeMachines)").
func bpaHeadResidual(bins *bpaBins, round *offerRound) int {
	if len(bins.extra) > 0 {
		return round.avail[bins.extra[0]]
	}
	if len(bins.active) > 0 {
		return round.avail[bins.active[0]]
	}
	return 0
}
