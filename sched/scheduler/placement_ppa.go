package scheduler

import "github.com/tsinghua2016/ppa-bpa-scheduler/sched"

// runPPA implements the Priority Placement Algorithm (spec.md §4.3 "PPA").
// It drains ts's offers at this locality into allTasks, then repeatedly
// assigns the head task to whichever worker minimizes leftover residual,
// falling back to the worker with the most residual -- with a downgraded
// prediction -- when no worker can fully satisfy the demand.
//
// The second return value reports whether the whole round must stop: the
// fallback branch only fires once a full scan found no worker with enough
// residual, and if even the best (max-residual) worker is already at zero,
// no further placement is possible this round (spec.md §4.3 step 3).
func (e *PlacementEngine) runPPA(ts sched.TaskSetManager, locality sched.LocalityLevel, round *offerRound) (dispatched bool, abortRound bool) {
	allTasks := drainManager(ts, locality)

	for len(allTasks) > 0 {
		desc := allTasks[0]
		consume := e.oracle.CpuCore(desc.TaskId)

		maxIdx, maxLeft := -1, -1
		selectIdx, minLeft := -1, -1
		for i, avail := range round.avail {
			if avail > maxLeft {
				maxIdx, maxLeft = i, avail
			}
			if avail >= consume {
				left := avail - consume
				if selectIdx == -1 || left < minLeft {
					selectIdx, minLeft = i, left
				}
			}
		}

		var chosen int
		if selectIdx != -1 {
			chosen = selectIdx
			round.avail[chosen] -= consume
		} else {
			if maxIdx == -1 || maxLeft == 0 {
				return dispatched, true
			}
			e.oracle.RePrediction(desc.TaskId, maxLeft)
			chosen = maxIdx
			round.avail[chosen] = 0
		}

		desc.ExecutorId = round.execIds[chosen]
		round.tasks[chosen] = append(round.tasks[chosen], desc)
		e.registry.RecordDispatch(desc.TaskId, ts, round.execIds[chosen])
		e.pool.IncrementRunningTasks(ts)
		dispatched = true
		allTasks = allTasks[1:]
	}
	return dispatched, false
}
