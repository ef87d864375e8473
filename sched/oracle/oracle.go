// Package oracle defines the PredictionOracle contract (spec.md §6) that the
// PlacementEngine consumes for per-task CPU demand estimates and custom
// placement-policy selection, plus a groupcache-backed reference adapter
// and an in-memory fake for tests.
package oracle

import "github.com/tsinghua2016/ppa-bpa-scheduler/sched"

// PredictionOracle supplies per-task CPU demand predictions and records
// re-predictions when a placement policy had to downgrade its estimate
// (spec.md §4.3 PPA/BPA fallback branches). It is assumed process-wide and
// safe for concurrent use (spec.md §5).
type PredictionOracle interface {
	// IsCustomize reports whether a custom placement policy (PPA or BPA)
	// should override the default round-robin policy this round.
	IsCustomize() bool

	// Mode names the custom policy to use when IsCustomize is true.
	Mode() sched.PlacementPolicy

	// CpuCore returns the predicted CPU demand (in the same 1/100-worker
	// units as WorkerOffer.Cores) for the given task.
	CpuCore(taskId int64) int

	// RePrediction records that a placement policy found no worker with
	// enough residual for taskId's prediction; `residual` is the capacity it
	// fell back on (PPA places the task on that worker anyway, BPA leaves it
	// unplaced and ends the round), so future predictions for this task
	// should be downgraded accordingly.
	RePrediction(taskId int64, residual int)

	// GetSchedulingMode lets the oracle override the configured scheduling
	// mode; returning the input unchanged preserves it.
	GetSchedulingMode(current sched.SchedulingMode) sched.SchedulingMode
}
