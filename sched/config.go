package sched

import "time"

// Config holds scheduler-core configuration values named in spec.md §6.
// Represented as JSON on disk, the way the teacher's sched.SchedConfig is,
// trimmed to only what this core reads (no cluster/queue/worker-transport
// config: those belong to the out-of-scope backend).
type Config struct {
	// SchedulingMode selects the root pool's task-set ordering: FIFO, FAIR,
	// CPU or NONE.
	SchedulingMode string `json:"schedulingMode,omitempty"`

	// CpusPerTask is the residual-capacity cost of one default-policy task
	// dispatch (spec.md §4.3 "Default policy").
	CpusPerTask int `json:"cpusPerTask,omitempty"`

	// MaxTaskFailures bounds how many times a task may fail before its
	// manager reports the stage aborted (spec.md §7).
	MaxTaskFailures int `json:"maxTaskFailures,omitempty"`

	// SpeculationEnabled toggles the SpeculationTicker (spec.md §4.6).
	SpeculationEnabled bool `json:"speculationEnabled,omitempty"`

	// SpeculationInterval is how often the ticker polls the root pool.
	SpeculationInterval time.Duration `json:"speculationInterval,omitempty"`

	// StarvationTimeout is how long the first submitted task set can go
	// without a launch before the StarvationWatchdog starts warning.
	StarvationTimeout time.Duration `json:"starvationTimeout,omitempty"`

	// IsLocal disables the StarvationWatchdog and SpeculationTicker, since
	// a local backend doesn't suffer the offer-round delays they guard
	// against (spec.md §4.1 step 5, §4.6).
	IsLocal bool `json:"isLocal,omitempty"`
}

// DefaultConfig returns the spec.md §6 default values.
func DefaultConfig() Config {
	return Config{
		SchedulingMode:      "FIFO",
		CpusPerTask:         1,
		MaxTaskFailures:     4,
		SpeculationEnabled:  false,
		SpeculationInterval: 100 * time.Millisecond,
		StarvationTimeout:   15 * time.Second,
	}
}

// Mode parses the configured scheduling-mode name, falling back to FIFO
// when unset so a zero-value Config (e.g. from an un-populated JSON file)
// is still usable.
func (c Config) Mode() (SchedulingMode, error) {
	if c.SchedulingMode == "" {
		return FIFO, nil
	}
	return SchedulingModeFromName(c.SchedulingMode)
}
