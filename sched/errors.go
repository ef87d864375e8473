package sched

import "fmt"

// ConflictingTaskSet is raised by submitTasks when a stageId already has a
// non-zombie manager backed by a different TaskSet identity (spec.md §4.1
// step 3).
type ConflictingTaskSet struct {
	StageId string
}

func (e *ConflictingTaskSet) Error() string {
	return fmt.Sprintf("sched: stage %s already has a non-zombie task set with a different identity", e.StageId)
}

// ConfigurationError is raised for unrecognized configuration values, such
// as an unknown scheduling-mode name (spec.md §6). It is fatal at startup.
type ConfigurationError struct {
	Field string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sched: invalid configuration for %s: %q", e.Field, e.Value)
}
