package core

import (
	"time"
)

// RunStatus describes the state of an individual execution.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusTimedOut  RunStatus = "timed_out"
	RunStatusSkipped   RunStatus = "skipped"
)

// Trigger records what caused a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Run captures a single spawned punch run for a target.
type Run struct {
	ID          string
	Target      string
	Trigger     Trigger
	Status      RunStatus
	ScheduledAt time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	ExitCode    *int
	Error       *string
	CreatedAt   time.Time
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	switch r.Status {
	case RunStatusQueued, RunStatusRunning:
		return false
	}
	return true
}
