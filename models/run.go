package models

import "time"

// RunStatus is the terminal status of one scheduler tick
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// SchedulerRun records one invocation attempt. It lives only for the
// current run's decision-making and is not persisted.
type SchedulerRun struct {
	ID                 string
	StartedAt          time.Time
	EndedAt            time.Time
	Status             RunStatus
	OffersCollected    int
	WithinRunDupes     int
	ExtractionFailures int
	AttemptCount       int
	Err                error
}
