package constants

// JobStatus is the canonical status of an analysis job.
type JobStatus string

// Stable values (these exact strings go out over the API).
const (
	JobStatusPending   JobStatus = "PENDING"   // accepted, not yet started
	JobStatusRunning   JobStatus = "RUNNING"   // in progress
	JobStatusSucceeded JobStatus = "SUCCEEDED" // terminal success
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
)

// Terminal reports whether a status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Stage is one ordered phase of the analysis pipeline.
type Stage string

const (
	StageIngest      Stage = "INGEST"
	StageExtract     Stage = "EXTRACT"
	StageFeasibility Stage = "FEASIBILITY"
	StageAssemble    Stage = "ASSEMBLE"
)
