package domain

// JobStatus is the lifecycle state of a transcription job
type JobStatus string

// Job status constants
const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition can leave the status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// canTransition enforces the job state machine edges
func canTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusProcessing || to.IsTerminal()
	default:
		return false
	}
}
