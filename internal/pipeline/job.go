package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/dpr-analyzer/constants"
	"github.com/joseph-ayodele/dpr-analyzer/internal/artifact"
	"github.com/joseph-ayodele/dpr-analyzer/internal/assemble"
)

// Job is one document's pass through the pipeline, from submission to a
// terminal state. Only the orchestrator mutates it.
type Job struct {
	ID             uuid.UUID
	SourceFilename string
	CreatedAt      time.Time

	mu     sync.RWMutex
	stage  constants.Stage
	status constants.JobStatus
	err    error
	result *assemble.Result

	doc       artifact.Document
	cancel    context.CancelFunc
	cancelled bool

	runOnce sync.Once
	done    chan struct{}
}

// Snapshot is a consistent, read-only view of a job for the API surface.
type Snapshot struct {
	ID             uuid.UUID
	SourceFilename string
	CreatedAt      time.Time
	Stage          constants.Stage
	Status         constants.JobStatus
	Err            error
	Result         *assemble.Result
}

func newJob(doc artifact.Document) *Job {
	return &Job{
		ID:             doc.JobID,
		SourceFilename: doc.OriginalFilename,
		CreatedAt:      time.Now().UTC(),
		stage:          constants.StageIngest,
		status:         constants.JobStatusPending,
		doc:            doc,
		done:           make(chan struct{}),
	}
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		ID:             j.ID,
		SourceFilename: j.SourceFilename,
		CreatedAt:      j.CreatedAt,
		Stage:          j.stage,
		Status:         j.status,
		Err:            j.err,
		Result:         j.result,
	}
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) setRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = constants.JobStatusRunning
}

func (j *Job) advance(stage constants.Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = stage
}

func (j *Job) succeed(res *assemble.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = constants.JobStatusSucceeded
	j.result = res
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = constants.JobStatusFailed
	j.err = err
}
