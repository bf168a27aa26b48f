package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/dpr-analyzer/constants"
	"github.com/joseph-ayodele/dpr-analyzer/internal/artifact"
	"github.com/joseph-ayodele/dpr-analyzer/internal/assemble"
	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
	"github.com/joseph-ayodele/dpr-analyzer/internal/extract"
	"github.com/joseph-ayodele/dpr-analyzer/internal/predict"
)

// Extractor obtains the .txt/.json pair for a stored document.
type Extractor interface {
	Extract(ctx context.Context, inputPath, originalFilename, outputDir string) (extract.Artifact, error)
}

// Predictor turns extracted text into a normalized prediction result.
// Degradation is its job; it never fails the pipeline.
type Predictor interface {
	Predict(ctx context.Context, text string) predict.Result
}

// Orchestrator drives jobs end-to-end and is the single source of truth for
// stage and status. One job, one goroutine; stages run strictly in order.
type Orchestrator struct {
	store        *artifact.Store
	extractor    Extractor
	predictor    Predictor
	slots        *semaphore.Weighted
	stageTimeout time.Duration
	retention    time.Duration
	logger       *slog.Logger

	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

type Option func(*Orchestrator)

// WithStageTimeout sets the wall-clock ceiling for a single stage.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stageTimeout = d
		}
	}
}

// WithExternalSlots caps concurrent external calls (extraction processes and
// classifier requests) across all jobs.
func WithExternalSlots(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRetention sets how long a terminal job stays visible to Lookup before
// it is evicted from the registry.
func WithRetention(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retention = d
		}
	}
}

func NewOrchestrator(store *artifact.Store, extractor Extractor, predictor Predictor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:        store,
		extractor:    extractor,
		predictor:    predictor,
		slots:        semaphore.NewWeighted(4),
		stageTimeout: 2 * time.Minute,
		retention:    5 * time.Minute,
		logger:       logger,
		jobs:         make(map[uuid.UUID]*Job),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates and stores the upload, creating a Pending job. It returns
// without running any stage; rejected uploads never create a job and leave
// nothing on disk.
func (o *Orchestrator) Submit(ctx context.Context, upload io.Reader, declaredLen int64, declaredMIME, originalFilename string) (*Job, error) {
	jobID := uuid.New()

	doc, err := o.store.Acquire(ctx, jobID, upload, declaredLen, declaredMIME, originalFilename)
	if err != nil {
		return nil, err
	}

	job := newJob(doc)
	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	o.logger.Info("pipeline.submitted",
		"job_id", job.ID,
		"filename", doc.OriginalFilename,
		"size_bytes", doc.SizeBytes,
	)
	return job, nil
}

// Run executes the job's stages in order. At most once per job: a second
// call, concurrent or after completion, returns the stored outcome. ctx
// bounds only the wait for the result; when it expires the job keeps running
// in the background and still cleans up after itself.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) (*assemble.Result, error) {
	job, err := o.Lookup(jobID)
	if err != nil {
		return nil, err
	}

	job.runOnce.Do(func() { go o.execute(job) })

	select {
	case <-job.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: result delivery abandoned", common.ErrCancelled)
	}

	snap := job.Snapshot()
	return snap.Result, snap.Err
}

// Cancel is best-effort: it aborts the in-flight external call if one is
// running, or prevents a pending job from starting. Terminal jobs are left
// alone.
func (o *Orchestrator) Cancel(jobID uuid.UUID) error {
	job, err := o.Lookup(jobID)
	if err != nil {
		return err
	}

	job.mu.Lock()
	if job.status.Terminal() {
		job.mu.Unlock()
		return nil
	}
	job.cancelled = true
	cancel := job.cancel
	job.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.logger.Info("pipeline.cancel_requested", "job_id", jobID)
	return nil
}

// Lookup returns the job or ErrNotFound.
func (o *Orchestrator) Lookup(jobID uuid.UUID) (*Job, error) {
	o.mu.RLock()
	job, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, jobID)
	}
	return job, nil
}

// Evict drops a job from the registry. Callers invoke it once the result has
// been delivered; terminal jobs are otherwise evicted when their retention
// window lapses. Evicting a running job only removes it from Lookup — the
// run itself proceeds and releases its artifacts as usual.
func (o *Orchestrator) Evict(jobID uuid.UUID) {
	o.mu.Lock()
	_, ok := o.jobs[jobID]
	delete(o.jobs, jobID)
	o.mu.Unlock()
	if ok {
		o.logger.Debug("pipeline.evicted", "job_id", jobID)
	}
}

// Discard drops a submitted job that will never be run, releasing its
// artifacts immediately. The runOnce claim makes it mutually exclusive with
// Run: whichever gets there first owns the job's lifecycle.
func (o *Orchestrator) Discard(jobID uuid.UUID) {
	job, err := o.Lookup(jobID)
	if err != nil {
		return
	}
	job.runOnce.Do(func() {
		job.fail(fmt.Errorf("%w: discarded before start", common.ErrCancelled))
		o.release(job)
		close(job.done)
	})
	o.Evict(jobID)
}

// execute runs the stage sequence for one job. Cleanup is unconditional:
// whatever the exit path, the job's artifacts are released before the job is
// observable as terminal.
func (o *Orchestrator) execute(job *Job) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline.panic", "job_id", job.ID, "panic", r)
			job.fail(fmt.Errorf("%w: %v", common.ErrInternal, r))
		}
		o.release(job)
		close(job.done)

		// Jobs are not history: once the retention window for result
		// pickup lapses, the record goes away with its artifacts.
		time.AfterFunc(o.retention, func() { o.Evict(job.ID) })

		snap := job.Snapshot()
		o.logger.Info("pipeline.finished",
			"job_id", job.ID,
			"status", snap.Status,
			"stage", snap.Stage,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}()

	job.mu.Lock()
	if job.cancelled {
		job.mu.Unlock()
		job.fail(fmt.Errorf("%w: before start", common.ErrCancelled))
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel
	job.mu.Unlock()
	defer cancel()

	job.setRunning()

	// Extract
	job.advance(constants.StageExtract)
	art, err := o.runExtract(runCtx, job)
	if err != nil {
		job.fail(o.classify(runCtx, constants.StageExtract, err))
		return
	}

	// Feasibility — degraded results are success; cancellation is not.
	job.advance(constants.StageFeasibility)
	pred := o.runPredict(runCtx, art.Text)
	if runCtx.Err() != nil {
		job.fail(o.classify(runCtx, constants.StageFeasibility, runCtx.Err()))
		return
	}

	// Assemble — pure merge, no external calls.
	job.advance(constants.StageAssemble)
	result := assemble.Merge(art, pred, assemble.RequestMeta{
		OriginalFilename: job.doc.OriginalFilename,
		ReceivedAt:       job.CreatedAt,
		SizeBytes:        job.doc.SizeBytes,
	})

	job.succeed(result)
}

func (o *Orchestrator) runExtract(runCtx context.Context, job *Job) (extract.Artifact, error) {
	if err := o.slots.Acquire(runCtx, 1); err != nil {
		return extract.Artifact{}, err
	}
	defer o.slots.Release(1)

	stageCtx, cancel := context.WithTimeout(runCtx, o.stageTimeout)
	defer cancel()

	return o.extractor.Extract(stageCtx, job.doc.StoragePath, job.doc.OriginalFilename, job.doc.OutputDir)
}

func (o *Orchestrator) runPredict(runCtx context.Context, text string) predict.Result {
	if err := o.slots.Acquire(runCtx, 1); err != nil {
		return predict.Result{Available: false, Reason: "analysis aborted"}
	}
	defer o.slots.Release(1)

	stageCtx, cancel := context.WithTimeout(runCtx, o.stageTimeout)
	defer cancel()

	return o.predictor.Predict(stageCtx, text)
}

// classify folds any stage error into the terminal taxonomy, tagging it with
// the stage that failed. Errors already carrying a pipeline kind pass
// through; bare context errors become Timeout/Cancelled; anything else is
// Internal.
func (o *Orchestrator) classify(runCtx context.Context, stage constants.Stage, err error) error {
	kinds := []error{
		common.ErrExtractionFailed,
		common.ErrArtifactResolution,
		common.ErrTimeout,
		common.ErrCancelled,
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			o.logStageFailure(stage, err)
			return err
		}
	}

	switch {
	case errors.Is(runCtx.Err(), context.Canceled):
		err = fmt.Errorf("%w: stage %s", common.ErrCancelled, stage)
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: stage %s", common.ErrTimeout, stage)
	default:
		err = fmt.Errorf("%w: stage %s: %v", common.ErrInternal, stage, err)
	}
	o.logStageFailure(stage, err)
	return err
}

func (o *Orchestrator) logStageFailure(stage constants.Stage, err error) {
	o.logger.Error("pipeline.stage.failed", "stage", stage, "error", err)
}

func (o *Orchestrator) release(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.Release(ctx, job.ID); err != nil {
		o.logger.Error("pipeline.release_failed", "job_id", job.ID, "error", err)
	}
}
