package server

import (
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/dpr-analyzer/constants"
	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
	"github.com/joseph-ayodele/dpr-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/dpr-analyzer/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler carries the API surface's dependencies.
type Handler struct {
	orc       *pipeline.Orchestrator
	queue     *pipeline.Queue
	reports   *report.Service
	maxUpload int64

	extractorCmd     string
	predictorEnabled bool

	logger *slog.Logger
}

func NewHandler(orc *pipeline.Orchestrator, queue *pipeline.Queue, reports *report.Service, maxUpload int64, extractorCmd string, predictorEnabled bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orc:              orc,
		queue:            queue,
		reports:          reports,
		maxUpload:        maxUpload,
		extractorCmd:     extractorCmd,
		predictorEnabled: predictorEnabled,
		logger:           logger,
	}
}

// Health reports liveness plus availability of the external collaborators.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, lookErr := exec.LookPath(h.extractorCmd)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"extractor_available":  lookErr == nil,
		"ai_analysis_enabled":  h.predictorEnabled,
	})
}

// SubmitDocument accepts a multipart upload and queues the job. The job runs
// asynchronously; callers poll GetJob for real stage transitions.
func (h *Handler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	job, ok := h.acceptUpload(w, r)
	if !ok {
		return
	}
	if err := h.queue.Enqueue(r.Context(), job.ID); err != nil {
		// The job will never run; drop its stored upload now rather
		// than leaving it for the next restart sweep.
		h.orc.Discard(job.ID)
		writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "the service is shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID.String(),
		"filename": job.SourceFilename,
	})
}

// SubmitDocumentSync accepts an upload, runs the whole pipeline inline, and
// returns the assembled result. The job record is dropped as soon as the
// response is delivered; nothing about it is kept for later lookup.
func (h *Handler) SubmitDocumentSync(w http.ResponseWriter, r *http.Request) {
	job, ok := h.acceptUpload(w, r)
	if !ok {
		return
	}
	defer h.orc.Evict(job.ID)

	result, err := h.orc.Run(r.Context(), job.ID)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetJob exposes the orchestrator's authoritative stage and status.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	snap := job.Snapshot()

	body := map[string]any{
		"job_id":     snap.ID.String(),
		"filename":   snap.SourceFilename,
		"stage":      snap.Stage,
		"status":     snap.Status,
		"created_at": snap.CreatedAt.Format(time.RFC3339),
	}
	switch {
	case snap.Status == constants.JobStatusSucceeded && snap.Result != nil:
		body["result"] = snap.Result
	case snap.Status == constants.JobStatusFailed && snap.Err != nil:
		kind := common.Kind(snap.Err)
		body["error"] = map[string]string{
			"code":    kind,
			"message": kindMessage(kind),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// CancelJob requests best-effort cancellation.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if err := h.orc.Cancel(job.ID); err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID.String(),
		"status": "cancelling",
	})
}

// JobReport streams the XLSX report for a succeeded job.
func (h *Handler) JobReport(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	snap := job.Snapshot()
	if snap.Status != constants.JobStatusSucceeded {
		writeError(w, http.StatusConflict, "JOB_NOT_COMPLETE", "report is only available for succeeded jobs")
		return
	}

	bs, err := h.reports.BuildJobReportXLSX(snap)
	if err != nil {
		h.logger.Error("report.build_failed", "job_id", snap.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to build report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="analysis-`+snap.ID.String()+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bs)
}

// acceptUpload parses the multipart form and submits the document. On any
// rejection it writes the response itself and returns ok=false.
func (h *Handler) acceptUpload(w http.ResponseWriter, r *http.Request) (*pipeline.Job, bool) {
	// Headroom over the document ceiling for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "multipart field 'file' is required")
		return nil, false
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "no file selected")
		return nil, false
	}

	declaredMIME := header.Header.Get("Content-Type")
	if declaredMIME == "" {
		declaredMIME = constants.MIMEPDF
	}

	job, err := h.orc.Submit(r.Context(), file, header.Size, declaredMIME, header.Filename)
	if err != nil {
		h.writePipelineError(w, err)
		return nil, false
	}
	return job, true
}

func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request) (*pipeline.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "job id must be a UUID")
		return nil, false
	}
	job, err := h.orc.Lookup(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such job")
		return nil, false
	}
	return job, true
}

// writePipelineError maps a pipeline error onto an HTTP status. The
// underlying cause stays in logs; callers get the stage-tagged kind and a
// generic message.
func (h *Handler) writePipelineError(w http.ResponseWriter, err error) {
	kind := common.Kind(err)
	h.logger.Error("api.pipeline_error", "kind", kind, "error", err)
	writeError(w, statusForKind(kind), kind, kindMessage(kind))
}

func statusForKind(kind string) int {
	switch kind {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "UNSUPPORTED_MEDIA_TYPE":
		return http.StatusUnsupportedMediaType
	case "NOT_FOUND":
		return http.StatusNotFound
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "CANCELLED":
		return http.StatusConflict
	case "EXTRACTION_FAILED", "ARTIFACT_RESOLUTION_FAILED":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindMessage(kind string) string {
	switch kind {
	case "INVALID_INPUT":
		return "the upload is empty or exceeds the size ceiling"
	case "UNSUPPORTED_MEDIA_TYPE":
		return "only PDF documents are supported"
	case "EXTRACTION_FAILED":
		return "text extraction failed for this document"
	case "ARTIFACT_RESOLUTION_FAILED":
		return "extraction finished but its output could not be located"
	case "TIMEOUT":
		return "processing exceeded the configured stage timeout"
	case "CANCELLED":
		return "the job was cancelled"
	case "NOT_FOUND":
		return "no such job"
	default:
		return "an internal error occurred"
	}
}
