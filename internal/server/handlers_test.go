package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/dpr-analyzer/constants"
	"github.com/joseph-ayodele/dpr-analyzer/internal/artifact"
	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
	"github.com/joseph-ayodele/dpr-analyzer/internal/extract"
	"github.com/joseph-ayodele/dpr-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/dpr-analyzer/internal/predict"
	"github.com/joseph-ayodele/dpr-analyzer/internal/report"
)

type fakeExtractor struct {
	ExtractFunc func(ctx context.Context, inputPath, originalFilename, outputDir string) (extract.Artifact, error)
}

func (f fakeExtractor) Extract(ctx context.Context, inputPath, originalFilename, outputDir string) (extract.Artifact, error) {
	return f.ExtractFunc(ctx, inputPath, originalFilename, outputDir)
}

type fakePredictor struct {
	PredictFunc func(ctx context.Context, text string) predict.Result
}

func (f fakePredictor) Predict(ctx context.Context, text string) predict.Result {
	return f.PredictFunc(ctx, text)
}

func goodExtractor() fakeExtractor {
	return fakeExtractor{ExtractFunc: func(context.Context, string, string, string) (extract.Artifact, error) {
		return extract.Artifact{
			Text:         "Bridge construction project.",
			RawJSON:      []byte(`{"metadata": {}, "content": {"full_text": "Bridge construction project."}}`),
			TxtFilename:  "report.txt",
			JSONFilename: "report.json",
			ResolvedBy:   extract.ResolvedExactMatch,
		}, nil
	}}
}

func goodPredictor() fakePredictor {
	return fakePredictor{PredictFunc: func(context.Context, string) predict.Result {
		return predict.Result{
			Available:     true,
			Feasibility:   predict.Feasible,
			Confidence:    0.85,
			Probabilities: predict.Probabilities{Feasible: 0.85, Risky: 0.15},
		}
	}}
}

func newTestServer(t *testing.T, ext pipeline.Extractor, pred pipeline.Predictor) (*httptest.Server, *pipeline.Orchestrator) {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir(), 1<<20, nil, nil)
	require.NoError(t, err)

	orc := pipeline.NewOrchestrator(store, ext, pred, nil)
	queue := pipeline.NewQueue(orc, nil, pipeline.WithWorkers(2), pipeline.WithQueueSize(8))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		queue.Shutdown(ctx)
	})

	h := NewHandler(orc, queue, report.NewService(nil), 1<<20, "sh", true, nil)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, orc
}

func multipartBody(t *testing.T, field, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postDocument(t *testing.T, srv *httptest.Server, path, filename, contentType string) *http.Response {
	t.Helper()
	body, formType := multipartBody(t, "file", filename, contentType, "%PDF-1.4 test content")
	resp, err := http.Post(srv.URL+path, formType, body)
	require.NoError(t, err)
	return resp
}

func uuidMustParse(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func TestSubmitDocumentSync_HappyPath(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp := postDocument(t, srv, "/api/v1/documents/sync", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "report.pdf", body["filename"])
	assert.Equal(t, "Bridge construction project.", body["txtContent"])
	assert.Equal(t, "report.txt", body["txtFilename"])
	assert.Equal(t, "report.json", body["jsonFilename"])

	pred, ok := body["prediction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, pred["ai_analysis_available"])
	assert.Equal(t, "Feasible", pred["feasibility"])
}

func TestSubmitDocument_AsyncLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp := postDocument(t, srv, "/api/v1/documents", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeJSON(t, resp)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	// Poll until the worker finishes the job.
	deadline := time.Now().Add(5 * time.Second)
	var status map[string]any
	for {
		getResp, err := http.Get(srv.URL + "/api/v1/jobs/" + jobID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, getResp.StatusCode)
		status = decodeJSON(t, getResp)
		if status["status"] == string(constants.JobStatusSucceeded) || status["status"] == string(constants.JobStatusFailed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached a terminal state: %v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, string(constants.JobStatusSucceeded), status["status"])
	assert.Equal(t, string(constants.StageAssemble), status["stage"])
	result, ok := status["result"].(map[string]any)
	require.True(t, ok, "succeeded job must expose its result")
	assert.Equal(t, "report.pdf", result["filename"])
}

func TestSubmitDocument_RejectsNonPDF(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp := postDocument(t, srv, "/api/v1/documents/sync", "report.pdf", "text/plain")
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	body := decodeJSON(t, resp)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", errObj["code"])
}

func TestSubmitDocument_MissingFileField(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp, err := http.Post(srv.URL+"/api/v1/documents/sync", "multipart/form-data; boundary=xxx", bytes.NewReader(nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON(t, resp)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", errObj["code"])
}

func TestSubmitDocumentSync_ExtractionFailureMapsTo502(t *testing.T) {
	srv, _ := newTestServer(t,
		fakeExtractor{ExtractFunc: func(context.Context, string, string, string) (extract.Artifact, error) {
			return extract.Artifact{}, fmt.Errorf("%w: exit code 2", common.ErrExtractionFailed)
		}},
		goodPredictor(),
	)

	resp := postDocument(t, srv, "/api/v1/documents/sync", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decodeJSON(t, resp)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EXTRACTION_FAILED", errObj["code"])
	// The message is generic; internals never leak to callers.
	assert.NotContains(t, errObj["message"], "exit code")
}

func TestSubmitDocumentSync_DegradedPredictionIs200(t *testing.T) {
	srv, _ := newTestServer(t,
		goodExtractor(),
		fakePredictor{PredictFunc: func(context.Context, string) predict.Result {
			return predict.Result{Available: false, Reason: "classification service is unreachable"}
		}},
	)

	resp := postDocument(t, srv, "/api/v1/documents/sync", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, true, body["success"])
	pred, ok := body["prediction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, pred["ai_analysis_available"])
	assert.Equal(t, "classification service is unreachable", pred["reason"])
}

func TestSubmitDocument_ShuttingDownIs503(t *testing.T) {
	root := t.TempDir()
	store, err := artifact.NewStore(root, 1<<20, nil, nil)
	require.NoError(t, err)

	orc := pipeline.NewOrchestrator(store, goodExtractor(), goodPredictor(), nil)
	queue := pipeline.NewQueue(orc, nil, pipeline.WithWorkers(1), pipeline.WithQueueSize(1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	queue.Shutdown(ctx)

	h := NewHandler(orc, queue, report.NewService(nil), 1<<20, "sh", true, nil)
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	resp := postDocument(t, srv, "/api/v1/documents", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decodeJSON(t, resp)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SHUTTING_DOWN", errObj["code"])

	// The refused upload does not linger on disk waiting for a restart
	// sweep.
	entries, err := os.ReadDir(filepath.Join(root, "jobs"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetJob_UnknownID(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp, err := http.Get(srv.URL + "/api/v1/jobs/6e8bc430-9c3a-11d9-9669-0800200c9a66")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetJob_MalformedID(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp, err := http.Get(srv.URL + "/api/v1/jobs/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	started := make(chan struct{})
	srv, orc := newTestServer(t,
		fakeExtractor{ExtractFunc: func(ctx context.Context, _, _, _ string) (extract.Artifact, error) {
			close(started)
			<-ctx.Done()
			return extract.Artifact{}, ctx.Err()
		}},
		goodPredictor(),
	)

	resp := postDocument(t, srv, "/api/v1/documents", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeJSON(t, resp)
	jobID := body["job_id"].(string)

	<-started
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/jobs/"+jobID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	require.Equal(t, http.StatusAccepted, delResp.StatusCode)

	job, err := orc.Lookup(uuidMustParse(t, jobID))
	require.NoError(t, err)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled job never terminated")
	}
	assert.Equal(t, constants.JobStatusFailed, job.Snapshot().Status)
}

func TestJobReport_OnlyForSucceededJobs(t *testing.T) {
	srv, orc := newTestServer(t, goodExtractor(), goodPredictor())

	resp := postDocument(t, srv, "/api/v1/documents", "report.pdf", constants.MIMEPDF)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := decodeJSON(t, resp)["job_id"].(string)

	job, err := orc.Lookup(uuidMustParse(t, jobID))
	require.NoError(t, err)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job never finished")
	}

	repResp, err := http.Get(srv.URL + "/api/v1/jobs/" + jobID + "/report.xlsx")
	require.NoError(t, err)
	defer repResp.Body.Close()
	require.Equal(t, http.StatusOK, repResp.StatusCode)
	assert.Equal(t, xlsxContentType, repResp.Header.Get("Content-Type"))

	bs, err := io.ReadAll(repResp.Body)
	require.NoError(t, err)
	// XLSX is a zip container.
	require.Greater(t, len(bs), 4)
	assert.Equal(t, []byte{'P', 'K'}, bs[:2])
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, goodExtractor(), goodPredictor())

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "ok", body["status"])
	// The test handler is configured with "sh", which is always on PATH.
	assert.Equal(t, true, body["extractor_available"])
	assert.Equal(t, true, body["ai_analysis_enabled"])
}
