package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/dpr-analyzer/constants"
	"github.com/joseph-ayodele/dpr-analyzer/internal/assemble"
	"github.com/joseph-ayodele/dpr-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/dpr-analyzer/internal/predict"
)

func succeededSnapshot(pred assemble.Prediction) pipeline.Snapshot {
	return pipeline.Snapshot{
		ID:     uuid.New(),
		Status: constants.JobStatusSucceeded,
		Stage:  constants.StageAssemble,
		Result: &assemble.Result{
			Success:      true,
			Filename:     "report.pdf",
			ReceivedAt:   time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			SizeBytes:    2048,
			TxtContent:   "Bridge construction project.",
			TxtFilename:  "report.txt",
			JSONContent:  []byte(`{"metadata": {}}`),
			JSONFilename: "report.json",
			Prediction:   pred,
		},
	}
}

// cellValues reads column A of the Analysis sheet back out of the workbook.
func cellValues(t *testing.T, bs []byte) []string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(bs))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Analysis")
	require.NoError(t, err)

	var labels []string
	for _, row := range rows {
		if len(row) > 0 {
			labels = append(labels, row[0])
		}
	}
	return labels
}

func TestBuildJobReportXLSX_WithPrediction(t *testing.T) {
	svc := NewService(nil)
	probs := predict.Probabilities{Feasible: 0.85, Risky: 0.15}
	signals := predict.Signals{BudgetCrores: 20, TimelineMonths: 24}

	snap := succeededSnapshot(assemble.Prediction{
		Available:     true,
		Feasibility:   predict.Feasible,
		Confidence:    0.85,
		Probabilities: &probs,
		TopFeatures:   []predict.Feature{{Name: "budget_crores", Importance: 0.4, Kind: "numeric"}},
		Signals:       &signals,
	})

	bs, err := svc.BuildJobReportXLSX(snap)
	require.NoError(t, err)

	labels := cellValues(t, bs)
	assert.Contains(t, labels, "Document")
	assert.Contains(t, labels, "Feasibility")
	assert.Contains(t, labels, "P(Feasible)")
	assert.Contains(t, labels, "Budget (crores)")
	assert.Contains(t, labels, "budget_crores")
	assert.NotContains(t, labels, "Feasibility Analysis")
}

func TestBuildJobReportXLSX_DegradedPrediction(t *testing.T) {
	svc := NewService(nil)
	snap := succeededSnapshot(assemble.Prediction{
		Available: false,
		Reason:    "classification service is unreachable",
	})

	bs, err := svc.BuildJobReportXLSX(snap)
	require.NoError(t, err)

	labels := cellValues(t, bs)
	assert.Contains(t, labels, "Feasibility Analysis")
	assert.Contains(t, labels, "Reason")
	assert.NotContains(t, labels, "Feasibility")
}

func TestBuildJobReportXLSX_RequiresResult(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.BuildJobReportXLSX(pipeline.Snapshot{ID: uuid.New(), Status: constants.JobStatusFailed})
	require.Error(t, err)
}
