// Package assemble merges extraction output, prediction output, and request
// metadata into the single result object returned to callers. It is pure:
// no I/O, no error paths of its own. A missing extraction text here means an
// upstream stage broke its contract, which is a programming error.
package assemble

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/dpr-analyzer/internal/extract"
	"github.com/joseph-ayodele/dpr-analyzer/internal/predict"
)

// RequestMeta is what the caller supplied with the upload.
type RequestMeta struct {
	OriginalFilename string
	ReceivedAt       time.Time
	SizeBytes        int64
}

// Result is the externally visible contract for a completed analysis.
type Result struct {
	Success      bool            `json:"success"`
	Filename     string          `json:"filename"`
	ReceivedAt   time.Time       `json:"receivedAt"`
	SizeBytes    int64           `json:"sizeBytes"`
	TxtContent   string          `json:"txtContent"`
	TxtFilename  string          `json:"txtFilename"`
	JSONContent  json.RawMessage `json:"jsonContent"`
	JSONFilename string          `json:"jsonFilename"`
	Prediction   Prediction      `json:"prediction"`
}

// Prediction is the result's view of the classifier outcome. When the
// classifier was unavailable only the flag and reason are populated.
type Prediction struct {
	Available     bool                   `json:"ai_analysis_available"`
	Reason        string                 `json:"reason,omitempty"`
	Feasibility   string                 `json:"feasibility,omitempty"`
	Confidence    float64                `json:"confidence,omitempty"`
	Probabilities *predict.Probabilities `json:"probabilities,omitempty"`
	TopFeatures   []predict.Feature      `json:"top_features,omitempty"`
	Signals       *predict.Signals       `json:"numeric_signals,omitempty"`
}

// Merge builds the final result. art must carry non-empty text and a
// structured document; the orchestrator only calls this after a successful
// extraction stage.
func Merge(art extract.Artifact, pred predict.Result, meta RequestMeta) *Result {
	if art.Text == "" || art.RawJSON == nil {
		panic("assemble: incomplete extraction artifact")
	}

	return &Result{
		Success:      true,
		Filename:     meta.OriginalFilename,
		ReceivedAt:   meta.ReceivedAt.UTC(),
		SizeBytes:    meta.SizeBytes,
		TxtContent:   art.Text,
		TxtFilename:  art.TxtFilename,
		JSONContent:  json.RawMessage(art.RawJSON),
		JSONFilename: art.JSONFilename,
		Prediction:   mergePrediction(pred),
	}
}

func mergePrediction(pred predict.Result) Prediction {
	if !pred.Available {
		return Prediction{Available: false, Reason: pred.Reason}
	}
	probs := pred.Probabilities
	signals := pred.Signals
	return Prediction{
		Available:     true,
		Feasibility:   pred.Feasibility,
		Confidence:    pred.Confidence,
		Probabilities: &probs,
		TopFeatures:   pred.TopFeatures,
		Signals:       &signals,
	}
}
