package predict

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// Feasibility labels in the normalized result.
const (
	Feasible = "Feasible"
	Risky    = "Risky"
)

// probSumEpsilon is how far the two probabilities may drift from summing to
// 1.0 before the response counts as malformed. Drift beyond it is never
// silently renormalized.
const probSumEpsilon = 0.02

// maxTopFeatures bounds the explanation list in the normalized result.
const maxTopFeatures = 5

type Probabilities struct {
	Feasible float64 `json:"feasible"`
	Risky    float64 `json:"risky"`
}

type Feature struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
	Kind       string  `json:"kind"` // "text" | "numeric"
}

// Result is the normalized prediction outcome. Available=false is a normal
// result, not an error: the pipeline proceeds and the caller sees the reason.
type Result struct {
	Available bool
	Reason    string

	Feasibility   string
	Confidence    float64
	Probabilities Probabilities
	TopFeatures   []Feature
	Signals       Signals
}

// rawResponse mirrors the classifier's wire shape (see the response schema).
type rawResponse struct {
	Prediction        string  `json:"prediction"`
	Confidence        float64 `json:"confidence"`
	ProbabilityScores struct {
		Feasible float64 `json:"feasible"`
		Risky    float64 `json:"risky"`
	} `json:"probability_scores"`
	Explanation struct {
		TopFeatures []struct {
			Feature    string  `json:"feature"`
			Importance float64 `json:"importance"`
			Type       string  `json:"type"`
		} `json:"top_features"`
	} `json:"explanation"`
}

// Adapter turns extracted text into a normalized Result via the external
// classification capability. Unreachability and malformed responses are
// degraded-but-successful outcomes by contract, so Predict returns no error.
type Adapter struct {
	caller  Caller
	enabled bool
	logger  *slog.Logger
}

func NewAdapter(caller Caller, enabled bool, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{caller: caller, enabled: enabled, logger: logger}
}

// Predict derives numeric signals from the text, calls the classifier, and
// normalizes its response. Every failure path collapses into an unavailable
// Result with a human-readable reason.
func (a *Adapter) Predict(ctx context.Context, text string) Result {
	signals := ExtractSignals(text)

	if !a.enabled {
		return a.unavailable(signals, "feasibility analysis is disabled")
	}

	raw, err := a.caller.Predict(ctx, Request{Text: text, NumericSignals: signals})
	if err != nil {
		a.logger.Warn("predict.unavailable", "reason", "unreachable", "error", err)
		return a.unavailable(signals, "classification service is unreachable")
	}

	if err := ValidateJSONAgainstSchema(BuildResponseJSONSchema(), raw); err != nil {
		a.logger.Warn("predict.unavailable", "reason", "schema", "error", err)
		return a.unavailable(signals, "classification service returned a malformed response")
	}

	var rr rawResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		a.logger.Warn("predict.unavailable", "reason", "decode", "error", err)
		return a.unavailable(signals, "classification service returned a malformed response")
	}

	probs := Probabilities{
		Feasible: clamp01(rr.ProbabilityScores.Feasible),
		Risky:    clamp01(rr.ProbabilityScores.Risky),
	}
	if math.Abs(probs.Feasible+probs.Risky-1.0) > probSumEpsilon {
		a.logger.Warn("predict.unavailable",
			"reason", "probability_sum",
			"feasible", probs.Feasible,
			"risky", probs.Risky,
		)
		return a.unavailable(signals, "classification service returned inconsistent probabilities")
	}

	res := Result{
		Available:     true,
		Feasibility:   normalizeLabel(rr.Prediction),
		Confidence:    clamp01(rr.Confidence),
		Probabilities: probs,
		TopFeatures:   normalizeFeatures(rr),
		Signals:       signals,
	}

	a.logger.Info("predict.ok",
		"feasibility", res.Feasibility,
		"confidence", res.Confidence,
		"top_features", len(res.TopFeatures),
	)
	return res
}

func (a *Adapter) unavailable(signals Signals, reason string) Result {
	return Result{Available: false, Reason: reason, Signals: signals}
}

func normalizeLabel(s string) string {
	if strings.EqualFold(s, "risky") {
		return Risky
	}
	return Feasible
}

func normalizeFeatures(rr rawResponse) []Feature {
	feats := make([]Feature, 0, len(rr.Explanation.TopFeatures))
	for _, f := range rr.Explanation.TopFeatures {
		kind := f.Type
		if kind != "numeric" {
			kind = "text"
		}
		feats = append(feats, Feature{
			Name:       f.Feature,
			Importance: clamp01(f.Importance),
			Kind:       kind,
		})
	}
	sort.SliceStable(feats, func(i, j int) bool {
		return feats[i].Importance > feats[j].Importance
	})
	if len(feats) > maxTopFeatures {
		feats = feats[:maxTopFeatures]
	}
	return feats
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
