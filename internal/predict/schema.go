package predict

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildResponseJSONSchema returns the JSON-Schema (draft 2020-12 subset) the
// classifier's raw response must satisfy before we normalize it. Anything
// outside this shape is treated as a malformed response, never propagated.
func BuildResponseJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prediction": map[string]any{
				"type": "string",
				"enum": []string{"feasible", "risky"},
			},
			"confidence": map[string]any{"type": "number"},
			"probability_scores": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"feasible": map[string]any{"type": "number"},
					"risky":    map[string]any{"type": "number"},
				},
				"required": []string{"feasible", "risky"},
			},
			"explanation": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"top_features": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"feature":    map[string]any{"type": "string"},
								"importance": map[string]any{"type": "number"},
								"type":       map[string]any{"type": "string"},
							},
							"required": []string{"feature", "importance"},
						},
					},
				},
			},
		},
		"required": []string{"prediction", "confidence", "probability_scores"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
