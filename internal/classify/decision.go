// Package classify converts the classifier's raw structured output
// into a typed decision record.
package classify

import (
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/recallhq/recall/internal/types"
)

// decisionSchema is the single validation gate for classifier output.
// Field access elsewhere in the pipeline relies on this having passed.
var decisionSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"shouldFormMemory", "shouldRespond", "significance"},
	Properties: map[string]*jsonschema.Schema{
		"shouldFormMemory": {Type: "boolean"},
		"shouldRespond":    {Type: "boolean"},
		"memoryType": {
			Type: "string",
			Enum: []any{
				types.MemoryKindJoke,
				types.MemoryKindFact,
				types.MemoryKindMoment,
				types.MemoryKindPreference,
				types.MemoryKindRelationship,
				types.MemoryKindQuote,
			},
		},
		"significance": {
			Type:    "number",
			Minimum: ptrTo(0.0),
			Maximum: ptrTo(1.0),
		},
		"extractedEntities": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string"},
		},
	},
}

var resolvedSchema = mustResolve(decisionSchema)

// ParseDecision extracts the JSON object from the classifier's raw
// reply, validates it against the decision schema, and returns the
// typed record or a *types.ParseError.
func ParseDecision(raw string) (types.Decision, error) {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return types.Decision{}, &types.ParseError{Reason: "no JSON object in classifier reply"}
	}
	clean = clean[start : end+1]

	var instance any
	if err := json.Unmarshal([]byte(clean), &instance); err != nil {
		return types.Decision{}, &types.ParseError{Reason: "malformed JSON", Err: err}
	}
	if err := resolvedSchema.Validate(instance); err != nil {
		return types.Decision{}, &types.ParseError{Reason: "schema validation failed", Err: err}
	}

	var decision types.Decision
	if err := json.Unmarshal([]byte(clean), &decision); err != nil {
		return types.Decision{}, &types.ParseError{Reason: "decode failed", Err: err}
	}
	decision.MemoryType = strings.ToLower(strings.TrimSpace(decision.MemoryType))
	if decision.ShouldFormMemory && decision.MemoryType == "" {
		return types.Decision{}, &types.ParseError{Reason: "memoryType required when shouldFormMemory is true"}
	}
	return decision, nil
}

func mustResolve(schema *jsonschema.Schema) *jsonschema.Resolved {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return resolved
}

func ptrTo[T any](v T) *T {
	return &v
}
