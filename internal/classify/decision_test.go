package classify

import (
	"errors"
	"testing"

	"github.com/recallhq/recall/internal/types"
)

func TestParseDecisionValid(t *testing.T) {
	raw := `{
		"shouldFormMemory": true,
		"shouldRespond": true,
		"memoryType": "fact",
		"significance": 0.8,
		"extractedEntities": ["U123", "deploys"]
	}`

	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if !decision.ShouldFormMemory || !decision.ShouldRespond {
		t.Fatalf("unexpected flags: %+v", decision)
	}
	if decision.MemoryType != types.MemoryKindFact {
		t.Fatalf("expected fact, got %q", decision.MemoryType)
	}
	if decision.Significance != 0.8 {
		t.Fatalf("expected significance 0.8, got %f", decision.Significance)
	}
	if len(decision.ExtractedEntities) != 2 {
		t.Fatalf("expected 2 entities, got %v", decision.ExtractedEntities)
	}
}

func TestParseDecisionExtractsFencedJSON(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"shouldFormMemory\": false, \"shouldRespond\": true, \"significance\": 0.2}\n```"

	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if decision.ShouldFormMemory {
		t.Fatalf("expected shouldFormMemory=false")
	}
	if !decision.ShouldRespond {
		t.Fatalf("expected shouldRespond=true")
	}
}

func TestParseDecisionRejectsOutOfRangeSignificance(t *testing.T) {
	for _, raw := range []string{
		`{"shouldFormMemory": false, "shouldRespond": true, "significance": 1.5}`,
		`{"shouldFormMemory": false, "shouldRespond": true, "significance": -0.1}`,
	} {
		_, err := ParseDecision(raw)
		var parseErr *types.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected ParseError for %s, got %v", raw, err)
		}
	}
}

func TestParseDecisionRejectsUnknownMemoryType(t *testing.T) {
	raw := `{"shouldFormMemory": true, "shouldRespond": false, "memoryType": "gossip", "significance": 0.5}`

	_, err := ParseDecision(raw)
	var parseErr *types.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseDecisionRequiresMemoryTypeWhenForming(t *testing.T) {
	raw := `{"shouldFormMemory": true, "shouldRespond": false, "significance": 0.5}`

	_, err := ParseDecision(raw)
	var parseErr *types.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseDecisionRejectsNonJSONReply(t *testing.T) {
	_, err := ParseDecision("I cannot help with that.")
	var parseErr *types.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseDecisionRejectsMissingRequiredFields(t *testing.T) {
	raw := `{"shouldFormMemory": true}`

	_, err := ParseDecision(raw)
	var parseErr *types.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
