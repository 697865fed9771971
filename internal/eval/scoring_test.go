package eval_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"triagebench/internal/eval"
)

func validTriageObject() map[string]any {
	return map[string]any{
		"category":            "VPN",
		"priority":            "P2",
		"device":              "Windows",
		"needs_clarification": false,
		"missing_fields":      []any{},
		"summary":             "VPN error 809",
	}
}

func TestScoreCase_PerfectMatch(t *testing.T) {
	expected := validTriageObject()
	actual := validTriageObject()

	s := eval.ScoreCase(expected, actual, "vpn error 809 on my windows laptop", nil)

	if !s.OverallPass {
		t.Errorf("expected overall pass, got %+v", s)
	}
	if len(s.FailureReasons) != 0 {
		t.Errorf("failure_reasons = %v, want empty", s.FailureReasons)
	}
	if s.ExtractionFailureDeviceUnknown {
		t.Error("device Windows must not count as extraction failure")
	}
}

func TestScoreCase_NilActual(t *testing.T) {
	s := eval.ScoreCase(validTriageObject(), nil, "some ticket", nil)

	if s.JSONValid || s.SchemaValid {
		t.Error("nil actual must fail both validity checks")
	}
	if s.CategoryCorrect || s.PriorityCorrect || s.DeviceCorrect || s.NeedsClarificationCorrect {
		t.Error("nil actual must fail every field check")
	}
	want := []string{
		"invalid_json", "schema_error",
		"wrong_category", "wrong_priority", "wrong_device", "wrong_needs_clarification",
	}
	if diff := cmp.Diff(want, s.FailureReasons); diff != "" {
		t.Errorf("failure_reasons mismatch (-want +got):\n%s", diff)
	}
	if s.OverallPass {
		t.Error("nil actual must not pass")
	}
}

func TestScoreCase_HallucinationBothDirections(t *testing.T) {
	t.Run("fields without flag", func(t *testing.T) {
		actual := validTriageObject()
		actual["missing_fields"] = []any{"username"}

		s := eval.ScoreCase(validTriageObject(), actual, "", eval.NewVocabulary("username"))
		if !s.Hallucination {
			t.Fatal("expected hallucination")
		}
		if !contains(s.FailureReasons, "missing_fields_without_clarification") {
			t.Errorf("failure_reasons = %v", s.FailureReasons)
		}
		if s.OverallPass {
			t.Error("hallucination must fail the case")
		}
	})

	t.Run("flag without fields", func(t *testing.T) {
		actual := validTriageObject()
		actual["needs_clarification"] = true

		s := eval.ScoreCase(validTriageObject(), actual, "", nil)
		if !s.Hallucination {
			t.Fatal("expected hallucination")
		}
		if !contains(s.FailureReasons, "clarification_without_missing_fields") {
			t.Errorf("failure_reasons = %v", s.FailureReasons)
		}
	})
}

func TestScoreCase_UnknownMissingFieldsIsWarningOnly(t *testing.T) {
	expected := validTriageObject()
	expected["needs_clarification"] = true
	actual := validTriageObject()
	actual["needs_clarification"] = true
	actual["missing_fields"] = []any{"username", "shoe_size"}
	expected["missing_fields"] = []any{"username"}

	s := eval.ScoreCase(expected, actual, "", eval.NewVocabulary("username"))

	if diff := cmp.Diff([]string{"shoe_size"}, s.UnknownMissingFields); diff != "" {
		t.Errorf("unknown_missing_fields mismatch (-want +got):\n%s", diff)
	}
	if !contains(s.Warnings, "unknown_missing_fields") {
		t.Errorf("warnings = %v", s.Warnings)
	}
	if !s.OverallPass {
		t.Errorf("unknown fields alone must not fail the case: %+v", s)
	}
}

func TestScoreCase_WrongFields(t *testing.T) {
	actual := validTriageObject()
	actual["category"] = "Network"
	actual["priority"] = "P3"

	s := eval.ScoreCase(validTriageObject(), actual, "", nil)

	if s.CategoryCorrect || s.PriorityCorrect {
		t.Error("category and priority must be wrong")
	}
	if !s.DeviceCorrect || !s.NeedsClarificationCorrect {
		t.Error("device and needs_clarification must be correct")
	}
	want := []string{"wrong_category", "wrong_priority"}
	if diff := cmp.Diff(want, s.FailureReasons); diff != "" {
		t.Errorf("failure_reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreCase_DeviceExtractionFailure(t *testing.T) {
	expected := validTriageObject()
	expected["device"] = "Unknown"
	actual := validTriageObject()
	actual["device"] = "Unknown"

	s := eval.ScoreCase(expected, actual, "it happens on my Windows laptop", nil)

	if !s.ExtractionFailureDeviceUnknown {
		t.Error("Unknown device with a device hint in text must be flagged")
	}
	if !contains(s.FailureReasons, "extraction_failure_device_unknown") {
		t.Errorf("failure_reasons = %v", s.FailureReasons)
	}
	// The flag is diagnostic; the case still passes when fields match.
	if !s.OverallPass {
		t.Errorf("expected pass, got %+v", s)
	}
}
