package eval

import (
	"reflect"
	"regexp"
)

var deviceHintPattern = regexp.MustCompile(`(?i)\b(windows|mac|iphone|android)\b`)

// ScoredCase is the per-case scoring verdict written into result records.
type ScoredCase struct {
	JSONValid                      bool     `json:"json_valid"`
	SchemaValid                    bool     `json:"schema_valid"`
	SchemaErrors                   []string `json:"schema_errors"`
	CategoryCorrect                bool     `json:"category_correct"`
	PriorityCorrect                bool     `json:"priority_correct"`
	DeviceCorrect                  bool     `json:"device_correct"`
	NeedsClarificationCorrect      bool     `json:"needs_clarification_correct"`
	Hallucination                  bool     `json:"hallucination"`
	UnknownMissingFields           []string `json:"unknown_missing_fields"`
	Warnings                       []string `json:"warnings"`
	ExtractionFailureDeviceUnknown bool     `json:"extraction_failure_device_unknown"`
	FailureReasons                 []string `json:"failure_reasons"`
	OverallPass                    bool     `json:"overall_pass"`
}

// ScoreCase grades a candidate output against the expected record. A nil
// actual means the model produced no parseable object; every correctness
// check then fails. Unknown missing fields are a warning, not a failure.
func ScoreCase(expected, actual map[string]any, inputText string, vocab Vocabulary) ScoredCase {
	jsonValid := actual != nil
	var schemaValid bool
	var schemaErrors []string
	if jsonValid {
		schemaValid, schemaErrors = ValidateRequiredFields(actual)
	} else {
		schemaValid, schemaErrors = false, []string{"Output must be a JSON object"}
	}

	hallucination, hallucinationReasons := hallucinationChecks(actual)
	unknownMissing := findUnknownMissingFields(actual, vocab)

	var warnings []string
	if len(unknownMissing) > 0 {
		warnings = append(warnings, "unknown_missing_fields")
	}

	s := ScoredCase{
		JSONValid:                      jsonValid,
		SchemaValid:                    schemaValid,
		SchemaErrors:                   emptyIfNil(schemaErrors),
		CategoryCorrect:                fieldCorrect(expected, actual, "category"),
		PriorityCorrect:                fieldCorrect(expected, actual, "priority"),
		DeviceCorrect:                  fieldCorrect(expected, actual, "device"),
		NeedsClarificationCorrect:      fieldCorrect(expected, actual, "needs_clarification"),
		Hallucination:                  hallucination,
		UnknownMissingFields:           unknownMissing,
		Warnings:                       emptyIfNil(warnings),
		ExtractionFailureDeviceUnknown: isDeviceExtractionFailure(actual, inputText),
	}

	var reasons orderedSet
	if !s.JSONValid {
		reasons.Add("invalid_json")
	}
	if !s.SchemaValid {
		reasons.Add("schema_error")
	}
	if !s.CategoryCorrect {
		reasons.Add("wrong_category")
	}
	if !s.PriorityCorrect {
		reasons.Add("wrong_priority")
	}
	if !s.DeviceCorrect {
		reasons.Add("wrong_device")
	}
	if !s.NeedsClarificationCorrect {
		reasons.Add("wrong_needs_clarification")
	}
	if s.Hallucination {
		reasons.Add("hallucination")
		reasons.Add(hallucinationReasons...)
	}
	if s.ExtractionFailureDeviceUnknown {
		reasons.Add("extraction_failure_device_unknown")
	}
	s.FailureReasons = reasons.Items()

	s.OverallPass = s.JSONValid && s.SchemaValid &&
		s.CategoryCorrect && s.PriorityCorrect && s.DeviceCorrect &&
		s.NeedsClarificationCorrect && !s.Hallucination
	return s
}

func fieldCorrect(expected, actual map[string]any, field string) bool {
	if actual == nil {
		return false
	}
	return reflect.DeepEqual(expected[field], actual[field])
}

// hallucinationChecks flags outputs whose clarification flag contradicts
// the missing_fields list in either direction. The flag must be an
// actual bool; coerced values were already handled by normalization.
func hallucinationChecks(actual map[string]any) (bool, []string) {
	if actual == nil {
		return false, nil
	}

	var reasons []string
	needsClarification, isBool := actual["needs_clarification"].(bool)
	missingLen, isListVal := listLen(actual["missing_fields"])
	if isBool && isListVal {
		if !needsClarification && missingLen > 0 {
			reasons = append(reasons, "missing_fields_without_clarification")
		}
		if needsClarification && missingLen == 0 {
			reasons = append(reasons, "clarification_without_missing_fields")
		}
	}
	return len(reasons) > 0, reasons
}

func isDeviceExtractionFailure(actual map[string]any, inputText string) bool {
	if actual == nil {
		return false
	}
	if actual["device"] != "Unknown" {
		return false
	}
	return deviceHintPattern.MatchString(inputText)
}

func findUnknownMissingFields(actual map[string]any, vocab Vocabulary) []string {
	if actual == nil {
		return []string{}
	}

	unknown := []string{}
	switch missing := actual["missing_fields"].(type) {
	case []string:
		for _, field := range missing {
			if !vocab.Contains(field) {
				unknown = append(unknown, field)
			}
		}
	case []any:
		for _, item := range missing {
			if field, ok := item.(string); ok && vocab.Contains(field) {
				continue
			}
			unknown = append(unknown, stringify(item))
		}
	}
	return unknown
}

func listLen(value any) (int, bool) {
	switch v := value.(type) {
	case []any:
		return len(v), true
	case []string:
		return len(v), true
	}
	return 0, false
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
