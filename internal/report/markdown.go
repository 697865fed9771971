package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteMarkdown renders the run summary and its gate verdict as a
// markdown report and writes it to outPath.
func WriteMarkdown(summary *RunSummary, outPath string, overrides map[string]float64) error {
	content := RenderMarkdown(summary, overrides)
	if dir := filepath.Dir(outPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown builds the markdown report text.
func RenderMarkdown(summary *RunSummary, overrides map[string]float64) string {
	gateSummary := EvaluateGates(summary, overrides)
	latencyThreshold := resolveGateLimits(summary, overrides)[GateLatencyP95MSMax]

	lines := []string{
		"# Eval Report",
		"",
		"- Provider: " + summary.Provider,
		"- Model: " + summary.Model,
		fmt.Sprintf("- Total cases: %d", summary.TotalCases),
		"- json_valid_rate: " + pct(summary.JSONValidRate),
		"- schema_valid_rate: " + pct(summary.SchemaValidRate),
		"- category_accuracy: " + pct(summary.Accuracy.Category),
		"- priority_accuracy: " + pct(summary.Accuracy.Priority),
		"- device_accuracy: " + pct(summary.Accuracy.Device),
		"- needs_clarification_accuracy: " + pct(summary.Accuracy.NeedsClarification),
		fmt.Sprintf("- valid_json_only_cases: %d", summary.ValidJSONOnlyCases),
		"- valid_json_only_category_accuracy: " + pct(summary.AccuracyValidJSONOnly.Category),
		"- valid_json_only_priority_accuracy: " + pct(summary.AccuracyValidJSONOnly.Priority),
		"- valid_json_only_device_accuracy: " + pct(summary.AccuracyValidJSONOnly.Device),
		"- valid_json_only_needs_clarification_accuracy: " + pct(summary.AccuracyValidJSONOnly.NeedsClarification),
		"- hallucination_rate: " + pct(summary.HallucinationRate),
		"- unknown_missing_fields_rate: " + pct(summary.UnknownMissingFieldsRate),
		"- extraction_failure_device_unknown_rate: " + pct(summary.ExtractionFailureDeviceUnknownRate),
		"",
		"## Performance",
		"",
		"| Metric | Value |",
		"| --- | ---: |",
		fmt.Sprintf("| latency_p50_ms | %.2f |", summary.LatencyMS.P50),
		fmt.Sprintf("| latency_p95_ms | %.2f |", summary.LatencyMS.P95),
		fmt.Sprintf("| latency_p95_gate_ms | %.0f |", latencyThreshold),
		"| prompt_tokens_avg | " + fmtAvg(summary.Tokens.PromptAvg) + " |",
		"| completion_tokens_avg | " + fmtAvg(summary.Tokens.CompletionAvg) + " |",
		"| total_tokens_avg | " + fmtAvg(summary.Tokens.TotalAvg) + " |",
		"",
		"## Gates",
		"",
		"- status: " + passFail(gateSummary.Passed),
		"",
		"| Check | Status | Actual | Threshold |",
		"| --- | --- | ---: | --- |",
	}
	for _, check := range gateSummary.Checks {
		status := "fail"
		if check.Passed {
			status = "pass"
		}
		lines = append(lines, fmt.Sprintf("| %s | %s | %.3f | %s |", check.Name, status, check.Actual, check.Threshold))
	}

	lines = append(lines, "", "## Top Failure Causes", "", "| Cause | Count |", "| --- | ---: |")
	for _, cause := range FailureCauseOrder {
		lines = append(lines, fmt.Sprintf("| %s | %d |", cause, summary.FailureCauseCounts[cause]))
	}

	lines = append(lines, "", "## Category Confusion Summary", "")
	if len(summary.CategoryConfusions) == 0 {
		lines = append(lines, "- None")
	} else {
		lines = append(lines, "| Expected | Actual | Count |", "| --- | --- | ---: |")
		for _, row := range summary.CategoryConfusions {
			lines = append(lines, fmt.Sprintf("| %s | %s | %d |", row.Expected, row.Actual, row.Count))
		}
	}

	lines = append(lines, "", "## Top Wrong-Category Examples", "")
	if len(summary.WrongCategoryExamples) == 0 {
		lines = append(lines, "- None")
	} else {
		for _, example := range summary.WrongCategoryExamples {
			lines = append(lines, fmt.Sprintf("- ID `%s` expected=`%s` actual=`%s`",
				example.ID, example.ExpectedCategory, example.ActualCategory))
			if len(example.KeySignals) > 0 {
				lines = append(lines, "  key_signals: "+renderValue(example.KeySignals))
			}
		}
	}

	lines = append(lines, "", "## Remaining Misses", "")
	if len(summary.RemainingMisses) == 0 {
		lines = append(lines, "- None")
	} else {
		for _, miss := range summary.RemainingMisses {
			lines = append(lines, fmt.Sprintf("- ID `%s` category expected=`%s` actual=`%s`",
				miss.ID, miss.ExpectedCategory, miss.ActualCategory))
		}
	}

	lines = append(lines, "", "## Unknown Missing Fields Examples", "")
	if len(summary.UnknownMissingFieldsExamples) == 0 {
		lines = append(lines, "- None")
	} else {
		for _, example := range summary.UnknownMissingFieldsExamples {
			lines = append(lines, fmt.Sprintf("- ID `%s` unknown_missing_fields=%s",
				example.ID, renderValue(example.UnknownMissingFields)))
		}
	}

	lines = append(lines, "", "## Failures", "")
	lines = append(lines, fmt.Sprintf("- total_failures: %d", len(summary.Failures)))
	if len(summary.Failures) == 0 {
		lines = append(lines, "- None")
	} else {
		for _, failure := range summary.Failures {
			lines = append(lines, fmt.Sprintf("- ID `%s`", failure.ID))
			reasons := "unknown"
			if len(failure.Reasons) > 0 {
				reasons = strings.Join(failure.Reasons, ", ")
			}
			lines = append(lines, "  reasons: "+reasons)
			if len(failure.Differences) == 0 {
				lines = append(lines, "  diff: none")
				continue
			}
			chunks := make([]string, 0, len(failure.Differences))
			for _, diff := range failure.Differences {
				chunks = append(chunks, fmt.Sprintf("%s: expected=%s, actual=%s",
					diff.Field, renderValue(diff.Expected), renderValue(diff.Actual)))
			}
			lines = append(lines, "  diff: "+strings.Join(chunks, "; "))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func renderValue(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func pct(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

func fmtAvg(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *value)
}

func passFail(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
