// Package report aggregates result and event logs into a run summary,
// evaluates release gates over it, and renders the markdown report.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FailureCauseOrder fixes the taxonomy and display order of run-level
// failure causes. A case can contribute to several causes at once.
var FailureCauseOrder = []string{
	"InvalidJSON",
	"SchemaError",
	"EmptyOutput",
	"ExtractionFailure",
	"RuleConflict",
}

var ruleConflictReasons = map[string]bool{
	"missing_fields_without_clarification": true,
	"clarification_without_missing_fields": true,
}

var ruleConflictWarnings = map[string]bool{
	"needs_clarification_without_missing_fields": true,
	"coerced_needs_clarification_true":           true,
}

// Accuracy groups the four per-field accuracy rates.
type Accuracy struct {
	Category           float64 `json:"category"`
	Priority           float64 `json:"priority"`
	Device             float64 `json:"device"`
	NeedsClarification float64 `json:"needs_clarification"`
}

// Latency carries nearest-rank percentiles in milliseconds.
type Latency struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
}

// TokenSummary averages token usage over the rows that reported it. Nil
// means no row carried that counter.
type TokenSummary struct {
	PromptAvg     *float64 `json:"prompt_avg"`
	CompletionAvg *float64 `json:"completion_avg"`
	TotalAvg      *float64 `json:"total_avg"`
}

// Confusion is one expected/actual category pair with its count.
type Confusion struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Count    int    `json:"count"`
}

// WrongCategoryExample points at one miscategorized case, with the
// extracted signals when the signals path produced the output.
type WrongCategoryExample struct {
	ID               string         `json:"id"`
	ExpectedCategory string         `json:"expected_category"`
	ActualCategory   string         `json:"actual_category"`
	KeySignals       map[string]any `json:"key_signals,omitempty"`
}

// CategoryMiss is one case whose category check failed.
type CategoryMiss struct {
	ID               string `json:"id"`
	ExpectedCategory string `json:"expected_category"`
	ActualCategory   string `json:"actual_category"`
}

// UnknownFieldsExample points at one case that requested fields outside
// the run vocabulary.
type UnknownFieldsExample struct {
	ID                   string   `json:"id"`
	UnknownMissingFields []string `json:"unknown_missing_fields"`
}

// FieldDiff is one expected/actual mismatch inside a failed case.
type FieldDiff struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// Failure is one failed case with its reasons and field-level diff.
type Failure struct {
	ID          string      `json:"id"`
	Reasons     []string    `json:"reasons"`
	Differences []FieldDiff `json:"differences"`
}

// RunSummary is the aggregation of one run's result and event logs.
type RunSummary struct {
	Provider                           string               `json:"provider"`
	Model                              string               `json:"model"`
	TotalCases                         int                  `json:"total_cases"`
	JSONValidRate                      float64              `json:"json_valid_rate"`
	SchemaValidRate                    float64              `json:"schema_valid_rate"`
	Accuracy                           Accuracy             `json:"accuracy"`
	ValidJSONOnlyCases                 int                  `json:"valid_json_only_cases"`
	AccuracyValidJSONOnly              Accuracy             `json:"accuracy_valid_json_only"`
	HallucinationRate                  float64              `json:"hallucination_rate"`
	UnknownMissingFieldsRate           float64              `json:"unknown_missing_fields_rate"`
	ExtractionFailureDeviceUnknownRate float64              `json:"extraction_failure_device_unknown_rate"`
	LatencyMS                          Latency              `json:"latency_ms"`
	Tokens                             TokenSummary         `json:"tokens"`
	FailureCauseCounts                 map[string]int       `json:"failure_cause_counts"`
	CategoryConfusions                 []Confusion          `json:"category_confusions"`
	WrongCategoryExamples              []WrongCategoryExample `json:"wrong_category_examples"`
	RemainingMisses                    []CategoryMiss       `json:"remaining_misses"`
	UnknownMissingFieldsExamples       []UnknownFieldsExample `json:"unknown_missing_fields_examples"`
	Failures                           []Failure            `json:"failures"`
}

// SummarizeFiles loads both logs and aggregates them. Missing files are
// treated as empty logs; malformed lines are an error.
func SummarizeFiles(resultsPath, eventsPath string) (*RunSummary, error) {
	results, err := loadJSONL(resultsPath)
	if err != nil {
		return nil, err
	}
	events, err := loadJSONL(eventsPath)
	if err != nil {
		return nil, err
	}
	return Summarize(results, events), nil
}

// Summarize aggregates already-loaded result and event rows. Pure: same
// rows, same summary.
func Summarize(results, events []map[string]any) *RunSummary {
	var validRows []map[string]any
	for _, row := range results {
		if boolValue(row["json_valid"]) && boolValue(row["schema_valid"]) {
			validRows = append(validRows, row)
		}
	}

	latencies := collectLatencies(events)
	if len(latencies) == 0 {
		latencies = collectLatencies(results)
	}

	return &RunSummary{
		Provider:        singleStringValue(results, "provider"),
		Model:           singleStringValue(results, "model"),
		TotalCases:      len(results),
		JSONValidRate:   rate(results, "json_valid"),
		SchemaValidRate: rate(results, "schema_valid"),
		Accuracy: Accuracy{
			Category:           rate(results, "category_correct"),
			Priority:           rate(results, "priority_correct"),
			Device:             rate(results, "device_correct"),
			NeedsClarification: rate(results, "needs_clarification_correct"),
		},
		ValidJSONOnlyCases: len(validRows),
		AccuracyValidJSONOnly: Accuracy{
			Category:           rate(validRows, "category_correct"),
			Priority:           rate(validRows, "priority_correct"),
			Device:             rate(validRows, "device_correct"),
			NeedsClarification: rate(validRows, "needs_clarification_correct"),
		},
		HallucinationRate:                  rate(results, "hallucination"),
		UnknownMissingFieldsRate:           nonEmptyListRate(results, "unknown_missing_fields"),
		ExtractionFailureDeviceUnknownRate: rate(results, "extraction_failure_device_unknown"),
		LatencyMS: Latency{
			P50: percentile(latencies, 50),
			P95: percentile(latencies, 95),
		},
		Tokens:                       tokenSummary(results),
		FailureCauseCounts:           failureCauseCounts(results),
		CategoryConfusions:           categoryConfusions(results, 5),
		WrongCategoryExamples:        topWrongCategoryExamples(results, 5),
		RemainingMisses:              remainingCategoryMisses(results),
		UnknownMissingFieldsExamples: unknownMissingFieldsExamples(results, 5),
		Failures:                     topFailures(results),
	}
}

func loadJSONL(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func rate(rows []map[string]any, key string) float64 {
	if len(rows) == 0 {
		return 0
	}
	good := 0
	for _, row := range rows {
		if boolValue(row[key]) {
			good++
		}
	}
	return float64(good) / float64(len(rows))
}

func nonEmptyListRate(rows []map[string]any, key string) float64 {
	if len(rows) == 0 {
		return 0
	}
	flagged := 0
	for _, row := range rows {
		if list, ok := row[key].([]any); ok && len(list) > 0 {
			flagged++
		}
	}
	return float64(flagged) / float64(len(rows))
}

// percentile is nearest-rank: rank = max(1, ceil(p/100*n)).
func percentile(values []float64, p int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func collectLatencies(rows []map[string]any) []float64 {
	var out []float64
	for _, row := range rows {
		if v, ok := row["latency_ms"].(float64); ok {
			out = append(out, v)
		}
	}
	return out
}

func singleStringValue(rows []map[string]any, key string) string {
	values := map[string]bool{}
	for _, row := range rows {
		if s, ok := row[key].(string); ok && s != "" {
			values[s] = true
		}
	}
	if len(values) == 1 {
		for v := range values {
			return v
		}
	}
	if len(values) == 0 {
		return "unknown"
	}
	return "mixed"
}

func tokenSummary(results []map[string]any) TokenSummary {
	var prompt, completion, total []float64
	for _, row := range results {
		usage, ok := row["usage"].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := usage["prompt_tokens"].(float64); ok {
			prompt = append(prompt, v)
		}
		if v, ok := usage["completion_tokens"].(float64); ok {
			completion = append(completion, v)
		}
		if v, ok := usage["total_tokens"].(float64); ok {
			total = append(total, v)
		}
	}
	return TokenSummary{
		PromptAvg:     avg(prompt),
		CompletionAvg: avg(completion),
		TotalAvg:      avg(total),
	}
}

func avg(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	return &mean
}

func failureCauseCounts(results []map[string]any) map[string]int {
	counts := make(map[string]int, len(FailureCauseOrder))
	for _, cause := range FailureCauseOrder {
		counts[cause] = 0
	}

	for _, row := range results {
		jsonValid := boolValue(row["json_valid"])
		schemaValid := boolValue(row["schema_valid"])
		errorType, _ := row["error_type"].(string)
		rawText, rawIsString := row["raw_text"].(string)

		if !jsonValid {
			counts["InvalidJSON"]++
		}
		if jsonValid && !schemaValid {
			counts["SchemaError"]++
		}
		if errorType == "EmptyOutput" || (!jsonValid && rawIsString && strings.TrimSpace(rawText) == "") {
			counts["EmptyOutput"]++
		}
		if errorType == "ExtractionFailure" {
			counts["ExtractionFailure"]++
		}
		if isRuleConflict(row) {
			counts["RuleConflict"]++
		}
	}
	return counts
}

func isRuleConflict(row map[string]any) bool {
	if reasons, ok := row["failure_reasons"].([]any); ok {
		for _, reason := range reasons {
			if s, ok := reason.(string); ok && ruleConflictReasons[s] {
				return true
			}
		}
	}
	if warnings, ok := row["warnings"].([]any); ok {
		for _, warning := range warnings {
			if s, ok := warning.(string); ok && ruleConflictWarnings[s] {
				return true
			}
		}
	}
	return false
}

func categoryConfusions(results []map[string]any, limit int) []Confusion {
	counts := map[Confusion]int{}
	for _, row := range results {
		expected, actual, ok := categoryPair(row)
		if !ok || expected == actual {
			continue
		}
		counts[Confusion{Expected: expected, Actual: actual}]++
	}

	out := make([]Confusion, 0, len(counts))
	for pair, count := range counts {
		pair.Count = count
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Expected != out[j].Expected {
			return out[i].Expected < out[j].Expected
		}
		return out[i].Actual < out[j].Actual
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func topWrongCategoryExamples(results []map[string]any, limit int) []WrongCategoryExample {
	var out []WrongCategoryExample
	for _, row := range results {
		expected, actual, ok := categoryPair(row)
		if !ok || expected == actual {
			continue
		}
		example := WrongCategoryExample{
			ID:               stringValue(row["id"]),
			ExpectedCategory: expected,
			ActualCategory:   actual,
		}
		if signals, ok := row["key_signals"].(map[string]any); ok {
			example.KeySignals = signals
		}
		out = append(out, example)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func remainingCategoryMisses(results []map[string]any) []CategoryMiss {
	var misses []CategoryMiss
	for _, row := range results {
		if correct, ok := row["category_correct"].(bool); !ok || correct {
			continue
		}
		expected, actual, ok := categoryPair(row)
		if !ok {
			continue
		}
		misses = append(misses, CategoryMiss{
			ID:               stringValue(row["id"]),
			ExpectedCategory: expected,
			ActualCategory:   actual,
		})
	}
	return misses
}

func unknownMissingFieldsExamples(results []map[string]any, limit int) []UnknownFieldsExample {
	var out []UnknownFieldsExample
	for _, row := range results {
		unknown, ok := row["unknown_missing_fields"].([]any)
		if !ok || len(unknown) == 0 {
			continue
		}
		fields := make([]string, 0, len(unknown))
		for _, value := range unknown {
			fields = append(fields, stringValue(value))
		}
		out = append(out, UnknownFieldsExample{ID: stringValue(row["id"]), UnknownMissingFields: fields})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func topFailures(results []map[string]any) []Failure {
	var failures []Failure
	for _, row := range results {
		if boolValue(row["overall_pass"]) {
			continue
		}
		expected, _ := row["expected"].(map[string]any)
		actual, _ := row["actual"].(map[string]any)
		failures = append(failures, Failure{
			ID:          stringValue(row["id"]),
			Reasons:     reasonsFromRow(row),
			Differences: diffFields(expected, actual),
		})
	}
	return failures
}

func reasonsFromRow(row map[string]any) []string {
	if raw, ok := row["failure_reasons"].([]any); ok && len(raw) > 0 {
		reasons := make([]string, 0, len(raw))
		for _, reason := range raw {
			reasons = append(reasons, stringValue(reason))
		}
		return reasons
	}

	var fallback []string
	checks := []struct {
		key    string
		reason string
	}{
		{"json_valid", "invalid_json"},
		{"schema_valid", "schema_error"},
		{"category_correct", "wrong_category"},
		{"priority_correct", "wrong_priority"},
		{"device_correct", "wrong_device"},
		{"needs_clarification_correct", "wrong_needs_clarification"},
	}
	for _, check := range checks {
		if passed, ok := row[check.key].(bool); ok && !passed {
			fallback = append(fallback, check.reason)
		}
	}
	if boolValue(row["hallucination"]) {
		fallback = append(fallback, "hallucination")
	}
	return fallback
}

func diffFields(expected, actual map[string]any) []FieldDiff {
	fieldSet := map[string]bool{}
	for field := range expected {
		fieldSet[field] = true
	}
	for field := range actual {
		fieldSet[field] = true
	}
	fields := make([]string, 0, len(fieldSet))
	for field := range fieldSet {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []FieldDiff
	for _, field := range fields {
		if jsonEqual(expected[field], actual[field]) {
			continue
		}
		out = append(out, FieldDiff{Field: field, Expected: expected[field], Actual: actual[field]})
	}
	return out
}

func categoryPair(row map[string]any) (string, string, bool) {
	expected, ok := row["expected"].(map[string]any)
	if !ok {
		return "", "", false
	}
	actual, ok := row["actual"].(map[string]any)
	if !ok {
		return "", "", false
	}
	expectedCategory, ok := expected["category"].(string)
	if !ok {
		return "", "", false
	}
	actualCategory, ok := actual["category"].(string)
	if !ok {
		return "", "", false
	}
	return expectedCategory, actualCategory, true
}

func jsonEqual(a, b any) bool {
	aData, errA := json.Marshal(a)
	bData, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aData) == string(bData)
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
