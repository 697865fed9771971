package runner_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triagebench/internal/dataset"
	"triagebench/internal/providers"
	"triagebench/internal/runner"
)

type stubProvider struct {
	generate func(c dataset.Case) (*providers.Result, error)
}

func (p *stubProvider) Generate(_ context.Context, c dataset.Case, _ string) (*providers.Result, error) {
	return p.generate(c)
}

func writeDataset(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readJSONL(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("bad log line %q: %v", scanner.Text(), err)
		}
		rows = append(rows, row)
	}
	return rows
}

func baseOptions(t *testing.T, datasetPath string) runner.Options {
	dir := t.TempDir()
	return runner.Options{
		DatasetPath: datasetPath,
		Provider:    "stub",
		Model:       "stub-model",
		ResultsPath: filepath.Join(dir, "results.jsonl"),
		EventsPath:  filepath.Join(dir, "events.jsonl"),
	}
}

func TestRun_WritesOneRecordAndEventPerCase(t *testing.T) {
	datasetPath := writeDataset(t,
		`{"id": "t1", "input_text": "vpn error 809 on windows", "expected": {"category": "VPN", "priority": "P2", "device": "Windows", "needs_clarification": false, "missing_fields": [], "summary": "s"}}`,
		`{"id": "t2", "input_text": "printer jam", "expected": {"category": "Printer", "priority": "P3", "device": "Unknown", "needs_clarification": false, "missing_fields": [], "summary": "s"}}`,
	)
	opts := baseOptions(t, datasetPath)

	provider := &stubProvider{generate: func(c dataset.Case) (*providers.Result, error) {
		actual := map[string]any{}
		for k, v := range c.Expected {
			actual[k] = v
		}
		return &providers.Result{Actual: actual, LatencyMS: 5, Status: "ok"}, nil
	}}

	summary, err := runner.Run(context.Background(), opts, provider)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalCases != 2 {
		t.Errorf("total_cases = %d, want 2", summary.TotalCases)
	}

	results := readJSONL(t, opts.ResultsPath)
	events := readJSONL(t, opts.EventsPath)
	if len(results) != 2 || len(events) != 2 {
		t.Fatalf("wrote %d results and %d events, want 2 each", len(results), len(events))
	}
	for _, row := range results {
		if row["provider"] != "stub" || row["model"] != "stub-model" {
			t.Errorf("row tags = %v/%v", row["provider"], row["model"])
		}
		if row["overall_pass"] != true {
			t.Errorf("case %v did not pass: %v", row["id"], row["failure_reasons"])
		}
	}
	for _, event := range events {
		if event["status"] != "ok" {
			t.Errorf("event status = %v", event["status"])
		}
		if event["ts"] == "" {
			t.Error("event is missing a timestamp")
		}
	}
}

func TestRun_SignalsPathBuildsTriageOutput(t *testing.T) {
	datasetPath := writeDataset(t,
		`{"id": "t1", "input_text": "VPN fails with error 809 from home office on my Windows laptop", "expected": {"category": "VPN", "priority": "P2", "device": "Windows", "needs_clarification": false, "missing_fields": [], "summary": "VPN error 809"}}`,
	)
	opts := baseOptions(t, datasetPath)

	provider := &stubProvider{generate: func(c dataset.Case) (*providers.Result, error) {
		return &providers.Result{
			Actual: map[string]any{
				"device_hint":  "windows",
				"mentions_vpn": true,
				"scope":        "single_user",
				"summary":      "VPN error 809",
			},
			LatencyMS: 3,
			Status:    "ok",
		}, nil
	}}

	if _, err := runner.Run(context.Background(), opts, provider); err != nil {
		t.Fatal(err)
	}

	results := readJSONL(t, opts.ResultsPath)
	if len(results) != 1 {
		t.Fatalf("wrote %d results", len(results))
	}
	row := results[0]
	actual, _ := row["actual"].(map[string]any)
	if actual["category"] != "VPN" || actual["priority"] != "P2" || actual["device"] != "Windows" {
		t.Errorf("signals were not run through the rule engine: %v", actual)
	}
	if _, ok := row["key_signals"].(map[string]any); !ok {
		t.Error("signals path must persist key_signals")
	}
	if row["overall_pass"] != true {
		t.Errorf("case failed: %v", row["failure_reasons"])
	}
}

func TestRun_ProviderErrorBecomesErrorRecord(t *testing.T) {
	datasetPath := writeDataset(t,
		`{"id": "t1", "input_text": "anything", "expected": {"category": "VPN", "priority": "P2", "device": "Unknown", "needs_clarification": false, "missing_fields": [], "summary": "s"}}`,
	)
	opts := baseOptions(t, datasetPath)

	provider := &stubProvider{generate: func(c dataset.Case) (*providers.Result, error) {
		return nil, context.DeadlineExceeded
	}}

	if _, err := runner.Run(context.Background(), opts, provider); err != nil {
		t.Fatalf("a provider error must not abort the run: %v", err)
	}

	results := readJSONL(t, opts.ResultsPath)
	events := readJSONL(t, opts.EventsPath)
	if len(results) != 1 || len(events) != 1 {
		t.Fatal("run must still log the failed case")
	}
	if results[0]["error_type"] != "ProviderError" {
		t.Errorf("error_type = %v", results[0]["error_type"])
	}
	if results[0]["json_valid"] != false || results[0]["overall_pass"] != false {
		t.Errorf("failed case scored as valid: %v", results[0])
	}
	if events[0]["status"] != "error" {
		t.Errorf("event status = %v", events[0]["status"])
	}
}

func TestRun_InvalidOutputMarksEventError(t *testing.T) {
	datasetPath := writeDataset(t,
		`{"id": "t1", "input_text": "anything", "expected": {"category": "VPN", "priority": "P2", "device": "Unknown", "needs_clarification": false, "missing_fields": [], "summary": "s"}}`,
	)
	opts := baseOptions(t, datasetPath)

	provider := &stubProvider{generate: func(c dataset.Case) (*providers.Result, error) {
		return &providers.Result{RawText: "no json here", LatencyMS: 2, Status: "ok"}, nil
	}}

	if _, err := runner.Run(context.Background(), opts, provider); err != nil {
		t.Fatal(err)
	}

	results := readJSONL(t, opts.ResultsPath)
	events := readJSONL(t, opts.EventsPath)
	if results[0]["raw_text"] != "no json here" {
		t.Errorf("raw_text = %v, want preserved on parse failure", results[0]["raw_text"])
	}
	if events[0]["status"] != "error" || events[0]["error_type"] != "InvalidJSON" {
		t.Errorf("event = %v", events[0])
	}
}

func TestRun_ParallelWritesAllCases(t *testing.T) {
	lines := make([]string, 0, 12)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		lines = append(lines,
			`{"id": "`+id+`", "input_text": "printer jam", "expected": {"category": "Printer", "priority": "P3", "device": "Unknown", "needs_clarification": false, "missing_fields": [], "summary": "s"}}`)
	}
	datasetPath := writeDataset(t, lines...)
	opts := baseOptions(t, datasetPath)
	opts.Parallel = 4

	provider := &stubProvider{generate: func(c dataset.Case) (*providers.Result, error) {
		actual := map[string]any{}
		for k, v := range c.Expected {
			actual[k] = v
		}
		return &providers.Result{Actual: actual, LatencyMS: 1, Status: "ok"}, nil
	}}

	if _, err := runner.Run(context.Background(), opts, provider); err != nil {
		t.Fatal(err)
	}

	results := readJSONL(t, opts.ResultsPath)
	if len(results) != 12 {
		t.Fatalf("wrote %d results, want 12", len(results))
	}
	seen := map[string]bool{}
	for _, row := range results {
		seen[row["id"].(string)] = true
	}
	if len(seen) != 12 {
		t.Errorf("duplicate or missing case ids: %v", seen)
	}
}

func TestRun_TruncatesPreviousLogs(t *testing.T) {
	datasetPath := writeDataset(t,
		`{"id": "t1", "input_text": "printer jam", "expected": {"category": "Printer", "priority": "P3", "device": "Unknown", "needs_clarification": false, "missing_fields": [], "summary": "s"}}`,
	)
	opts := baseOptions(t, datasetPath)
	if err := os.WriteFile(opts.ResultsPath, []byte("stale line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	provider := &stubProvider{generate: func(c dataset.Case) (*providers.Result, error) {
		actual := map[string]any{}
		for k, v := range c.Expected {
			actual[k] = v
		}
		return &providers.Result{Actual: actual, Status: "ok"}, nil
	}}

	if _, err := runner.Run(context.Background(), opts, provider); err != nil {
		t.Fatal(err)
	}
	results := readJSONL(t, opts.ResultsPath)
	if len(results) != 1 {
		t.Errorf("stale records survived: %d rows", len(results))
	}
}
