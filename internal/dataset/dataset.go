// Package dataset loads the JSONL evaluation dataset and derives the
// run-scoped vocabulary of canonical missing-field names from it.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"triagebench/internal/eval"
)

// Case is one evaluation row: raw ticket text plus the expected triage
// output it should produce.
type Case struct {
	ID        string
	InputText string
	Expected  map[string]any
}

var requiredKeys = []string{"id", "input_text", "expected"}

// Load reads every case from a JSONL file. Blank lines are skipped; any
// malformed row is an error, the run must not start on a bad dataset.
func Load(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var cases []Case
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("line %d: expected a JSON object: %w", lineNo, err)
		}
		if missing := missingKeys(row); len(missing) > 0 {
			return nil, fmt.Errorf("line %d: missing required keys: %s", lineNo, strings.Join(missing, ", "))
		}

		id := stringValue(row["id"])
		expected, err := CoerceExpected(row["expected"], id)
		if err != nil {
			return nil, err
		}
		cases = append(cases, Case{
			ID:        id,
			InputText: stringValue(row["input_text"]),
			Expected:  expected,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return cases, nil
}

// CoerceExpected accepts the expected record as an object or as a
// JSON-encoded string and rejects anything else.
func CoerceExpected(value any, caseID string) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("case %s: expected field is not valid JSON", caseID)
		}
		if obj, ok := parsed.(map[string]any); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("case %s: expected field must be a JSON object", caseID)
}

// BuildVocabulary collects every string that appears in any expected
// missing_fields list. The result is the closed vocabulary scoring and
// canonicalization run against.
func BuildVocabulary(cases []Case) eval.Vocabulary {
	vocab := eval.Vocabulary{}
	for _, c := range cases {
		fields, ok := c.Expected["missing_fields"].([]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			if s, ok := field.(string); ok {
				vocab[s] = true
			}
		}
	}
	return vocab
}

func missingKeys(row map[string]any) []string {
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := row[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
