// Package repair recovers JSON objects from raw model output. Models wrap
// JSON in markdown fences, prepend commentary, or emit trailing prose; the
// functions here strip the wrapping and pull out the first complete
// top-level object so the caller can retry a strict parse.
package repair

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FailureKind classifies why a parse could not produce an object.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	EmptyOutput       FailureKind = "EmptyOutput"
	ExtractionFailure FailureKind = "ExtractionFailure"
	InvalidJSON       FailureKind = "InvalidJSON"
)

// ParseObject parses text into a JSON object, repairing as needed.
// It trims whitespace and code fences, attempts a strict parse, and on
// failure extracts the first balanced object substring and retries.
// Success requires the parsed value to be an object, not merely valid JSON.
func ParseObject(text string) (map[string]any, bool, FailureKind) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, false, EmptyOutput
	}
	raw = string(StripFences([]byte(raw)))

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		candidate, ok := ExtractFirstObject(raw)
		if !ok {
			return nil, false, ExtractionFailure
		}
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			return nil, false, InvalidJSON
		}
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false, InvalidJSON
	}
	return obj, true, FailureNone
}

// ExtractFirstObject scans text for the first complete top-level JSON
// object and returns the substring spanning it. Braces inside string
// literals are ignored; backslash escapes are honored so an escaped quote
// does not toggle string mode.
func ExtractFirstObject(text string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// StripFences removes a surrounding markdown code fence (```json ... ```
// or ``` ... ```) plus leading/trailing whitespace. Input without a fence
// is returned trimmed.
func StripFences(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if len(s) == 0 {
		return s
	}
	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}
	return s
}
