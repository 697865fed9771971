package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"triagebench/internal/logging"
)

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(slog.LevelInfo, "json", &buf)

	logging.New("runner").Info("run started", "cases", 12)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if record["component"] != "runner" {
		t.Errorf("component = %v", record["component"])
	}
	if record["cases"] != 12.0 {
		t.Errorf("cases = %v", record["cases"])
	}
}

func TestInit_TextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(slog.LevelWarn, "text", &buf)

	log := logging.New("mcp")
	log.Info("suppressed")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info record must be filtered at warn level")
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "component=mcp") {
		t.Errorf("warn record missing or untagged: %q", out)
	}
}
