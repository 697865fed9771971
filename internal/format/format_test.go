package format_test

import (
	"strings"
	"testing"

	"triagebench/internal/format"
)

func TestASCII_GateTable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Check", "Status", "Actual", "Threshold")
	tb.Row("category_accuracy", format.PassMark(true), "0.900", ">= 0.85")
	tb.Row("latency_p95_ms", format.PassMark(false), "2500.000", "<= 2000")
	tb.Columns(format.ColumnConfig{Number: 3, Align: format.AlignRight})
	out := tb.String()

	if !strings.Contains(out, "category_accuracy") {
		t.Errorf("expected check name in output:\n%s", out)
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("expected failed mark in output:\n%s", out)
	}
	// ASCII mode uses StyleLight box-drawing characters.
	if !strings.Contains(out, "───") {
		t.Errorf("expected box-drawing characters in ASCII output:\n%s", out)
	}
}

func TestMarkdown_MetricsTable(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Metric", "Value")
	tb.Row("json_valid_rate", format.FmtRate(1.0))
	tb.Row("latency_p95", format.FmtMillis(123.4))
	out := tb.String()

	if !strings.Contains(out, "| Metric") {
		t.Errorf("expected markdown header:\n%s", out)
	}
	if !strings.Contains(out, "100.0%") {
		t.Errorf("expected formatted rate:\n%s", out)
	}
	if !strings.Contains(out, "123.4ms") {
		t.Errorf("expected formatted latency:\n%s", out)
	}
}

func TestFmtRate(t *testing.T) {
	if got := format.FmtRate(0.856); got != "85.6%" {
		t.Errorf("FmtRate = %q", got)
	}
}

func TestPassMark(t *testing.T) {
	if format.PassMark(true) != "pass" || format.PassMark(false) != "FAIL" {
		t.Error("unexpected pass marks")
	}
}
