package report

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// LatencyGateEnv overrides the latency p95 ceiling in milliseconds.
const LatencyGateEnv = "TRIAGEBENCH_LATENCY_P95_MS"

// Gate limit keys accepted by EvaluateGates overrides.
const (
	GateCategoryAccuracyMin = "category_accuracy_min"
	GateSchemaValidRateMin  = "schema_valid_rate_min"
	GateLatencyP95MSMax     = "latency_p95_ms_max"
)

var defaultGates = map[string]float64{
	GateCategoryAccuracyMin: 0.85,
	GateSchemaValidRateMin:  1.0,
	GateLatencyP95MSMax:     2000.0,
}

// Local models answer slower; the ollama profile loosens only the
// latency ceiling.
var ollamaLocalGates = map[string]float64{
	GateLatencyP95MSMax: 6000.0,
}

// GateCheck is one gate verdict.
type GateCheck struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Actual    float64 `json:"actual"`
	Threshold string  `json:"threshold"`
}

// GateSummary is the combined release-gate verdict for a run.
type GateSummary struct {
	Passed bool        `json:"passed"`
	Checks []GateCheck `json:"checks"`
}

// EvaluateGates checks the summary against resolved gate limits.
// Precedence, weakest first: defaults, provider profile, environment
// override, caller overrides.
func EvaluateGates(summary *RunSummary, overrides map[string]float64) GateSummary {
	limits := resolveGateLimits(summary, overrides)
	checks := []GateCheck{
		{
			Name:      "category_accuracy",
			Passed:    summary.Accuracy.Category >= limits[GateCategoryAccuracyMin],
			Actual:    summary.Accuracy.Category,
			Threshold: fmt.Sprintf(">= %.2f", limits[GateCategoryAccuracyMin]),
		},
		{
			Name:      "schema_valid_rate",
			Passed:    floatEq(summary.SchemaValidRate, limits[GateSchemaValidRateMin]),
			Actual:    summary.SchemaValidRate,
			Threshold: fmt.Sprintf("= %.2f", limits[GateSchemaValidRateMin]),
		},
		{
			Name:      "latency_p95_ms",
			Passed:    summary.LatencyMS.P95 <= limits[GateLatencyP95MSMax],
			Actual:    summary.LatencyMS.P95,
			Threshold: fmt.Sprintf("<= %.0f", limits[GateLatencyP95MSMax]),
		},
	}

	passed := true
	for _, check := range checks {
		if !check.Passed {
			passed = false
			break
		}
	}
	return GateSummary{Passed: passed, Checks: checks}
}

func resolveGateLimits(summary *RunSummary, overrides map[string]float64) map[string]float64 {
	limits := make(map[string]float64, len(defaultGates))
	for key, value := range defaultGates {
		limits[key] = value
	}
	if strings.ToLower(summary.Provider) == "ollama" {
		for key, value := range ollamaLocalGates {
			limits[key] = value
		}
	}

	if env := os.Getenv(LatencyGateEnv); env != "" {
		if parsed, err := strconv.ParseFloat(env, 64); err == nil && parsed > 0 {
			limits[GateLatencyP95MSMax] = parsed
		}
	}

	for key, value := range overrides {
		limits[key] = value
	}
	return limits
}

// Schema-rate equality is over float rates; exact == would flake on
// accumulated division error.
func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}
