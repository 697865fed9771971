package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"triagebench/internal/config"
	"triagebench/internal/format"
	"triagebench/internal/providers"
	"triagebench/internal/report"
	"triagebench/internal/runner"
)

var runFlags struct {
	dataset       string
	provider      string
	model         string
	baseURL       string
	timeout       int
	temperature   float64
	numPredict    int
	numCtx        int
	jsonMode      bool
	outResults    string
	outEvents     string
	parallel      int
	progressEvery int
	seed          int64
	configPath    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an evaluation over the dataset",
	Long: "Run feeds every dataset case through the chosen provider, scores the\n" +
		"outputs, appends result and event JSONL logs, and checks the release gates.",
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.dataset, "dataset", "data/tickets_eval.jsonl", "Path to JSONL eval dataset")
	f.StringVar(&runFlags.provider, "provider", "dummy", fmt.Sprintf("Provider name %v", providers.Names()))
	f.StringVar(&runFlags.model, "model", "dummy", "Model name")
	f.StringVar(&runFlags.baseURL, "base-url", "http://localhost:11434", "Provider base URL")
	f.IntVar(&runFlags.timeout, "timeout", 60, "HTTP timeout in seconds")
	f.Float64Var(&runFlags.temperature, "temperature", 0.0, "Sampling temperature")
	f.IntVar(&runFlags.numPredict, "num-predict", 320, "Max generated tokens")
	f.IntVar(&runFlags.numCtx, "num-ctx", 2048, "Ollama context window")
	f.BoolVar(&runFlags.jsonMode, "json-mode", false, "Use Ollama JSON mode (format=json) with safe fallback")
	f.StringVar(&runFlags.outResults, "out-results", "logs/results.jsonl", "Where to write case results")
	f.StringVar(&runFlags.outEvents, "out-events", "logs/events.jsonl", "Where to write event logs")
	f.IntVar(&runFlags.parallel, "parallel", 1, "Number of parallel workers (1 = sequential)")
	f.IntVar(&runFlags.progressEvery, "progress-every", 3, "Print progress every N cases")
	f.Int64Var(&runFlags.seed, "seed", 0, "Dummy provider seed (0 = time-based)")
	f.StringVar(&runFlags.configPath, "config", "", "Optional YAML/JSON run config")
}

func runRun(cmd *cobra.Command, _ []string) error {
	var gates map[string]float64
	if runFlags.configPath != "" {
		cfg, err := config.Load(runFlags.configPath)
		if err != nil {
			return err
		}
		applyRunConfig(cmd, cfg)
		gates = cfg.Gates
	}

	opts := runner.Options{
		DatasetPath:   runFlags.dataset,
		Provider:      runFlags.provider,
		Model:         runFlags.model,
		ResultsPath:   runFlags.outResults,
		EventsPath:    runFlags.outEvents,
		Parallel:      runFlags.parallel,
		ShowProgress:  true,
		ProgressEvery: runFlags.progressEvery,
		ProviderOpts: providers.Options{
			BaseURL:     runFlags.baseURL,
			Timeout:     time.Duration(runFlags.timeout) * time.Second,
			Temperature: runFlags.temperature,
			NumPredict:  runFlags.numPredict,
			NumCtx:      runFlags.numCtx,
			JSONMode:    runFlags.jsonMode,
			Seed:        runFlags.seed,
		},
	}

	runSummary, err := runner.Run(cmd.Context(), opts, nil)
	if err != nil {
		return err
	}

	summary, err := report.SummarizeFiles(opts.ResultsPath, opts.EventsPath)
	if err != nil {
		return err
	}
	gateSummary := report.EvaluateGates(summary, gates)

	fmt.Printf("Completed %d cases. Results: %s Events: %s\n",
		runSummary.TotalCases, runSummary.ResultsPath, runSummary.EventsPath)
	fmt.Println(metricsTable(summary))
	fmt.Println(gateTable(gateSummary))
	if gateSummary.Passed {
		fmt.Println("Gates: PASS")
		return nil
	}
	fmt.Println("Gates: FAIL")
	os.Exit(1)
	return nil
}

func metricsTable(s *report.RunSummary) string {
	tb := format.NewTable(format.ASCII)
	tb.Header("Metric", "Value")
	tb.Row("json_valid_rate", format.FmtRate(s.JSONValidRate))
	tb.Row("schema_valid_rate", format.FmtRate(s.SchemaValidRate))
	tb.Row("category_accuracy", format.FmtRate(s.Accuracy.Category))
	tb.Row("priority_accuracy", format.FmtRate(s.Accuracy.Priority))
	tb.Row("device_accuracy", format.FmtRate(s.Accuracy.Device))
	tb.Row("latency_p50", format.FmtMillis(s.LatencyMS.P50))
	tb.Row("latency_p95", format.FmtMillis(s.LatencyMS.P95))
	tb.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	return tb.String()
}

func gateTable(gates report.GateSummary) string {
	tb := format.NewTable(format.ASCII)
	tb.Header("Check", "Status", "Actual", "Threshold")
	for _, check := range gates.Checks {
		tb.Row(check.Name, format.PassMark(check.Passed), fmt.Sprintf("%.3f", check.Actual), check.Threshold)
	}
	tb.Columns(format.ColumnConfig{Number: 3, Align: format.AlignRight})
	return tb.String()
}

// applyRunConfig fills in config values for flags the user did not set
// explicitly; flags on the command line always win.
func applyRunConfig(cmd *cobra.Command, cfg *config.Run) {
	f := cmd.Flags()
	if cfg.Dataset != "" && !f.Changed("dataset") {
		runFlags.dataset = cfg.Dataset
	}
	if cfg.Provider != "" && !f.Changed("provider") {
		runFlags.provider = cfg.Provider
	}
	if cfg.Model != "" && !f.Changed("model") {
		runFlags.model = cfg.Model
	}
	if cfg.BaseURL != "" && !f.Changed("base-url") {
		runFlags.baseURL = cfg.BaseURL
	}
	if cfg.TimeoutSeconds > 0 && !f.Changed("timeout") {
		runFlags.timeout = cfg.TimeoutSeconds
	}
	if cfg.Temperature != 0 && !f.Changed("temperature") {
		runFlags.temperature = cfg.Temperature
	}
	if cfg.NumPredict > 0 && !f.Changed("num-predict") {
		runFlags.numPredict = cfg.NumPredict
	}
	if cfg.NumCtx > 0 && !f.Changed("num-ctx") {
		runFlags.numCtx = cfg.NumCtx
	}
	if cfg.JSONMode && !f.Changed("json-mode") {
		runFlags.jsonMode = cfg.JSONMode
	}
	if cfg.Parallel > 0 && !f.Changed("parallel") {
		runFlags.parallel = cfg.Parallel
	}
	if cfg.OutResults != "" && !f.Changed("out-results") {
		runFlags.outResults = cfg.OutResults
	}
	if cfg.OutEvents != "" && !f.Changed("out-events") {
		runFlags.outEvents = cfg.OutEvents
	}
}
