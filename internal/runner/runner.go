// Package runner executes an evaluation: it feeds every dataset case
// through a provider, normalizes and scores the candidate output, and
// appends one result record and one event record per case.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"triagebench/internal/dataset"
	"triagebench/internal/eval"
	"triagebench/internal/logging"
	"triagebench/internal/providers"
)

// Options configure one evaluation run.
type Options struct {
	DatasetPath   string
	Provider      string
	Model         string
	ResultsPath   string
	EventsPath    string
	Parallel      int
	ShowProgress  bool
	ProgressEvery int
	ProviderOpts  providers.Options
}

// Summary is what Run reports back to the CLI.
type Summary struct {
	TotalCases  int
	ResultsPath string
	EventsPath  string
}

// ResultRecord is one line of the results log. The scoring verdict is
// flattened into the record; Warnings carries the scoring warnings
// merged with the normalization warnings.
type ResultRecord struct {
	ID        string           `json:"id"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Expected  map[string]any   `json:"expected"`
	Actual    map[string]any   `json:"actual"`
	Usage     *providers.Usage `json:"usage"`
	LatencyMS float64          `json:"latency_ms"`
	eval.ScoredCase
	KeySignals map[string]any `json:"key_signals,omitempty"`
	RawText    string         `json:"raw_text,omitempty"`
	ErrorType  string         `json:"error_type,omitempty"`
	ErrorMsg   string         `json:"error_msg,omitempty"`
}

// EventRecord is one line of the events log.
type EventRecord struct {
	TS            string  `json:"ts"`
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	CaseID        string  `json:"case_id"`
	LatencyMS     float64 `json:"latency_ms"`
	Status        string  `json:"status"`
	JSONValid     bool    `json:"json_valid"`
	SchemaValid   bool    `json:"schema_valid"`
	InputChars    int     `json:"input_chars"`
	ResponseChars int     `json:"response_chars"`
	ErrorType     string  `json:"error_type,omitempty"`
	ErrorMsg      string  `json:"error_msg,omitempty"`
}

// candidateKind routes a parsed candidate object through the pipeline.
type candidateKind int

const (
	candidateUnparseable candidateKind = iota
	candidateSignals
	candidateDirect
)

func classifyCandidate(actual map[string]any) candidateKind {
	if actual == nil {
		return candidateUnparseable
	}
	if eval.LooksLikeTicketSignals(actual) {
		return candidateSignals
	}
	return candidateDirect
}

// Run executes the evaluation. A nil provider is built from
// opts.Provider. Both output files are reset before the first case.
func Run(ctx context.Context, opts Options, provider providers.Provider) (*Summary, error) {
	log := logging.New("runner")

	cases, err := dataset.Load(opts.DatasetPath)
	if err != nil {
		return nil, err
	}
	vocab := dataset.BuildVocabulary(cases)

	if provider == nil {
		provider, err = providers.New(opts.Provider, opts.ProviderOpts)
		if err != nil {
			return nil, err
		}
	}

	results, err := newJSONLWriter(opts.ResultsPath)
	if err != nil {
		return nil, err
	}
	defer results.Close()
	events, err := newJSONLWriter(opts.EventsPath)
	if err != nil {
		return nil, err
	}
	defer events.Close()

	total := len(cases)
	if opts.ShowProgress {
		fmt.Printf("Running %d cases with provider=%s model=%s num_predict=%d num_ctx=%d json_mode=%v\n",
			total, opts.Provider, opts.Model, opts.ProviderOpts.NumPredict, opts.ProviderOpts.NumCtx, opts.ProviderOpts.JSONMode)
	}
	log.Info("run started", "dataset", opts.DatasetPath, "cases", total,
		"provider", opts.Provider, "model", opts.Model, "parallel", opts.Parallel)

	progressEvery := opts.ProgressEvery
	if progressEvery < 1 {
		progressEvery = 1
	}

	var mu sync.Mutex
	done := 0
	runCase := func(c dataset.Case) error {
		record, event := processCase(ctx, opts, provider, c, vocab)

		mu.Lock()
		defer mu.Unlock()
		if err := results.Append(record); err != nil {
			return err
		}
		if err := events.Append(event); err != nil {
			return err
		}
		done++
		if opts.ShowProgress && (done%progressEvery == 0 || done == total) {
			printProgress(done, total, record, event)
		}
		return nil
	}

	if opts.Parallel > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallel)
		for _, c := range cases {
			c := c
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return runCase(c)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for _, c := range cases {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := runCase(c); err != nil {
				return nil, err
			}
		}
	}

	log.Info("run finished", "results", opts.ResultsPath, "events", opts.EventsPath)
	return &Summary{
		TotalCases:  total,
		ResultsPath: opts.ResultsPath,
		EventsPath:  opts.EventsPath,
	}, nil
}

func processCase(ctx context.Context, opts Options, provider providers.Provider, c dataset.Case, vocab eval.Vocabulary) (ResultRecord, EventRecord) {
	res, err := provider.Generate(ctx, c, opts.Model)
	if err != nil {
		res = &providers.Result{
			Status:      "error",
			ErrorType:   "ProviderError",
			ErrorMsg:    err.Error(),
			PromptChars: len(c.InputText),
		}
	}

	normalizedActual := res.Actual
	var normalizationWarnings []string
	var keySignals map[string]any
	switch classifyCandidate(res.Actual) {
	case candidateSignals:
		signals := eval.CoerceSignals(res.Actual)
		keySignals = signals.Snapshot()
		built, buildWarnings := eval.BuildOutputFromSignals(signals, c.InputText, vocab, eval.StrictMissingFieldsDefault)
		var postWarnings []string
		normalizedActual, postWarnings = eval.NormalizeOutput(built.AsMap(), c.InputText)
		normalizationWarnings = eval.Dedupe(append(buildWarnings, postWarnings...))
	case candidateDirect:
		normalizedActual, normalizationWarnings = eval.NormalizeOutput(res.Actual, c.InputText)
	}

	score := eval.ScoreCase(c.Expected, normalizedActual, c.InputText, vocab)
	combined := eval.Dedupe(append(append([]string{}, score.Warnings...), normalizationWarnings...))
	score.Warnings = combined

	record := ResultRecord{
		ID:         c.ID,
		Provider:   opts.Provider,
		Model:      opts.Model,
		Expected:   c.Expected,
		Actual:     normalizedActual,
		Usage:      res.Usage,
		LatencyMS:  round3(res.LatencyMS),
		ScoredCase: score,
		KeySignals: keySignals,
	}
	if !score.JSONValid && res.RawText != "" {
		record.RawText = clip(res.RawText, 500)
	}
	if res.Status == "error" {
		record.ErrorType = res.ErrorType
		record.ErrorMsg = res.ErrorMsg
	}

	eventStatus := res.Status
	eventErrorType := res.ErrorType
	eventErrorMsg := res.ErrorMsg
	if eventStatus == "ok" && (!score.JSONValid || !score.SchemaValid) {
		eventStatus = "error"
		if !score.JSONValid {
			eventErrorType = "InvalidJSON"
			eventErrorMsg = "Output is not valid JSON object"
		} else {
			eventErrorType = "SchemaValidationError"
			eventErrorMsg = strings.Join(score.SchemaErrors, "; ")
		}
	}

	event := EventRecord{
		TS:            time.Now().UTC().Format(time.RFC3339),
		Provider:      opts.Provider,
		Model:         opts.Model,
		CaseID:        c.ID,
		LatencyMS:     round3(res.LatencyMS),
		Status:        eventStatus,
		JSONValid:     score.JSONValid,
		SchemaValid:   score.SchemaValid,
		InputChars:    len(c.InputText),
		ResponseChars: res.ResponseChars,
	}
	if eventStatus == "error" {
		event.ErrorType = eventErrorType
		event.ErrorMsg = clip(eventErrorMsg, 300)
	}
	return record, event
}

func printProgress(done, total int, record ResultRecord, event EventRecord) {
	if !record.JSONValid {
		preview := strings.ReplaceAll(clip(record.RawText, 80), "\n", " ")
		fmt.Printf("[%d/%d] %s parse_failed latency=%.1fms raw='%s'\n",
			done, total, record.ID, record.LatencyMS, preview)
		return
	}
	fmt.Printf("[%d/%d] %s %s json_valid=%v schema_valid=%v latency=%.1fms\n",
		done, total, record.ID, event.Status, record.JSONValid, record.SchemaValid, record.LatencyMS)
}

type jsonlWriter struct {
	f *os.File
}

// newJSONLWriter truncates the file so a run never mixes records with a
// previous one.
func newJSONLWriter(path string) (*jsonlWriter, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &jsonlWriter{f: f}, nil
}

func (w *jsonlWriter) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.f.Write(append(data, '\n'))
	return err
}

func (w *jsonlWriter) Close() error { return w.f.Close() }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
