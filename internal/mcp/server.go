// Package mcp exposes the triage engine over the Model Context Protocol
// so an editor or agent can triage tickets, score outputs, and summarize
// runs without shelling out to the CLI. All tools are stateless.
package mcp

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"triagebench/internal/dataset"
	"triagebench/internal/eval"
	"triagebench/internal/repair"
	"triagebench/internal/report"
)

// Server wraps the MCP SDK server with the triage tools.
type Server struct {
	MCPServer *sdkmcp.Server
}

func NewServer() *Server {
	s := &Server{}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "triagebench", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "triage_ticket",
		Description: "Triage a support ticket. Accepts raw ticket text plus optional extracted signals JSON and returns the structured triage output.",
	}, s.handleTriageTicket)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "score_output",
		Description: "Score a candidate triage output against an expected record. Returns the per-field verdict and failure reasons.",
	}, s.handleScoreOutput)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "summarize_run",
		Description: "Aggregate a run's results and events JSONL logs into a summary with gate verdicts.",
	}, s.handleSummarizeRun)
}

type triageTicketInput struct {
	TicketText  string `json:"ticket_text" jsonschema:"raw support ticket text"`
	SignalsJSON string `json:"signals_json,omitempty" jsonschema:"optional TicketSignals JSON produced by an extraction model"`
	Dataset     string `json:"dataset,omitempty" jsonschema:"optional dataset path used to resolve the missing-field vocabulary"`
}

type triageTicketOutput struct {
	Output   eval.TriageOutput `json:"output"`
	Warnings []string          `json:"warnings"`
}

type scoreOutputInput struct {
	ExpectedJSON string `json:"expected_json" jsonschema:"expected triage record as JSON"`
	ActualJSON   string `json:"actual_json" jsonschema:"candidate triage record as JSON"`
	InputText    string `json:"input_text,omitempty" jsonschema:"original ticket text, used for device-extraction checks"`
	Dataset      string `json:"dataset,omitempty" jsonschema:"optional dataset path used to resolve the missing-field vocabulary"`
}

type scoreOutputOutput struct {
	Score eval.ScoredCase `json:"score"`
}

type summarizeRunInput struct {
	Results string `json:"results" jsonschema:"path to results JSONL log"`
	Events  string `json:"events,omitempty" jsonschema:"path to events JSONL log"`
}

type summarizeRunOutput struct {
	Summary *report.RunSummary `json:"summary"`
	Gates   report.GateSummary `json:"gates"`
}

func (s *Server) handleTriageTicket(ctx context.Context, _ *sdkmcp.CallToolRequest, input triageTicketInput) (*sdkmcp.CallToolResult, triageTicketOutput, error) {
	vocab, strict, err := resolveVocabulary(input.Dataset)
	if err != nil {
		return nil, triageTicketOutput{}, err
	}

	signals := eval.TicketSignals{DeviceHint: "unknown", Scope: "unknown", ErrorCodes: []string{}}
	if input.SignalsJSON != "" {
		payload, ok, _ := repair.ParseObject(input.SignalsJSON)
		if !ok {
			return nil, triageTicketOutput{}, fmt.Errorf("signals_json is not a JSON object")
		}
		signals = eval.CoerceSignals(payload)
	}

	built, warnings := eval.BuildOutputFromSignals(signals, input.TicketText, vocab, strict)
	normalized, postWarnings := eval.NormalizeOutput(built.AsMap(), input.TicketText)

	var out eval.TriageOutput
	out.Category, _ = normalized["category"].(string)
	out.Priority, _ = normalized["priority"].(string)
	out.Device, _ = normalized["device"].(string)
	out.NeedsClarification, _ = normalized["needs_clarification"].(bool)
	out.MissingFields, _ = normalized["missing_fields"].([]string)
	out.Summary, _ = normalized["summary"].(string)
	if out.MissingFields == nil {
		out.MissingFields = []string{}
	}

	return nil, triageTicketOutput{
		Output:   out,
		Warnings: eval.Dedupe(append(warnings, postWarnings...)),
	}, nil
}

func (s *Server) handleScoreOutput(ctx context.Context, _ *sdkmcp.CallToolRequest, input scoreOutputInput) (*sdkmcp.CallToolResult, scoreOutputOutput, error) {
	vocab, _, err := resolveVocabulary(input.Dataset)
	if err != nil {
		return nil, scoreOutputOutput{}, err
	}

	expected, ok, _ := repair.ParseObject(input.ExpectedJSON)
	if !ok {
		return nil, scoreOutputOutput{}, fmt.Errorf("expected_json is not a JSON object")
	}
	// A malformed candidate is still scoreable: it fails as invalid JSON.
	actual, _, _ := repair.ParseObject(input.ActualJSON)

	score := eval.ScoreCase(expected, actual, input.InputText, vocab)
	return nil, scoreOutputOutput{Score: score}, nil
}

func (s *Server) handleSummarizeRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input summarizeRunInput) (*sdkmcp.CallToolResult, summarizeRunOutput, error) {
	if input.Results == "" {
		return nil, summarizeRunOutput{}, fmt.Errorf("results path is required")
	}
	summary, err := report.SummarizeFiles(input.Results, input.Events)
	if err != nil {
		return nil, summarizeRunOutput{}, err
	}
	return nil, summarizeRunOutput{
		Summary: summary,
		Gates:   report.EvaluateGates(summary, nil),
	}, nil
}

// resolveVocabulary builds the missing-field vocabulary from a dataset
// when one is given. Without a dataset there is no closed vocabulary, so
// canonicalization runs non-strict and keeps unmapped fields.
func resolveVocabulary(datasetPath string) (eval.Vocabulary, bool, error) {
	if datasetPath == "" {
		return nil, false, nil
	}
	cases, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, false, err
	}
	return dataset.BuildVocabulary(cases), eval.StrictMissingFieldsDefault, nil
}
