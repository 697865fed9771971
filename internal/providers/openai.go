package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"triagebench/internal/dataset"
	"triagebench/internal/repair"
)

// triageSystemPrompt asks hosted chat models for the final triage object
// directly; the runner routes the answer by shape.
const triageSystemPrompt = `You triage IT support tickets.
Return exactly one single-line minified JSON object and nothing else.
The object must contain exactly these keys:
- category: one of ["VPN","Email","Access","Laptop","Network","Printer","Software","Security","Hardware"]
- priority: one of ["P1","P2","P3","P4"]
- device: one of ["Windows","Mac","iPhone","Android","Unknown"]
- needs_clarification: boolean
- missing_fields: array of strings (empty array when nothing blocks action)
- summary: concise factual one-line summary
needs_clarification must be true exactly when missing_fields is non-empty.
No markdown, no code fences, no commentary.
`

// OpenAI drives chat completions with JSON response format. The key
// comes from OPENAI_API_KEY; the original harness stubbed this backend
// out entirely.
type OpenAI struct {
	client      *openai.Client
	temperature float64
	maxTokens   int
}

func NewOpenAI(opts Options) (*OpenAI, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	maxTokens := opts.NumPredict
	if maxTokens <= 0 {
		maxTokens = 320
	}

	var client *openai.Client
	if baseURL := strings.TrimRight(opts.BaseURL, "/"); baseURL != "" && baseURL != defaultOllamaBaseURL {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		client = openai.NewClientWithConfig(cfg)
	} else {
		client = openai.NewClient(apiKey)
	}

	return &OpenAI{
		client:      client,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (p *OpenAI) Generate(ctx context.Context, c dataset.Case, model string) (*Result, error) {
	promptChars := len(c.InputText)
	start := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(p.temperature),
		MaxTokens:   p.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: triageSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildTriagePrompt(c.InputText)},
		},
	})
	if err != nil {
		return &Result{
			LatencyMS:   latencyMS(start),
			Status:      "error",
			ErrorType:   "OpenAIError",
			ErrorMsg:    err.Error(),
			PromptChars: promptChars,
		}, nil
	}

	if len(resp.Choices) == 0 {
		return &Result{
			LatencyMS:   latencyMS(start),
			Status:      "error",
			ErrorType:   "ResponseShapeError",
			ErrorMsg:    "openai returned no choices",
			PromptChars: promptChars,
		}, nil
	}

	rawText := resp.Choices[0].Message.Content
	usage := sumUsage(&Usage{
		PromptTokens:     intPtr(resp.Usage.PromptTokens),
		CompletionTokens: intPtr(resp.Usage.CompletionTokens),
		TotalTokens:      intPtr(resp.Usage.TotalTokens),
	})

	actual, ok, failure := repair.ParseObject(rawText)
	if !ok {
		return &Result{
			LatencyMS:     latencyMS(start),
			RawText:       clip(rawText, 500),
			Usage:         usage,
			Status:        "error",
			ErrorType:     string(failure),
			ErrorMsg:      parseErrorMessage(failure),
			PromptChars:   promptChars,
			ResponseChars: len(rawText),
		}, nil
	}

	return &Result{
		Actual:        actual,
		LatencyMS:     latencyMS(start),
		Usage:         usage,
		Status:        "ok",
		PromptChars:   promptChars,
		ResponseChars: len(rawText),
	}, nil
}

func buildTriagePrompt(ticketText string) string {
	return "Triage this support ticket.\n" +
		"Ticket: " + ticketText + "\n" +
		"Return exactly one single-line minified JSON object only."
}
