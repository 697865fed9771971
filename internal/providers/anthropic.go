package providers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"triagebench/internal/dataset"
	"triagebench/internal/repair"
)

// Anthropic drives the Messages API. The key comes from
// ANTHROPIC_API_KEY; the same direct-output prompt as the OpenAI backend
// is used, and the runner routes the answer by shape.
type Anthropic struct {
	client      anthropic.Client
	temperature float64
	maxTokens   int64
}

func NewAnthropic(opts Options) (*Anthropic, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	maxTokens := int64(opts.NumPredict)
	if maxTokens <= 0 {
		maxTokens = 320
	}

	return &Anthropic{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (p *Anthropic) Generate(ctx context.Context, c dataset.Case, model string) (*Result, error) {
	promptChars := len(c.InputText)
	start := time.Now()

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		System: []anthropic.TextBlockParam{
			{Text: triageSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildTriagePrompt(c.InputText))),
		},
	})
	if err != nil {
		return &Result{
			LatencyMS:   latencyMS(start),
			Status:      "error",
			ErrorType:   "AnthropicError",
			ErrorMsg:    err.Error(),
			PromptChars: promptChars,
		}, nil
	}

	rawText := ""
	for _, block := range message.Content {
		if block.Type == "text" {
			rawText = block.Text
			break
		}
	}
	usage := sumUsage(&Usage{
		PromptTokens:     intPtr(int(message.Usage.InputTokens)),
		CompletionTokens: intPtr(int(message.Usage.OutputTokens)),
	})

	if rawText == "" {
		return &Result{
			LatencyMS:   latencyMS(start),
			Usage:       usage,
			Status:      "error",
			ErrorType:   "ResponseShapeError",
			ErrorMsg:    "no text content in anthropic response",
			PromptChars: promptChars,
		}, nil
	}

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
